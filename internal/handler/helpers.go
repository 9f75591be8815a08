// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/logger"
)

// writeJSON 输出JSON响应
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Msg("响应序列化失败")
	}
}

// writeError 将应用错误映射为HTTP响应
func writeError(w http.ResponseWriter, err error) {
	status := errors.GetHTTPStatus(err)
	body := map[string]interface{}{
		"success": false,
		"code":    errors.GetCode(err),
		"message": err.Error(),
	}
	writeJSON(w, status, body)
}

// requireMethod 检查请求方法
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"success": false,
			"message": "仅支持 " + method,
		})
		return false
	}
	return true
}
