package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/shangmen/shangmen/internal/metrics"
	"github.com/shangmen/shangmen/internal/repository"
	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/logger"
	"github.com/shangmen/shangmen/pkg/model"
)

// InstanceHandler 实例校验处理器
type InstanceHandler struct {
	instances *repository.InstanceRepository // 可为空：无持久化运行
	maxBody   int64
}

// NewInstanceHandler 创建实例校验处理器
func NewInstanceHandler(instances *repository.InstanceRepository, maxBody int) *InstanceHandler {
	return &InstanceHandler{instances: instances, maxBody: int64(maxBody)}
}

// InstanceResponse 实例校验响应
type InstanceResponse struct {
	Success   bool            `json:"success"`
	Signature string          `json:"signature,omitempty"`
	Features  *model.Features `json:"features,omitempty"`
	Message   string          `json:"message,omitempty"`
	Code      errors.Code     `json:"code,omitempty"`
}

// Validate 处理 POST /api/v1/instance/validate
// 请求体即实例记录本身；成功返回签名与特征摘要
func (h *InstanceHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "读取请求体失败"))
		return
	}

	ins, err := model.ParseInstance(body)
	if err != nil {
		metrics.InstanceValidations.WithLabelValues("invalid").Inc()
		writeJSON(w, errors.GetHTTPStatus(err), &InstanceResponse{
			Success: false,
			Code:    errors.GetCode(err),
			Message: err.Error(),
		})
		return
	}
	metrics.InstanceValidations.WithLabelValues("valid").Inc()

	if h.instances != nil {
		if _, err := h.instances.Save(r.Context(), ins); err != nil {
			// 持久化失败不影响校验结论
			logger.WithError(err).Str("instance", ins.Name).Msg("实例入库失败")
		}
	}

	writeJSON(w, http.StatusOK, &InstanceResponse{
		Success:   true,
		Signature: ins.Signature(),
		Features:  ins.Features(),
	})
}

// Features 处理 POST /api/v1/instance/features
// 与 Validate 相同的解析流程，只返回特征摘要
func (h *InstanceHandler) Features(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "读取请求体失败"))
		return
	}
	ins, err := model.ParseInstance(body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"features": ins.Features(),
	})
}

// Get 处理 GET /api/v1/instance/get?signature=...
func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.instances == nil {
		writeError(w, errors.New(errors.CodeNotFound, "持久化未启用"))
		return
	}
	signature := r.URL.Query().Get("signature")
	if signature == "" {
		writeError(w, errors.InvalidInput("signature", "缺少实例签名"))
		return
	}
	rec, err := h.instances.GetBySignature(r.Context(), signature)
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInternal, "查询实例失败"))
		return
	}
	if rec == nil {
		writeError(w, errors.Newf(errors.CodeNotFound, "签名 %s 对应的实例不存在", signature))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"instance": rec,
	})
}

// List 处理 GET /api/v1/instance/list
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.instances == nil {
		writeError(w, errors.New(errors.CodeNotFound, "持久化未启用"))
		return
	}
	records, err := h.instances.List(r.Context(), repository.ListFilter{})
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInternal, "查询实例列表失败"))
		return
	}
	// 列表里不回传完整载荷
	type item struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Signature string          `json:"signature"`
		Features  json.RawMessage `json:"features"`
	}
	items := make([]item, 0, len(records))
	for _, rec := range records {
		items = append(items, item{
			ID:        rec.ID.String(),
			Name:      rec.Name,
			Signature: rec.Signature,
			Features:  rec.Features,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"instances": items,
	})
}
