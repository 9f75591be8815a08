package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/shangmen/shangmen/internal/cache"
	"github.com/shangmen/shangmen/internal/metrics"
	"github.com/shangmen/shangmen/internal/repository"
	"github.com/shangmen/shangmen/pkg/cost"
	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/logger"
	"github.com/shangmen/shangmen/pkg/model"
	"github.com/shangmen/shangmen/pkg/verifier"
)

// SolutionHandler 解验证与成本评估处理器
type SolutionHandler struct {
	runs    *repository.RunRepository // 可为空：无持久化运行
	cache   *cache.Cache              // 可为空：不缓存
	maxBody int64
}

// NewSolutionHandler 创建解处理器
func NewSolutionHandler(runs *repository.RunRepository, c *cache.Cache, maxBody int) *SolutionHandler {
	return &SolutionHandler{runs: runs, cache: c, maxBody: int64(maxBody)}
}

// ValidateRequest 解验证请求
type ValidateRequest struct {
	Instance json.RawMessage `json:"instance"`
	Solution json.RawMessage `json:"solution"`
}

// ValidateResponse 解验证响应
// 成功时返回归一化后的解与成本指标
type ValidateResponse struct {
	Success  bool            `json:"success"`
	Code     errors.Code     `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	Costs    *cost.Metrics   `json:"costs,omitempty"`
	Solution *model.Solution `json:"solution,omitempty"`
	Cached   bool            `json:"cached,omitempty"`
	Duration string          `json:"duration"`
}

// Validate 处理 POST /api/v1/solution/validate
// 流程：解析实例 → 解析解 → 验证（含归一化）→ 成本评估
func (h *SolutionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, true)
}

// Cost 处理 POST /api/v1/solution/cost
// 成本只对已验证的解有定义，因此同样先走验证
func (h *SolutionHandler) Cost(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, false)
}

// run 解验证与成本评估的共用流程
func (h *SolutionHandler) run(w http.ResponseWriter, r *http.Request, includeSolution bool) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "读取请求体失败"))
		return
	}
	var req ValidateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInvalidInput, "请求JSON解析失败"))
		return
	}
	ve := &errors.ValidationErrors{}
	if len(req.Instance) == 0 {
		ve.Add("instance", "缺少实例")
	}
	if len(req.Solution) == 0 {
		ve.Add("solution", "缺少解")
	}
	if ve.HasErrors() {
		writeError(w, ve.ToAppError())
		return
	}

	ins, err := model.ParseInstance(req.Instance)
	if err != nil {
		metrics.RecordValidation("error", time.Since(start))
		h.respondFailure(w, r, "", "", err, start)
		return
	}
	signature := ins.Signature()
	solutionHash := hashSolution(req.Solution)

	// 验证是 (实例, 解) 的纯函数，命中缓存可以直接回放结果
	if h.cache != nil {
		var cached ValidateResponse
		if hit, err := h.cache.Get(r.Context(), signature, solutionHash, &cached); err != nil {
			logger.WithError(err).Msg("缓存读取失败")
		} else if hit {
			metrics.RecordValidation("cached", time.Since(start))
			cached.Cached = true
			cached.Duration = time.Since(start).String()
			if !includeSolution {
				cached.Solution = nil
			}
			writeJSON(w, http.StatusOK, &cached)
			return
		}
	}

	sol, err := model.ParseSolution(req.Solution)
	if err != nil {
		metrics.RecordValidation("invalid", time.Since(start))
		h.respondFailure(w, r, signature, solutionHash, err, start)
		return
	}

	if err := verifier.New(ins).Check(sol); err != nil {
		metrics.RecordValidation("invalid", time.Since(start))
		h.respondFailure(w, r, signature, solutionHash, err, start)
		return
	}

	costs, err := cost.NewEvaluator(ins).Evaluate(sol)
	if err != nil {
		metrics.RecordValidation("error", time.Since(start))
		h.respondFailure(w, r, signature, solutionHash, err, start)
		return
	}
	metrics.RecordValidation("valid", time.Since(start))

	resp := &ValidateResponse{
		Success:  true,
		Costs:    costs,
		Solution: sol,
		Duration: time.Since(start).String(),
	}
	h.record(r, signature, solutionHash, resp, start)
	if h.cache != nil {
		if err := h.cache.Set(r.Context(), signature, solutionHash, resp); err != nil {
			logger.WithError(err).Msg("缓存写入失败")
		}
	}
	if !includeSolution {
		resp.Solution = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

// Runs 处理 GET /api/v1/solution/runs?signature=...
// 返回某实例的验证历史
func (h *SolutionHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.runs == nil {
		writeError(w, errors.New(errors.CodeNotFound, "持久化未启用"))
		return
	}
	signature := r.URL.Query().Get("signature")
	if signature == "" {
		writeError(w, errors.InvalidInput("signature", "缺少实例签名"))
		return
	}
	runs, err := h.runs.ListByInstance(r.Context(), signature, repository.ListFilter{})
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodeInternal, "查询验证记录失败"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"runs":    runs,
	})
}

// respondFailure 输出失败响应并留痕
func (h *SolutionHandler) respondFailure(w http.ResponseWriter, r *http.Request, signature, solutionHash string, err error, start time.Time) {
	resp := &ValidateResponse{
		Success:  false,
		Code:     errors.GetCode(err),
		Message:  err.Error(),
		Duration: time.Since(start).String(),
	}
	if signature != "" {
		h.record(r, signature, solutionHash, resp, start)
	}
	writeJSON(w, errors.GetHTTPStatus(err), resp)
}

// record 可选地写入验证记录
func (h *SolutionHandler) record(r *http.Request, signature, solutionHash string, resp *ValidateResponse, start time.Time) {
	if h.runs == nil {
		return
	}
	run := &repository.ValidationRun{
		InstanceSignature: signature,
		SolutionHash:      solutionHash,
		Valid:             resp.Success,
		FailedRule:        string(resp.Code),
		Message:           resp.Message,
		DurationMillis:    time.Since(start).Milliseconds(),
	}
	if resp.Costs != nil {
		if data, err := json.Marshal(resp.Costs); err == nil {
			run.Costs = data
		}
	}
	if err := h.runs.Create(r.Context(), run); err != nil {
		logger.WithError(err).Msg("验证记录入库失败")
	}
}

// hashSolution 计算解的内容哈希（缓存与留痕的键）
func hashSolution(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
