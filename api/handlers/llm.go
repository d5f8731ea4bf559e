package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/api"
	"github.com/BaSui01/evalflow/pipeline"
	"github.com/BaSui01/evalflow/types"
)

// Dispatcher runs one action over a table (implemented by pipeline.Orchestrator).
type Dispatcher interface {
	Dispatch(ctx context.Context, action pipeline.Action, table types.Table, params pipeline.Params) (*pipeline.Outcome, error)
}

// =============================================================================
// 🧮 批处理 Handler
// =============================================================================

// LLMHandler serves POST /api/llm.
type LLMHandler struct {
	dispatcher   Dispatcher
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewLLMHandler 创建批处理处理器。maxBodyBytes ≤ 0 时使用 DefaultMaxBodyBytes。
func NewLLMHandler(d Dispatcher, maxBodyBytes int64, logger *zap.Logger) *LLMHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMHandler{
		dispatcher:   d,
		logger:       logger.With(zap.String("handler", "llm")),
		maxBodyBytes: maxBodyBytes,
	}
}

// HandleDispatch 处理 POST /api/llm
// @Summary 批处理
// @Description 对行数组执行 inference / evaluate / augment
// @Tags 批处理
// @Accept json
// @Produce json
// @Param request body api.LLMRequest true "批处理请求"
// @Success 200 {object} api.LLMResponse
// @Failure 400 {object} api.ErrorResponse "请求无效"
// @Failure 500 {object} api.ErrorResponse "处理失败"
// @Router /api/llm [post]
func (h *LLMHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var req api.LLMRequest
	if err := DecodeJSONBody(w, r, &req, h.maxBodyBytes); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	table, action, err := parseLLMRequest(req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	out, err := h.dispatcher.Dispatch(r.Context(), action, table, pipeline.Params{
		SystemColumn:       req.SystemPrompt,
		UserColumn:         req.UserInput,
		AugmentationFactor: req.AugmentationFactor,
		AugmentationPrompt: req.AugmentationPrompt,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.LLMResponse{
		Result:  rowsOf(out.Table),
		Headers: out.Table.Columns,
		RunID:   out.RunID,
	})
}

// parseLLMRequest applies the request-shape checks: a missing action or a
// data field that is not an array is INVALID_REQUEST. Action names are
// resolved by the orchestrator so an empty table is reported first.
func parseLLMRequest(req api.LLMRequest) (types.Table, pipeline.Action, error) {
	action := strings.TrimSpace(req.Action)
	if action == "" || len(req.Data) == 0 {
		return types.Table{}, "", types.NewError(types.ErrCodeInvalidRequest, "Invalid request data")
	}

	columns, rows, err := types.DecodeRows(req.Data)
	if err != nil {
		return types.Table{}, "", err
	}
	if len(req.Headers) > 0 {
		columns = req.Headers
	}
	return types.NewTable(columns, rows), pipeline.Action(action), nil
}

// rowsOf converts rows to plain maps so an empty result encodes as [].
func rowsOf(t types.Table) []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r
	}
	return out
}
