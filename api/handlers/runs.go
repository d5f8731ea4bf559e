package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/api"
	"github.com/BaSui01/evalflow/pipeline"
	"github.com/BaSui01/evalflow/types"
)

// RunLister reads dispatch history (implemented by runstore.Store).
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]pipeline.RunRecord, error)
	GetRun(ctx context.Context, id string) (pipeline.RunRecord, error)
}

// RunsHandler serves the run history endpoints.
type RunsHandler struct {
	store  RunLister
	logger *zap.Logger
}

// NewRunsHandler 创建运行历史处理器
func NewRunsHandler(store RunLister, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{store: store, logger: logger.With(zap.String("handler", "runs"))}
}

// HandleList 处理 GET /api/v1/runs?limit=N
// @Summary 运行历史
// @Tags 运行
// @Produce json
// @Param limit query int false "最多返回条数"
// @Success 200 {object} api.RunsResponse
// @Router /api/v1/runs [get]
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrCodeInvalidRequest,
				"limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := api.RunsResponse{Runs: make([]api.RunView, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = runView(run)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleGet 处理 GET /api/v1/runs/{id}
// @Summary 单次运行
// @Tags 运行
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} api.RunView
// @Failure 404 {object} api.ErrorResponse
// @Router /api/v1/runs/{id} [get]
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, runView(run))
}

func runView(r pipeline.RunRecord) api.RunView {
	return api.RunView{
		ID:         r.ID,
		Action:     string(r.Action),
		Status:     r.Status,
		Error:      r.Error,
		Rows:       r.Report.Rows,
		Succeeded:  r.Report.Succeeded,
		Failed:     r.Report.Failed,
		Variants:   r.Report.Variants,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
}
