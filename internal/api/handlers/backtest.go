package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wonny/cbquant/internal/audit"
	"github.com/wonny/cbquant/internal/backtest"
	"github.com/wonny/cbquant/internal/report"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/strategyconfig"
	"github.com/wonny/cbquant/pkg/logger"
	"github.com/wonny/cbquant/pkg/redis"
)

// PanelProvider returns the prepared panel, nil when none is loaded yet
type PanelProvider interface {
	Get() *s0_data.Panel
}

// RunStore persists run history
type RunStore interface {
	SaveRuns(ctx context.Context, recs []audit.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]audit.RunRecord, error)
}

// BacktestHandler handles backtest API endpoints
// ⭐ SSOT: 백테스트 API 핸들러는 이 구조체에서만
type BacktestHandler struct {
	engine    *backtest.Engine
	batch     *backtest.BatchRunner
	panels    PanelProvider
	cache     *redis.Cache // nil이면 캐시 없음
	runs      RunStore     // nil이면 이력 저장 안 함
	outputDir string
	ttl       time.Duration
	logger    *logger.Logger
}

// BacktestOptions are the optional collaborators of the handler
type BacktestOptions struct {
	Cache     *redis.Cache
	Runs      RunStore
	OutputDir string
	ResultTTL time.Duration
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(
	engine *backtest.Engine,
	batch *backtest.BatchRunner,
	panels PanelProvider,
	opts BacktestOptions,
	log *logger.Logger,
) *BacktestHandler {
	ttl := opts.ResultTTL
	if ttl <= 0 {
		ttl = redis.TTLLong
	}
	return &BacktestHandler{
		engine:    engine,
		batch:     batch,
		panels:    panels,
		cache:     opts.Cache,
		runs:      opts.Runs,
		outputDir: opts.OutputDir,
		ttl:       ttl,
		logger:    log,
	}
}

// BacktestResponse is the body of POST /api/backtest
type BacktestResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	Result      *backtest.Result `json:"result"`
	ElapsedTime float64          `json:"elapsed_time"` // seconds
	Cached      bool             `json:"cached"`
}

// BatchResponse is the body of POST /api/backtest/batch
type BatchResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	Results     []*backtest.Result `json:"results"`
	ElapsedTime float64            `json:"elapsed_time"`
	OutputPath  string             `json:"output_path,omitempty"`
}

// RunBacktest runs one strategy.
// Strategy-level failures are reported inside result.error with status 200.
// POST /api/backtest
func (h *BacktestHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req strategyconfig.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := strategyconfig.ValidateRequest(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	panel := h.panels.Get()
	if panel == nil {
		respondError(w, http.StatusServiceUnavailable, "Panel not loaded")
		return
	}

	hash, err := strategyconfig.Hash(&req.Strategy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result backtest.Result
	cached := false
	run := func() (interface{}, error) {
		return h.engine.Run(ctx, panel, req), nil
	}
	if h.cache != nil {
		key := redis.BacktestKey(panel.Version(), hash, req.Data.StartDate, req.Data.EndDate)
		cached, err = h.cache.GetOrSet(ctx, key, &result, h.ttl, run)
	} else {
		var v interface{}
		v, err = run()
		if err == nil {
			result = *v.(*backtest.Result)
		}
	}
	if err != nil {
		h.logger.WithError(err).Error("Backtest failed")
		respondError(w, http.StatusInternalServerError, "Backtest failed")
		return
	}

	if !cached {
		h.saveRuns(ctx, &result)
	}

	message := "Backtest completed"
	if !result.OK() {
		message = "Backtest finished with error"
	}
	respondJSON(w, http.StatusOK, BacktestResponse{
		Success:     result.OK(),
		Message:     message,
		Result:      &result,
		ElapsedTime: time.Since(start).Seconds(),
		Cached:      cached,
	})
}

// RunBatch runs several strategies over one range, optionally exporting a workbook
// POST /api/backtest/batch
func (h *BacktestHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var cfg strategyconfig.BatchConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := strategyconfig.ValidateBatch(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	panel := h.panels.Get()
	if panel == nil {
		respondError(w, http.StatusServiceUnavailable, "Panel not loaded")
		return
	}

	results := h.batch.Run(ctx, panel, cfg.Requests())
	h.saveRuns(ctx, results...)

	resp := BatchResponse{
		Success: true,
		Message: "Batch completed",
		Results: results,
	}

	if cfg.OutputPath != "" {
		// 출력 경로는 항상 outputDir 아래 파일명으로 제한
		path := filepath.Join(h.outputDir, filepath.Base(cfg.OutputPath))
		if err := report.WriteWorkbook(path, results); err != nil {
			h.logger.WithError(err).WithField("path", path).Error("Failed to write batch workbook")
			resp.Success = false
			resp.Message = "Batch completed, workbook export failed"
		} else {
			resp.OutputPath = path
		}
	}

	resp.ElapsedTime = time.Since(start).Seconds()
	respondJSON(w, http.StatusOK, resp)
}

// ListRuns returns recent run history
// GET /api/runs?limit=N
func (h *BacktestHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run history not configured")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetPanel describes the loaded panel
// GET /api/panel
func (h *BacktestHandler) GetPanel(w http.ResponseWriter, r *http.Request) {
	panel := h.panels.Get()
	if panel == nil {
		respondError(w, http.StatusServiceUnavailable, "Panel not loaded")
		return
	}

	dates := panel.Dates()
	info := map[string]interface{}{
		"version":     panel.Version(),
		"rows":        panel.Len(),
		"instruments": len(panel.Groups()),
		"dates":       len(dates),
		"numeric":     panel.NumericFields(),
		"text":        panel.TextFields(),
	}
	if len(dates) > 0 {
		info["start_date"] = s0_data.ISODate(dates[0])
		info["end_date"] = s0_data.ISODate(dates[len(dates)-1])
	}

	respondJSON(w, http.StatusOK, info)
}

func (h *BacktestHandler) saveRuns(ctx context.Context, results ...*backtest.Result) {
	if h.runs == nil {
		return
	}
	recs := make([]audit.RunRecord, len(results))
	for i, r := range results {
		recs[i] = r.Record()
	}
	if err := h.runs.SaveRuns(ctx, recs); err != nil {
		h.logger.WithError(err).Warn("Failed to save run history")
	}
}
