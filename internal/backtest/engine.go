package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/cbquant/internal/audit"
	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/s1_factors"
	"github.com/wonny/cbquant/internal/s2_universe"
	"github.com/wonny/cbquant/internal/selection"
	"github.com/wonny/cbquant/internal/strategyconfig"
	"github.com/wonny/cbquant/pkg/logger"
)

// Engine runs the factor → filter → score → simulate → cost → evaluate pipeline
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	factors   *s1_factors.Engine
	filter    *s2_universe.Filter
	scorer    *selection.Scorer
	simulator *Simulator
	evaluator *audit.Evaluator
	logger    *logger.Logger
}

// Result holds one strategy run.
// Strategy-level failures land in Error and Metrics.Error, never in a Go error.
type Result struct {
	ID             uuid.UUID                      `json:"id"`
	Name           string                         `json:"name"`
	Request        strategyconfig.BacktestRequest `json:"request"`
	ConfigHash     string                         `json:"config_hash"`
	PanelVersion   string                         `json:"panel_version"`
	Series         []contracts.DailyReturn        `json:"series"`
	Metrics        contracts.Metrics              `json:"metrics"`
	Filter         *contracts.Eligibility         `json:"filter,omitempty"`
	SkippedFactors []string                       `json:"skipped_factors,omitempty"`
	Warnings       []strategyconfig.Warning       `json:"warnings,omitempty"`
	StartedAt      time.Time                      `json:"started_at"`
	Elapsed        time.Duration                  `json:"elapsed"`
	Error          string                         `json:"error,omitempty"`
}

// OK reports whether the run produced metrics
func (r *Result) OK() bool {
	return r.Error == ""
}

// Record converts the result into a run history row
func (r *Result) Record() audit.RunRecord {
	strategy, err := json.Marshal(r.Request.Strategy)
	if err != nil {
		strategy = []byte(`{}`)
	}
	return audit.RunRecord{
		ID:           r.ID,
		Name:         r.Name,
		ConfigHash:   r.ConfigHash,
		PanelVersion: r.PanelVersion,
		StartDate:    r.Request.Data.StartDate,
		EndDate:      r.Request.Data.EndDate,
		Strategy:     strategy,
		Metrics:      r.Metrics,
		Error:        r.Error,
		ElapsedMS:    r.Elapsed.Milliseconds(),
		CreatedAt:    r.StartedAt,
	}
}

// NewEngine creates a new backtest engine
func NewEngine(
	factors *s1_factors.Engine,
	filter *s2_universe.Filter,
	scorer *selection.Scorer,
	simulator *Simulator,
	evaluator *audit.Evaluator,
	logger *logger.Logger,
) *Engine {
	return &Engine{
		factors:   factors,
		filter:    filter,
		scorer:    scorer,
		simulator: simulator,
		evaluator: evaluator,
		logger:    logger,
	}
}

// NewDefaultEngine wires an engine with default stage settings
func NewDefaultEngine(periodsPerYear int, riskFreeRate float64, log *logger.Logger) *Engine {
	return NewEngine(
		s1_factors.NewEngine(s1_factors.DefaultConfig(), log),
		s2_universe.NewFilter(log),
		selection.NewScorer(log),
		NewSimulator(log),
		audit.NewEvaluator(periodsPerYear, riskFreeRate),
		log,
	)
}

// Prepare computes the factor columns once; the returned panel is shared read-only by runs
func (e *Engine) Prepare(raw *s0_data.Panel) (*s0_data.Panel, error) {
	start := time.Now()
	prepared, err := e.factors.Compute(raw)
	if err != nil {
		return nil, fmt.Errorf("compute factors: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"rows":     prepared.Len(),
		"columns":  len(prepared.NumericFields()),
		"version":  prepared.Version(),
		"duration": time.Since(start).String(),
	}).Info("Panel prepared")

	return prepared, nil
}

// Run executes one strategy over the requested range of a prepared panel
func (e *Engine) Run(ctx context.Context, prepared *s0_data.Panel, req strategyconfig.BacktestRequest) *Result {
	result := &Result{
		ID:           uuid.New(),
		Name:         req.Strategy.Name,
		Request:      req,
		PanelVersion: prepared.Version(),
		Series:       []contracts.DailyReturn{},
		StartedAt:    time.Now(),
	}
	if hash, err := strategyconfig.Hash(&req.Strategy); err == nil {
		result.ConfigHash = hash
	}

	log := e.logger.WithFields(map[string]interface{}{
		"run_id":      result.ID.String(),
		"strategy":    req.Strategy.Name,
		"start_date":  req.Data.StartDate,
		"end_date":    req.Data.EndDate,
		"hold_num":    req.Strategy.HoldNum,
		"stop_profit": req.Strategy.StopProfit,
	})
	log.Info("Starting backtest")

	if err := e.run(ctx, prepared, req, result); err != nil {
		result.Error = err.Error()
		result.Metrics = contracts.NeutralMetrics(result.Error)
		log.WithError(err).Warn("Backtest finished with error")
	} else if !result.Metrics.OK() {
		result.Error = result.Metrics.Error
		log.WithField("error", result.Error).Warn("Backtest produced no metrics")
	}
	result.Elapsed = time.Since(result.StartedAt)

	log.WithFields(map[string]interface{}{
		"days":          len(result.Series),
		"total_return":  result.Metrics.TotalReturn,
		"annual_return": result.Metrics.AnnualReturn,
		"max_drawdown":  result.Metrics.MaxDrawdown,
		"duration":      result.Elapsed.String(),
	}).Info("Backtest completed")

	return result
}

func (e *Engine) run(ctx context.Context, prepared *s0_data.Panel, req strategyconfig.BacktestRequest, result *Result) error {
	s := req.Strategy
	if err := strategyconfig.ValidateRequest(&req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	result.Warnings = strategyconfig.Warn(&s)

	// 1. 기간 슬라이스
	panel, err := prepared.Slice(req.Data.StartDate, req.Data.EndDate)
	if err != nil {
		return fmt.Errorf("slice panel: %w", err)
	}
	if panel.Len() == 0 {
		return fmt.Errorf("no data between %s and %s", req.Data.StartDate, req.Data.EndDate)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 2. 필터
	elig, err := e.filter.Apply(panel, s.ExcludeConditions, s.HoldNum)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	result.Filter = elig

	// 3. 점수 / 랭킹
	factors, err := scoreFactors(&s)
	if err != nil {
		return err
	}
	ranking, err := e.scorer.Score(panel, elig, factors)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	result.SkippedFactors = ranking.Skipped
	if err := ctx.Err(); err != nil {
		return err
	}

	// 4. 시뮬레이션 + 비용
	sim := e.simulator.Simulate(panel, ranking, s.HoldNum, s.StopProfit)
	if len(sim.Dates) == 0 {
		return fmt.Errorf("no trading signals generated")
	}
	costs := CostModel{FeeRate: s.FeeRate}.Costs(sim.Holdings)

	series := make([]contracts.DailyReturn, len(sim.Dates))
	for t, date := range sim.Dates {
		series[t] = contracts.DailyReturn{
			Date:     date,
			Raw:      sim.Raw[t],
			Cost:     costs[t],
			Net:      NetReturn(sim.Raw[t], costs[t]),
			Holdings: sim.Holdings[t],
		}
	}
	result.Series = series

	// 5. 성과 평가
	result.Metrics = e.evaluator.Evaluate(series, sim.Trades)
	return nil
}

// scoreFactors maps the strategy's parallel factor lists to scorer terms
func scoreFactors(s *strategyconfig.Strategy) ([]selection.Factor, error) {
	factors := make([]selection.Factor, len(s.ScoreFactors))
	for i, name := range s.ScoreFactors {
		mode := ""
		if i < len(s.ScoreModes) {
			mode = s.ScoreModes[i]
		}
		m, err := selection.ParseMode(mode)
		if err != nil {
			return nil, err
		}
		factors[i] = selection.Factor{Name: name, Weight: s.Weights[i], Mode: m}
	}
	return factors, nil
}
