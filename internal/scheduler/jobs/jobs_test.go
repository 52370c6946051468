package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cbquant/internal/audit"
	"github.com/wonny/cbquant/internal/backtest"
	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/s0_data/quality"
	"github.com/wonny/cbquant/internal/scheduler"
	"github.com/wonny/cbquant/pkg/logger"
)

const batchYAML = `
data:
  start_date: "2024-01-02"
  end_date: "2024-01-31"
strategies:
  - name: quality_top2
    exclude_conditions: []
    score_factors: [quality]
    weights: [1]
    hold_num: 2
    stop_profit: 0.03
    fee_rate: 0.002
  - name: quality_bottom2
    exclude_conditions: []
    score_factors: [quality]
    weights: [-1]
    hold_num: 2
    stop_profit: 0.03
    fee_rate: 0.002
`

func testPanel(t *testing.T) *s0_data.Panel {
	t.Helper()
	tbl := s0_data.Table{
		Numeric: map[string][]float64{"quality": nil},
		Text:    map[string][]string{s0_data.FieldCallStatus: nil},
	}
	for _, f := range s0_data.RequiredNumeric {
		tbl.Numeric[f] = nil
	}
	for c, code := range []string{"110001", "110002", "113001", "113002", "123001"} {
		for d := 0; d < 6; d++ {
			cl := 100 + float64(c+d)
			tbl.Codes = append(tbl.Codes, code)
			tbl.Dates = append(tbl.Dates, time.Date(2024, 1, 2+d, 0, 0, 0, 0, time.UTC).Format("20060102"))
			tbl.Numeric[s0_data.FieldOpen] = append(tbl.Numeric[s0_data.FieldOpen], cl)
			tbl.Numeric[s0_data.FieldHigh] = append(tbl.Numeric[s0_data.FieldHigh], cl+1)
			tbl.Numeric[s0_data.FieldLow] = append(tbl.Numeric[s0_data.FieldLow], cl-1)
			tbl.Numeric[s0_data.FieldClose] = append(tbl.Numeric[s0_data.FieldClose], cl)
			tbl.Numeric[s0_data.FieldPreClose] = append(tbl.Numeric[s0_data.FieldPreClose], cl-1)
			tbl.Numeric[s0_data.FieldPctChg] = append(tbl.Numeric[s0_data.FieldPctChg], 1/(cl-1))
			tbl.Numeric[s0_data.FieldTurnover] = append(tbl.Numeric[s0_data.FieldTurnover], 1)
			tbl.Numeric[s0_data.FieldAmount] = append(tbl.Numeric[s0_data.FieldAmount], 1000)
			tbl.Numeric["quality"] = append(tbl.Numeric["quality"], float64(c))
			tbl.Text[s0_data.FieldCallStatus] = append(tbl.Text[s0_data.FieldCallStatus], "")
		}
	}
	p, err := s0_data.Load(tbl)
	require.NoError(t, err)
	return p
}

type staticPanels struct {
	panel   *s0_data.Panel
	reloads int
}

func (s *staticPanels) Reload(ctx context.Context) (*s0_data.Panel, error) {
	s.reloads++
	return s.panel, nil
}

func (s *staticPanels) Get() *s0_data.Panel {
	return s.panel
}

type savedRuns struct {
	recs []audit.RunRecord
}

func (s *savedRuns) SaveRuns(ctx context.Context, recs []audit.RunRecord) error {
	s.recs = append(s.recs, recs...)
	return nil
}

type savedSnapshots struct {
	snapshots []*contracts.DataQualitySnapshot
}

func (s *savedSnapshots) SaveSnapshot(ctx context.Context, snapshot *contracts.DataQualitySnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func TestNightlyBatchJob(t *testing.T) {
	dir := t.TempDir()
	batchFile := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(batchFile, []byte(batchYAML), 0o644))

	log := logger.Nop()
	engine := backtest.NewDefaultEngine(252, 0, log)
	panels := &staticPanels{panel: testPanel(t)}
	runs := &savedRuns{}

	job := NewNightlyBatchJob(panels, backtest.NewBatchRunner(engine, 2, log), runs,
		batchFile, filepath.Join(dir, "out"), "0 30 18 * * 1-5", log)
	job.now = func() time.Time { return time.Date(2024, 2, 1, 18, 30, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, "nightly_batch", job.Name())
	var timed scheduler.TimeoutJob = job
	assert.Equal(t, 2*time.Hour, timed.Timeout())
	assert.Equal(t, 1, panels.reloads)
	require.Len(t, runs.recs, 2)
	assert.Equal(t, "quality_top2", runs.recs[0].Name)
	assert.Empty(t, runs.recs[0].Error)

	_, err := os.Stat(filepath.Join(dir, "out", "batch_20240201.xlsx"))
	assert.NoError(t, err)
}

func TestNightlyBatchJob_MissingBatchFile(t *testing.T) {
	log := logger.Nop()
	engine := backtest.NewDefaultEngine(252, 0, log)
	panels := &staticPanels{panel: testPanel(t)}

	job := NewNightlyBatchJob(panels, backtest.NewBatchRunner(engine, 1, log), nil,
		filepath.Join(t.TempDir(), "missing.yaml"), t.TempDir(), "@daily", log)

	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, 0, panels.reloads, "panel is not reloaded for an unreadable batch")
}

func TestDataQualityJob(t *testing.T) {
	repo := &savedSnapshots{}
	job := NewDataQualityJob(&staticPanels{panel: testPanel(t)}, quality.NewValidator(quality.DefaultConfig()),
		repo, nil, "0 0 18 * * 1-5", logger.Nop())

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, repo.snapshots, 1)
	snap := repo.snapshots[0]
	assert.Equal(t, 30, snap.TotalRows)
	assert.True(t, snap.Passed)
}

func TestDataQualityJob_NoPanel(t *testing.T) {
	job := NewDataQualityJob(&staticPanels{}, quality.NewValidator(quality.DefaultConfig()),
		nil, nil, "@daily", logger.Nop())

	assert.Error(t, job.Run(context.Background()))
}
