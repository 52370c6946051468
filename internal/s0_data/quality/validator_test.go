package quality

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cbquant/internal/s0_data"
)

func buildPanel(t *testing.T, rows int, mutate func(*s0_data.Table)) *s0_data.Panel {
	t.Helper()

	tbl := s0_data.Table{
		Numeric: map[string][]float64{},
		Text:    map[string][]string{s0_data.FieldCallStatus: make([]string, rows)},
	}
	for _, f := range s0_data.RequiredNumeric {
		tbl.Numeric[f] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		tbl.Codes = append(tbl.Codes, string(rune('A'+i%2)))
		tbl.Dates = append(tbl.Dates, []string{"20240102", "20240103", "20240104"}[i/2%3])
		tbl.Numeric[s0_data.FieldOpen][i] = 100
		tbl.Numeric[s0_data.FieldHigh][i] = 102
		tbl.Numeric[s0_data.FieldLow][i] = 99
		tbl.Numeric[s0_data.FieldClose][i] = 101
		tbl.Numeric[s0_data.FieldPreClose][i] = 100
		tbl.Numeric[s0_data.FieldPctChg][i] = 0.01
		tbl.Numeric[s0_data.FieldTurnover][i] = 1
		tbl.Numeric[s0_data.FieldAmount][i] = 1000
	}
	if mutate != nil {
		mutate(&tbl)
	}

	p, err := s0_data.Load(tbl)
	require.NoError(t, err)
	return p
}

func TestValidator_CleanPanel(t *testing.T) {
	v := NewValidator(Config{MinScore: 0.9, MinInstrumentsPerDate: 2})
	snapshot := v.Check(buildPanel(t, 6, nil))

	assert.Equal(t, 6, snapshot.TotalRows)
	assert.Equal(t, 2, snapshot.Instruments)
	assert.Equal(t, 3, snapshot.Dates)
	assert.Equal(t, "2024-01-02", snapshot.StartDate)
	assert.Equal(t, "2024-01-04", snapshot.EndDate)
	assert.Equal(t, 0, snapshot.OHLCViolations)
	assert.Equal(t, 2, snapshot.MinPerDate)
	assert.Empty(t, snapshot.ThinDates)
	assert.InDelta(t, 1.0, snapshot.QualityScore, 1e-9)
	assert.True(t, snapshot.Passed)
}

func TestValidator_Degraded(t *testing.T) {
	p := buildPanel(t, 6, func(tbl *s0_data.Table) {
		tbl.Numeric[s0_data.FieldClose][0] = math.NaN()
		tbl.Numeric[s0_data.FieldClose][1] = math.NaN()
		tbl.Numeric[s0_data.FieldHigh][2] = 90 // below open/close
	})

	v := NewValidator(Config{MinScore: 0.95, MinInstrumentsPerDate: 3})
	snapshot := v.Check(p)

	assert.InDelta(t, 4.0/6.0, snapshot.Coverage[s0_data.FieldClose], 1e-9)
	assert.Equal(t, 1, snapshot.OHLCViolations)
	assert.Len(t, snapshot.ThinDates, 3)
	assert.Less(t, snapshot.QualityScore, 0.95)
	assert.False(t, snapshot.Passed)
}

func TestValidator_calculateScore(t *testing.T) {
	v := NewValidator(DefaultConfig())

	full := map[string]float64{}
	for k := range coverageWeights {
		full[k] = 1.0
	}
	assert.InDelta(t, 1.0, v.calculateScore(full, 0, 10), 1e-9)
	assert.InDelta(t, 0.9, v.calculateScore(full, 1, 10), 1e-9)

	onlyClose := map[string]float64{s0_data.FieldClose: 1.0}
	assert.InDelta(t, 0.20, v.calculateScore(onlyClose, 0, 10), 1e-9)
}

func TestRepository_SaveSnapshot(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	for _, stmt := range Schema {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	snapshot := NewValidator(DefaultConfig()).Check(buildPanel(t, 6, nil))
	repo := NewRepository(pool)
	require.NoError(t, repo.SaveSnapshot(ctx, snapshot))

	latest, err := repo.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot.PanelVersion, latest.PanelVersion)
	assert.InDelta(t, snapshot.QualityScore, latest.QualityScore, 1e-9)
}
