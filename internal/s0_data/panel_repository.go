package s0_data

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PanelSchema creates the daily convertible-bond panel table
var PanelSchema = []string{
	`CREATE SCHEMA IF NOT EXISTS data`,
	`CREATE TABLE IF NOT EXISTS data.cb_daily (
		code       TEXT             NOT NULL,
		trade_date DATE             NOT NULL,
		open       DOUBLE PRECISION,
		high       DOUBLE PRECISION,
		low        DOUBLE PRECISION,
		close      DOUBLE PRECISION,
		pre_close  DOUBLE PRECISION,
		pct_chg    DOUBLE PRECISION,
		turnover   DOUBLE PRECISION,
		amount     DOUBLE PRECISION,
		is_call    TEXT             NOT NULL DEFAULT '',
		attrs      JSONB            NOT NULL DEFAULT '{}'::jsonb,
		PRIMARY KEY (code, trade_date)
	)`,
}

// PanelRepository reads panel rows from PostgreSQL
// ⭐ SSOT: 패널 DB 조회는 여기서만
type PanelRepository struct {
	pool *pgxpool.Pool
}

// NewPanelRepository creates a new panel repository
func NewPanelRepository(pool *pgxpool.Pool) *PanelRepository {
	return &PanelRepository{pool: pool}
}

// LoadRange reads all rows between from and to (inclusive) as a raw table.
// Extra numeric attributes stored in attrs become columns; rows without one get NaN.
func (r *PanelRepository) LoadRange(ctx context.Context, from, to time.Time) (Table, error) {
	query := `
		SELECT code, trade_date, open, high, low, close, pre_close, pct_chg,
		       turnover, amount, is_call, attrs
		FROM data.cb_daily
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY code, trade_date
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return Table{}, fmt.Errorf("query panel: %w", err)
	}
	defer rows.Close()

	t := Table{
		Numeric: make(map[string][]float64),
		Text:    map[string][]string{FieldCallStatus: nil},
	}
	for _, name := range RequiredNumeric {
		t.Numeric[name] = nil
	}
	var extras []map[string]float64

	for rows.Next() {
		var (
			code      string
			tradeDate time.Time
			fixed     [8]*float64
			isCall    string
			attrsJSON []byte
		)
		if err := rows.Scan(
			&code, &tradeDate,
			&fixed[0], &fixed[1], &fixed[2], &fixed[3], &fixed[4], &fixed[5], &fixed[6], &fixed[7],
			&isCall, &attrsJSON,
		); err != nil {
			return Table{}, fmt.Errorf("scan panel row: %w", err)
		}

		t.Codes = append(t.Codes, code)
		t.Dates = append(t.Dates, tradeDate.Format(DateLayout))
		for k, name := range RequiredNumeric {
			t.Numeric[name] = append(t.Numeric[name], nullableFloat(fixed[k]))
		}
		t.Text[FieldCallStatus] = append(t.Text[FieldCallStatus], isCall)

		attrs := map[string]float64{}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &attrs); err != nil {
				return Table{}, fmt.Errorf("decode attrs for %s %s: %w", code, tradeDate.Format("2006-01-02"), err)
			}
		}
		extras = append(extras, attrs)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate panel rows: %w", err)
	}

	for _, name := range attrNames(extras) {
		col := make([]float64, len(extras))
		for i, attrs := range extras {
			if v, ok := attrs[name]; ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		t.Numeric[name] = col
	}

	return t, nil
}

// Count returns the number of stored rows
func (r *PanelRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM data.cb_daily`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count panel rows: %w", err)
	}
	return n, nil
}

func nullableFloat(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func attrNames(extras []map[string]float64) []string {
	seen := map[string]struct{}{}
	for _, attrs := range extras {
		for name := range attrs {
			seen[name] = struct{}{}
		}
	}
	reserved := map[string]bool{FieldCode: true, FieldDate: true, FieldCallStatus: true}
	for _, name := range RequiredNumeric {
		reserved[name] = true
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		if !reserved[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
