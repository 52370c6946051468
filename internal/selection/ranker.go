package selection

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/cbquant/internal/contracts"
	"github.com/wonny/cbquant/internal/s0_data"
	"github.com/wonny/cbquant/internal/s1_factors"
	"github.com/wonny/cbquant/pkg/logger"
)

// Mode selects how a factor contributes to the composite score
type Mode string

const (
	ModeRankDesc Mode = "rank_desc" // 큰 값이 1위
	ModeRankAsc  Mode = "rank_asc"  // 작은 값이 1위
	ModeRaw      Mode = "raw"       // 값 × 가중치
)

// ParseMode maps a config string to a Mode; empty means rank_desc
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRankDesc:
		return ModeRankDesc, nil
	case ModeRankAsc:
		return ModeRankAsc, nil
	case ModeRaw:
		return ModeRaw, nil
	default:
		return "", fmt.Errorf("unknown score mode %q", s)
	}
}

// Factor is one weighted term of the composite score
type Factor struct {
	Name   string
	Weight float64
	Mode   Mode
}

// Scorer computes composite scores and per-date ordinal ranks.
// Lower score ranks first, so the weight sign sets the direction.
// ⭐ SSOT: 점수/랭킹 로직은 여기서만
type Scorer struct {
	logger *logger.Logger
}

// NewScorer creates a new scorer
func NewScorer(log *logger.Logger) *Scorer {
	return &Scorer{logger: log}
}

// Score ranks the eligible rows of every date
func (s *Scorer) Score(p *s0_data.Panel, elig *contracts.Eligibility, factors []Factor) (*contracts.Ranking, error) {
	if len(elig.Excluded) != p.Len() {
		return nil, fmt.Errorf("eligibility has %d rows, panel has %d", len(elig.Excluded), p.Len())
	}

	ranking := contracts.NewRanking(p.Len())

	type boundFactor struct {
		Factor
		col *s0_data.Series
	}
	bound := make([]boundFactor, 0, len(factors))
	for _, f := range factors {
		col, ok := p.Column(f.Name)
		if !ok {
			ranking.Skipped = append(ranking.Skipped, f.Name)
			s.logger.WithField("factor", f.Name).Warn("Unknown score factor, skipping")
			continue
		}
		mode := f.Mode
		if mode == "" {
			mode = ModeRankDesc
		}
		bound = append(bound, boundFactor{Factor: Factor{Name: f.Name, Weight: f.Weight, Mode: mode}, col: col})
	}

	var rows []int
	for k := range p.Dates() {
		rows = rows[:0]
		for _, i := range p.RowsAt(k) {
			if elig.Eligible(i) {
				rows = append(rows, i)
			}
		}
		if len(rows) == 0 {
			continue
		}

		score := make([]float64, len(rows))
		for _, f := range bound {
			contrib := contributions(f.col, rows, f.Weight, f.Mode)
			for j := range score {
				score[j] += contrib[j]
			}
		}

		// 최종 순위: 점수 오름차순, 동점은 입력 레코드 순서
		order := make([]int, len(rows))
		for j := range order {
			order[j] = j
		}
		sort.SliceStable(order, func(a, b int) bool {
			ja, jb := order[a], order[b]
			if score[ja] != score[jb] {
				return score[ja] < score[jb]
			}
			return p.Seq(rows[ja]) < p.Seq(rows[jb])
		})
		for pos, j := range order {
			ranking.Score[rows[j]] = score[j]
			ranking.Rank[rows[j]] = pos + 1
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"factors": len(bound),
		"skipped": len(ranking.Skipped),
		"dates":   len(p.Dates()),
	}).Debug("Scoring completed")

	return ranking, nil
}

// contributions returns weight × term for each row of one date.
// Missing values are filled explicitly with the worst term before weighting.
func contributions(col *s0_data.Series, rows []int, weight float64, mode Mode) []float64 {
	out := make([]float64, len(rows))

	var present []int
	var vals []float64
	for j, i := range rows {
		if v, ok := col.At(i); ok {
			present = append(present, j)
			vals = append(vals, v)
		}
	}

	if mode == ModeRaw {
		worst := 0.0
		if len(present) > 0 {
			worst = math.Inf(-1)
			for _, v := range vals {
				worst = math.Max(worst, v*weight)
			}
			worst += math.Abs(weight)
		}
		for j := range out {
			out[j] = worst
		}
		for n, j := range present {
			out[j] = vals[n] * weight
		}
		return out
	}

	if mode == ModeRankDesc {
		for n := range vals {
			vals[n] = -vals[n]
		}
	}
	ranks := s1_factors.AverageRanks(vals)

	// 결측: 당일 최대 순위 + 1 (관측값이 없으면 모두 1위로 동일 취급)
	fill := 1.0
	for _, r := range ranks {
		fill = math.Max(fill, r+1)
	}
	for j := range out {
		out[j] = fill * weight
	}
	for n, j := range present {
		out[j] = ranks[n] * weight
	}
	return out
}
