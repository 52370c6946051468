package contracts

import "math"

// Ranking holds composite scores and per-date ordinal ranks
// ⭐ SSOT: Scoring → Simulator 전달
type Ranking struct {
	Score   []float64 // NaN for excluded rows
	Rank    []int     // 1 = best within the date, 0 for excluded rows
	Skipped []string  // factors dropped because the column is unknown
}

// NewRanking allocates an empty ranking for n rows
func NewRanking(n int) *Ranking {
	score := make([]float64, n)
	for i := range score {
		score[i] = math.NaN()
	}
	return &Ranking{
		Score: score,
		Rank:  make([]int, n),
	}
}

// Selected is the holding signal: ranked and within the top holdNum
func (r *Ranking) Selected(row, holdNum int) bool {
	rank := r.Rank[row]
	return rank >= 1 && rank <= holdNum
}
