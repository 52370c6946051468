package contracts

import "time"

// DataQualitySnapshot represents the quality of a loaded panel
// ⭐ SSOT: S0 → S1 데이터 품질 정보 전달
type DataQualitySnapshot struct {
	PanelVersion   string             `json:"panel_version"`
	StartDate      string             `json:"start_date"`
	EndDate        string             `json:"end_date"`
	TotalRows      int                `json:"total_rows"`
	Instruments    int                `json:"instruments"`
	Dates          int                `json:"dates"`
	Coverage       map[string]float64 `json:"coverage"`        // 필드별 커버리지
	OHLCViolations int                `json:"ohlc_violations"` // high/low 범위를 벗어난 행
	MinPerDate     int                `json:"min_per_date"`    // 가장 얇은 날짜의 종목 수
	ThinDates      []string           `json:"thin_dates"`
	QualityScore   float64            `json:"quality_score"` // 0.0 ~ 1.0
	Passed         bool               `json:"passed"`
	CheckedAt      time.Time          `json:"checked_at"`
}

// IsValid checks if the snapshot meets the minimum score
func (d *DataQualitySnapshot) IsValid(threshold float64) bool {
	return d.QualityScore >= threshold && d.TotalRows > 0
}

// CoverageRate returns the average coverage rate across all fields
func (d *DataQualitySnapshot) CoverageRate() float64 {
	if len(d.Coverage) == 0 {
		return 0.0
	}

	total := 0.0
	for _, rate := range d.Coverage {
		total += rate
	}

	return total / float64(len(d.Coverage))
}
