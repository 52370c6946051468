package contracts

// Fill describes how a held position's next-day return was realized
type Fill string

const (
	FillClose      Fill = "close"       // close-to-close pct change
	FillStopProfit Fill = "stop_profit" // intraday high crossed the threshold
	FillGapOpen    Fill = "gap_open"    // opened above the threshold
)

// Trade is one realized one-day holding
type Trade struct {
	Code      string  `json:"code"`
	EntryDate string  `json:"entry_date"` // signal date (YYYY-MM-DD)
	ExitDate  string  `json:"exit_date"`  // next observation of the same instrument
	Rank      int     `json:"rank"`
	Return    float64 `json:"return"`
	Fill      Fill    `json:"fill"`
}

// DailyReturn is one point of the portfolio return series.
// Date is the signal date; the return is realized on the next observation.
type DailyReturn struct {
	Date     string   `json:"date"` // YYYYMMDD
	Raw      float64  `json:"raw"`
	Cost     float64  `json:"cost"`
	Net      float64  `json:"net"`
	Holdings []string `json:"holdings"`
}
