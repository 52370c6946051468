package s0_data

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical trade_date format inside a panel
const DateLayout = "20060102"

var dateLayouts = []string{
	DateLayout,
	"2006-01-02",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// NormalizeDate converts a supported date string to YYYYMMDD
func NormalizeDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", raw)
}

// ParseDate parses a canonical or ISO date into a time.Time (UTC)
func ParseDate(raw string) (time.Time, error) {
	norm, err := NormalizeDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(DateLayout, norm)
}

// ISODate renders a canonical date as YYYY-MM-DD.
// Inputs that are not canonical are returned unchanged.
func ISODate(canonical string) string {
	t, err := time.Parse(DateLayout, canonical)
	if err != nil {
		return canonical
	}
	return t.Format("2006-01-02")
}
