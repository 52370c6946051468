package s1_factors

import "fmt"

// Config holds the window sets of the factor engine
type Config struct {
	NATRWindows        []int   `yaml:"natr_windows"`         // 1, 3, 5, 10, 20
	WilderWindows      []int   `yaml:"wilder_windows"`       // 14
	VolatilityWindows  []int   `yaml:"volatility_windows"`   // 5, 10, 20, 60
	CompoundWindows    []int   `yaml:"compound_windows"`     // 5, 20
	TurnoverWindows    []int   `yaml:"turnover_windows"`     // 5, 10, 20, 60
	MomentumWindows    []int   `yaml:"momentum_windows"`     // 20, 60
	RSWindows          []int   `yaml:"rs_windows"`           // 5, 20
	EventWindows       []int   `yaml:"event_windows"`        // 100, 250
	TurnoverPctWindows []int   `yaml:"turnover_pct_windows"` // 1, 5, 20, 50
	JumpThreshold      float64 `yaml:"jump_threshold"`       // high/pre_close − 1 > 0.025
	DropThreshold      float64 `yaml:"drop_threshold"`       // close/pre_close − 1 < −0.02
}

// DefaultConfig returns the standard factor windows
func DefaultConfig() Config {
	return Config{
		NATRWindows:        []int{1, 3, 5, 10, 20},
		WilderWindows:      []int{14},
		VolatilityWindows:  []int{5, 10, 20, 60},
		CompoundWindows:    []int{5, 20},
		TurnoverWindows:    []int{5, 10, 20, 60},
		MomentumWindows:    []int{20, 60},
		RSWindows:          []int{5, 20},
		EventWindows:       []int{100, 250},
		TurnoverPctWindows: []int{1, 5, 20, 50},
		JumpThreshold:      0.025,
		DropThreshold:      -0.02,
	}
}

// Validate checks that every window is positive
func (c Config) Validate() error {
	sets := map[string][]int{
		"natr_windows":         c.NATRWindows,
		"wilder_windows":       c.WilderWindows,
		"volatility_windows":   c.VolatilityWindows,
		"compound_windows":     c.CompoundWindows,
		"turnover_windows":     c.TurnoverWindows,
		"momentum_windows":     c.MomentumWindows,
		"rs_windows":           c.RSWindows,
		"event_windows":        c.EventWindows,
		"turnover_pct_windows": c.TurnoverPctWindows,
	}
	for name, windows := range sets {
		for _, n := range windows {
			if n <= 0 {
				return fmt.Errorf("%s: window must be positive, got %d", name, n)
			}
		}
	}
	return nil
}
