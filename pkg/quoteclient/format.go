package quoteclient

import "fmt"

// Indicator is the direction shown next to a quote.
type Indicator int

const (
	Neutral Indicator = iota
	Up
	Down
)

// dead zone around zero so noise-level moves don't flicker
const indicatorThreshold = 0.1

func (i Indicator) String() string {
	switch i {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "neutral"
	}
}

// IndicatorFor maps a percent change to Up (> 0.1), Down (< -0.1) or Neutral.
func IndicatorFor(changePercent float64) Indicator {
	switch {
	case changePercent > indicatorThreshold:
		return Up
	case changePercent < -indicatorThreshold:
		return Down
	default:
		return Neutral
	}
}

// FormatChange renders "+1.40 (+0.42%)".
func FormatChange(change, changePercent float64) string {
	return fmt.Sprintf("%+.2f (%+.2f%%)", change, changePercent)
}
