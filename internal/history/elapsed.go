package history

import (
	"fmt"
	"math"
)

// FormatElapsed renders a duration in seconds as "+DDd HHh MMm SSs",
// dropping leading units while they are zero. Non-finite input renders "-".
func FormatElapsed(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "-"
	}
	const (
		minute = 60
		hour   = 60 * minute
		day    = 24 * hour
	)
	t := int64(math.Floor(seconds))
	days := t / day
	hours := (t % day) / hour
	minutes := (t % hour) / minute
	secs := t % minute

	switch {
	case days > 0:
		return fmt.Sprintf("+%02dd %02dh %02dm %02ds", days, hours, minutes, secs)
	case hours > 0:
		return fmt.Sprintf("+%02dh %02dm %02ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("+%02dm %02ds", minutes, secs)
	default:
		return fmt.Sprintf("+%02ds", secs)
	}
}
