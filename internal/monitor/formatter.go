package monitor

import (
	"fmt"
	"time"
)

// FormatPercentage formats a percentage value as "X.X%".
func FormatPercentage(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatAge formats a duration as "Xd Yh", "Xh Ym" or "Xm".
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	days := seconds / 86400
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, (seconds%86400)/3600)
	}
	return FormatDuration(seconds)
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
