// Package util holds small helpers for the command-line output: generated
// passwords and human-readable durations.
package util

import (
	"fmt"
	"time"
)

// Uptime renders d as "HH:MM:SS", or "Nd HH:MM:SS" past a day. Negative
// durations render as zero.
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	hms := fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, hms)
	}
	return hms
}
