package utils

import (
	"fmt"
	"math"
)

// FormatTimestamp formats seconds as HH:MM:SS.mmm, a form ffmpeg accepts for -t and -ss
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))

	h := totalMs / 3600000
	m := (totalMs % 3600000) / 60000
	s := (totalMs % 60000) / 1000
	ms := totalMs % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
