package events

import (
	"math"
	"strings"
	"unicode/utf8"
)

// TruncateErrorMessage shortens msg to at most MaxErrorMessageLength characters without
// splitting a multi-byte character. Blank messages become nil.
func TruncateErrorMessage(msg string) *string {
	if strings.TrimSpace(msg) == "" {
		return nil
	}
	if utf8.RuneCountInString(msg) > MaxErrorMessageLength {
		runes := []rune(msg)
		msg = string(runes[:MaxErrorMessageLength])
	}
	return &msg
}

// normalizeProcessingSeconds drops unusable durations and clamps negative ones to zero.
func normalizeProcessingSeconds(seconds *float64) *float64 {
	if seconds == nil || math.IsNaN(*seconds) || math.IsInf(*seconds, 0) {
		return nil
	}
	v := *seconds
	if v < 0 {
		v = 0
	}
	return &v
}
