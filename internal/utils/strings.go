package utils

import (
	"fmt"
	"unicode/utf8"
)

// DefaultMaxStringLength applies when TruncateString gets no usable limit.
const DefaultMaxStringLength = 500

// TruncateString cuts s to at most maxLen bytes without splitting a UTF-8
// sequence and notes the original length. maxLen <= 0 means
// DefaultMaxStringLength.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxStringLength
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", s[:cut], len(s))
}
