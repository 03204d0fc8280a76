package helpers

import (
	"strings"
	"unicode"
)

// Lines splits rendered cell text into trimmed lines, dropping empty ones
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Digits keeps only the decimal digits of s
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// CleanNumber strips whitespace, thousands separators and a leading plus sign
func CleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimPrefix(s, "+")
}
