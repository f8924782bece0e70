package util

import (
	"strings"
	"unicode/utf8"
)

// DefaultMessageLimit bounds persisted error text.
const DefaultMessageLimit = 500

// SanitizeMessage collapses whitespace to a single line and truncates to limit bytes
// without splitting a rune.
func SanitizeMessage(msg string, limit int) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if limit <= 0 || len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
