package sanitize

import (
	"strings"
	"unicode"
)

// SingleLine prepares a search keyword for a one-line input. Any newline
// would be sent as an Enter key and submit the form early, so line breaks,
// tabs and control characters collapse into single spaces.
func SingleLine(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	return strings.Join(fields, " ")
}

// KeyText prepares multi-line text (a cover letter) for keystroke entry.
// CRLF becomes LF and control characters other than newline and tab are
// dropped, since they map to no printable key.
func KeyText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
