package services

import (
	"regexp"
	"strings"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, ., (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-.\s\(\)]+$`)
	reE164    = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// NormPhone normalizes a phone number to E.164. Ten-digit numbers and
// eleven-digit numbers with a leading 1 are treated as North American.
// Returns "" when the input cannot be a phone number.
func NormPhone(p string) string {
	s := strings.TrimSpace(p)
	if s == "" || reLetters.MatchString(s) || !reAllowed.MatchString(s) {
		return ""
	}

	repl := strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "\t", "")
	s = repl.Replace(s)

	// 00.. -> +..
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		switch {
		case len(s) == 10:
			s = "+1" + s
		case len(s) == 11 && s[0] == '1':
			s = "+" + s
		default:
			s = "+" + s
		}
	}
	if !reE164.MatchString(s) {
		return ""
	}
	return s
}
