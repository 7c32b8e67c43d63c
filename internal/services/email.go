package services

import (
	"net/mail"
	"strings"
)

// NormEmail lower-cases and trims an address. ok is false when it does not parse.
func NormEmail(s string) (string, bool) {
	e := strings.TrimSpace(strings.ToLower(s))
	if e == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return e, false
	}
	return e, true
}
