package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// CheckPassword compares candidate against a bcrypt hash when one is set,
// otherwise against the plain configured password.
func CheckPassword(plain, hash, candidate string) bool {
	if candidate == "" {
		return false
	}
	if hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
	}
	if plain == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(candidate)) == 1
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
