package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt at the configured
// cost. Cost is taken from SecurityConfig.BcryptCost by callers.
func HashPassword(plain string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches the given bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// RandomToken returns a url-safe, uniformly distributed token with at
// least 128 bits of entropy. Used for email-verification/password-reset/
// CSRF/OAuth-state tokens.
func RandomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// PasswordPolicy is the single source of truth for what counts as an
// acceptable password. Consumed identically by registration, password
// reset, and password change so the rules never drift between entry
// points.
func PasswordPolicy(password string) (ok bool, reason string) {
	if len(password) < 8 {
		return false, "password must be at least 8 characters"
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsSpace(r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return false, "password must contain an uppercase letter, a lowercase letter, a digit, and a symbol"
	}
	if strings.TrimSpace(password) != password {
		return false, "password must not have leading or trailing whitespace"
	}
	return true, ""
}
