package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"
)

var strictPolicy = bluemonday.StrictPolicy()

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// IsValidRole checks if an admin dashboard role is valid
func IsValidRole(role string) bool {
	switch role {
	case "admin", "viewer":
		return true
	}
	return false
}

// SanitizeString removes dangerous characters from string
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	return strings.TrimSpace(input)
}

// StripMarkup drops every HTML tag from input and returns plain text.
// bluemonday escapes what it keeps, so the result is unescaped once.
// Only for authored text such as schema labels: a stray "<" swallows
// everything up to the next ">".
func StripMarkup(input string) string {
	return html.UnescapeString(strictPolicy.Sanitize(input))
}

// EscapeHTML makes text safe for messaging APIs that parse HTML. Nothing is
// removed, so submitted values reach the message intact.
func EscapeHTML(input string) string {
	return html.EscapeString(input)
}
