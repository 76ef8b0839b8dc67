package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailPattern = regexp.MustCompile(`^.+@.+\..+$`)

// NormalizeEmail lowercases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	return len(email) < 256 && emailPattern.MatchString(email)
}

// ValidUsername accepts 4 to 31 characters with no surrounding whitespace.
func ValidUsername(username string) bool {
	n := utf8.RuneCountInString(username)
	return n > 3 && n < 32 && strings.TrimSpace(username) == username
}

func ValidPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= 8 && n <= 255
}
