package util

import (
	"html"
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	dialCodePattern = regexp.MustCompile(`^[0-9]{1,3}$`)
)

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious flags common injection markers in free-form input
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	for _, c := range badChars {
		if strings.Contains(strings.ToLower(s), c) {
			return true
		}
	}
	return false
}

// ValidEmail reports whether s looks like a deliverable email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// NormalizePhone strips spaces and dashes and validates the digit form.
// Returns the normalized number and whether it is usable.
func NormalizePhone(s string) (string, bool) {
	return NormalizePhoneWithCountry(s, "")
}

// NormalizePhoneWithCountry additionally prefixes the country dial code when
// the number was submitted in national form. A country that does not look
// like a dial code is ignored.
func NormalizePhoneWithCountry(s, country string) (string, bool) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))

	if !strings.HasPrefix(cleaned, "+") {
		code := strings.TrimPrefix(strings.TrimSpace(country), "+")
		if dialCodePattern.MatchString(code) {
			cleaned = "+" + code + cleaned
		}
	}

	if !phonePattern.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}
