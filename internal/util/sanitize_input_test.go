package util

import "testing"

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"buyer@example.com", true},
		{"a@b.co", true},
		{"  padded@example.com  ", true},
		{"no-at-sign", false},
		{"two@@example.com", false},
		{"missing@tld", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidEmail(tt.email); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"+1 415 555-0123", "+14155550123", true},
		{"(415) 555-0123", "4155550123", true},
		{"12345", "", false},
		{"phone", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizePhone(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizePhone(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizePhoneWithCountry(t *testing.T) {
	tests := []struct {
		input   string
		country string
		want    string
		ok      bool
	}{
		{"415 555 0101", "1", "+14155550101", true},
		{"415 555 0101", "+1", "+14155550101", true},
		{"98765 43210", "91", "+919876543210", true},
		{"+14155550101", "44", "+14155550101", true},
		{"415 555 0101", "US", "4155550101", true},
		{"phone", "1", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizePhoneWithCountry(tt.input, tt.country)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizePhoneWithCountry(%q, %q) = (%q, %v), want (%q, %v)",
				tt.input, tt.country, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSanitizeInputEscapesMarkup(t *testing.T) {
	if got := SanitizeInput(" <script>alert(1)</script> "); got != "&lt;script&gt;alert(1)&lt;/script&gt;" {
		t.Errorf("SanitizeInput = %q", got)
	}
}

func TestContainsSuspicious(t *testing.T) {
	if !ContainsSuspicious(`<img onerror=x>`) {
		t.Error("expected markup to be flagged")
	}
	if ContainsSuspicious("plain cotton t-shirt") {
		t.Error("plain text should not be flagged")
	}
}
