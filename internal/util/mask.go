package util

import "strings"

// PII masking for log output. Raw identifiers never reach log fields;
// the masked forms keep just enough shape for support correlation.

// MaskEmail keeps the first 3 characters of the local part plus the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 3 {
		return local + "***@" + domain
	}
	return local[:3] + "***@" + domain
}

// MaskPhone keeps the first 4 and last 2 digits.
func MaskPhone(phone string) string {
	if len(phone) <= 6 {
		return "***"
	}
	return phone[:4] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-2:]
}

// MaskOrderID keeps the first 8 characters of the order id.
func MaskOrderID(orderID string) string {
	if len(orderID) <= 8 {
		return orderID
	}
	return orderID[:8] + "..."
}

// MaskIdentifier picks the right masking based on identifier shape.
func MaskIdentifier(identifier string) string {
	if strings.Contains(identifier, "@") {
		return MaskEmail(identifier)
	}
	return MaskPhone(identifier)
}
