package provider

import "strings"

var transientMarkers = []string{
	"rate_limit",
	"rate limit",
	"too many requests",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"service unavailable",
	"status 429",
	"status 502",
	"status 503",
	"status 504",
}

// IsTransient reports whether a provider error looks retryable: rate limit,
// timeout, or availability signatures in the response.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
