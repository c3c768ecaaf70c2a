package models

import "time"

// Delivery states recorded on an OTP row after dispatch.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// OTPCode is one issued verification code. Rows are never deleted; a newer
// row for the same identifier supersedes older unverified ones.
type OTPCode struct {
	ID             int64     `db:"id"`
	Identifier     string    `db:"identifier"`
	Channel        string    `db:"channel"`
	Code           string    `db:"code"`
	ExpiresAt      time.Time `db:"expires_at"`
	Verified       bool      `db:"verified"`
	AttemptCount   int       `db:"attempt_count"`
	DeliveryStatus string    `db:"delivery_status"`
	DeliveryError  string    `db:"delivery_error"`
	CreatedAt      time.Time `db:"created_at"`
}
