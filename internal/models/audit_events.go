package models

import "time"

// OTPAuditEvent is one verification attempt, written to ClickHouse for abuse
// monitoring independently of the OTP table.
type OTPAuditEvent struct {
	Bucket     int       `db:"bucket"`
	Identifier string    `db:"identifier"`
	Channel    string    `db:"channel"`
	Success    bool      `db:"success"`
	Reason     string    `db:"reason"`
	IPAddress  string    `db:"ip_address"`
	OccurredAt time.Time `db:"occurred_at"`
}
