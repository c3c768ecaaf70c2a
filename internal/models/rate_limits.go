package models

import "time"

// RateLimit is one counter row for a (identifier, kind) pair within a window.
type RateLimit struct {
	ID           int64     `db:"id"`
	Identifier   string    `db:"identifier"`
	Kind         string    `db:"kind"`
	WindowStart  time.Time `db:"window_start"`
	RequestCount int       `db:"request_count"`
}
