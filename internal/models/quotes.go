package models

import "time"

// QuoteConfig is a catalog row per product category. Read-only input to the
// pricing calculator.
type QuoteConfig struct {
	ID                   int64              `db:"id"`
	Category             string             `db:"category"`
	BasePrice            float64            `db:"base_price"`
	ComplexityMultiplier map[string]float64 `db:"complexity_multiplier"`
	MinQuantity          int                `db:"min_quantity"`
	MaxQuantity          int                `db:"max_quantity"`
	SamplingDays         int                `db:"sampling_days"`
	ProductionDaysPer100 int                `db:"production_days_per_100"`
}

// Quote is a priced request persisted for later order creation.
type Quote struct {
	ID            string    `db:"id"`
	RequestID     string    `db:"request_id"`
	Category      string    `db:"category"`
	Quantity      int       `db:"quantity"`
	Complexity    string    `db:"complexity"`
	FabricType    string    `db:"fabric_type"`
	UnitPrice     float64   `db:"unit_price"`
	TotalPrice    float64   `db:"total_price"`
	TimelineDays  int       `db:"timeline_days"`
	CustomerEmail string    `db:"customer_email"`
	CustomerName  string    `db:"customer_name"`
	AIInsights    string    `db:"ai_insights"`
	CreatedAt     time.Time `db:"created_at"`
}
