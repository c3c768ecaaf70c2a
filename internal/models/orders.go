package models

import "time"

// Payment states carried on an order.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Order references a buyer and the quote its price was computed from.
type Order struct {
	ID               string    `db:"id"`
	BuyerID          string    `db:"buyer_id"`
	BuyerEmail       string    `db:"buyer_email"`
	QuoteID          string    `db:"quote_id"`
	Price            float64   `db:"price"`
	PaymentStatus    string    `db:"payment_status"`
	StripeCustomerID string    `db:"stripe_customer_id"`
	PaymentIntentID  string    `db:"payment_intent_id"`
	DepositAmount    int64     `db:"deposit_amount"`
	BalanceAmount    int64     `db:"balance_amount"`
	CreatedAt        time.Time `db:"created_at"`
}

// Invoice is created alongside every payment intent, due 7 days out.
type Invoice struct {
	ID          string    `db:"id"`
	OrderID     string    `db:"order_id"`
	AmountCents int64     `db:"amount_cents"`
	PaymentType string    `db:"payment_type"`
	DueDate     time.Time `db:"due_date"`
	CreatedAt   time.Time `db:"created_at"`
}
