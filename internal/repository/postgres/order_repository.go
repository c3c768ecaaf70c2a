package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"sourcing-service/internal/client"
	"sourcing-service/internal/models"
	"sourcing-service/internal/util"
)

// OrderRepository covers orders and the invoices minted for them.
type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	SetPaymentIntent(ctx context.Context, orderID, customerID, intentID string, deposit, balance int64) error
	InsertInvoice(ctx context.Context, inv *models.Invoice) error
}

type orderRepository struct {
	db     *client.PostgresClient
	logger *zap.Logger
}

func NewOrderRepository(db *client.PostgresClient, logger *zap.Logger) OrderRepository {
	return &orderRepository{db: db, logger: logger}
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	const query = `
		SELECT id, buyer_id, buyer_email, quote_id, price, payment_status,
		       COALESCE(stripe_customer_id, ''), COALESCE(payment_intent_id, ''),
		       COALESCE(deposit_amount, 0), COALESCE(balance_amount, 0), created_at
		FROM orders
		WHERE id = $1`

	var order models.Order
	err := r.db.Pool.QueryRow(ctx, query, orderID).Scan(
		&order.ID, &order.BuyerID, &order.BuyerEmail, &order.QuoteID, &order.Price,
		&order.PaymentStatus, &order.StripeCustomerID, &order.PaymentIntentID,
		&order.DepositAmount, &order.BalanceAmount, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}

	return &order, nil
}

// SetPaymentIntent persists the provider ids and computed split back onto the
// order in one transaction so a crash cannot leave a half-written intent.
func (r *orderRepository) SetPaymentIntent(ctx context.Context, orderID, customerID, intentID string, deposit, balance int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		UPDATE orders
		SET stripe_customer_id = $2,
		    payment_intent_id  = $3,
		    deposit_amount     = $4,
		    balance_amount     = $5,
		    payment_status     = $6
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, orderID, customerID, intentID, deposit, balance, models.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update order payment intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment intent update: %w", err)
	}

	util.Debug("Payment intent persisted on order",
		zap.String("order_id", util.MaskOrderID(orderID)))

	return nil
}

func (r *orderRepository) InsertInvoice(ctx context.Context, inv *models.Invoice) error {
	const query = `
		INSERT INTO invoices (id, order_id, amount_cents, payment_type, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Pool.Exec(ctx, query,
		inv.ID, inv.OrderID, inv.AmountCents, inv.PaymentType, inv.DueDate, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	return nil
}
