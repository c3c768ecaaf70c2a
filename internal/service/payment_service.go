package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sourcing-service/internal/auth"
	"sourcing-service/internal/models"
	"sourcing-service/internal/repository/postgres"
	"sourcing-service/internal/util"
)

// PaymentType selects how much of the order total is charged now.
type PaymentType string

const (
	PaymentDeposit PaymentType = "deposit"
	PaymentBalance PaymentType = "balance"
	PaymentFull    PaymentType = "full"
)

const (
	depositFraction = 0.30
	balanceFraction = 0.70

	// Orders may drift from their quote by at most half a percent before a
	// payment is refused.
	priceTolerance = 0.005

	minChargeCents = 100
	invoiceDueDays = 7
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotAuthorized      = errors.New("caller is not allowed to pay for this order")
	ErrPriceMismatch      = errors.New("order price does not match the underlying quote")
	ErrAmountTooLow       = errors.New("payment amount is below the minimum charge")
	ErrAlreadyPaid        = errors.New("order is already paid")
	ErrInvalidPaymentType = errors.New("invalid payment type")
)

// StripeGateway is the slice of the payment provider the service depends on.
type StripeGateway interface {
	EnsureCustomer(ctx context.Context, existingID, email, userID string) (string, error)
	CreateIntent(ctx context.Context, customerID string, amountCents int64, orderID, paymentType string) (string, string, error)
}

type PaymentIntentRequest struct {
	OrderID     string
	PaymentType PaymentType
	Claims      *auth.Claims
}

type PaymentIntentResult struct {
	ClientSecret    string
	AmountCents     int64
	PaymentIntentID string
}

// PaymentService opens Stripe payment intents against verified orders. It
// cross-checks the order price against the persisted quote before any money
// moves.
type PaymentService struct {
	orders  postgres.OrderRepository
	quotes  postgres.QuoteRepository
	gateway StripeGateway
	logger  *zap.Logger
	now     func() time.Time
}

func NewPaymentService(
	orders postgres.OrderRepository,
	quotes postgres.QuoteRepository,
	gateway StripeGateway,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		orders:  orders,
		quotes:  quotes,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateIntent runs the full payment handshake: authorization, price
// integrity, amount split, provider calls, then persistence of the intent and
// its invoice.
func (s *PaymentService) CreateIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntentResult, error) {
	if req.Claims == nil {
		return nil, auth.ErrMissingToken
	}
	if req.PaymentType != PaymentDeposit && req.PaymentType != PaymentBalance && req.PaymentType != PaymentFull {
		return nil, ErrInvalidPaymentType
	}

	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if order.BuyerID != req.Claims.UserID && !req.Claims.IsAdmin() {
		util.Warn("Payment attempt rejected for foreign order",
			zap.String("order_id", util.MaskOrderID(order.ID)),
			zap.String("caller", req.Claims.UserID))
		return nil, ErrNotAuthorized
	}

	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, ErrAlreadyPaid
	}

	quoteTotal, err := s.quotes.GetQuoteTotal(ctx, order.QuoteID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrPriceMismatch
		}
		return nil, err
	}
	if math.Abs(order.Price-quoteTotal) > priceTolerance*quoteTotal {
		util.Warn("Order price drifted from quote",
			zap.String("order_id", util.MaskOrderID(order.ID)),
			zap.Float64("order_price", order.Price),
			zap.Float64("quote_total", quoteTotal))
		return nil, ErrPriceMismatch
	}

	totalCents := int64(math.Round(order.Price * 100))
	depositCents := int64(math.Round(order.Price * depositFraction * 100))
	balanceCents := int64(math.Round(order.Price * balanceFraction * 100))

	var amountCents int64
	switch req.PaymentType {
	case PaymentDeposit:
		amountCents = depositCents
	case PaymentBalance:
		amountCents = balanceCents
	case PaymentFull:
		amountCents = totalCents
	}
	if amountCents < minChargeCents {
		return nil, fmt.Errorf("%w: %d cents", ErrAmountTooLow, amountCents)
	}

	customerID, err := s.gateway.EnsureCustomer(ctx, order.StripeCustomerID, order.BuyerEmail, order.BuyerID)
	if err != nil {
		return nil, err
	}

	intentID, clientSecret, err := s.gateway.CreateIntent(ctx, customerID, amountCents, order.ID, string(req.PaymentType))
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetPaymentIntent(ctx, order.ID, customerID, intentID, depositCents, balanceCents); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	invoice := &models.Invoice{
		ID:          uuid.New().String(),
		OrderID:     order.ID,
		AmountCents: amountCents,
		PaymentType: string(req.PaymentType),
		DueDate:     now.AddDate(0, 0, invoiceDueDays),
		CreatedAt:   now,
	}
	if err := s.orders.InsertInvoice(ctx, invoice); err != nil {
		util.Warn("Failed to record invoice for payment intent",
			zap.String("order_id", util.MaskOrderID(order.ID)),
			zap.Error(err))
	}

	util.Info("Payment intent created",
		zap.String("order_id", util.MaskOrderID(order.ID)),
		zap.String("payment_type", string(req.PaymentType)),
		zap.Int64("amount_cents", amountCents))

	return &PaymentIntentResult{
		ClientSecret:    clientSecret,
		AmountCents:     amountCents,
		PaymentIntentID: intentID,
	}, nil
}
