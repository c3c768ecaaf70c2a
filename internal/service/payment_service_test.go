package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"sourcing-service/internal/auth"
	"sourcing-service/internal/models"
	"sourcing-service/internal/repository/postgres"
)

type fakeOrderRepo struct {
	orders    map[string]*models.Order
	invoices  []*models.Invoice
	setCalls  int
	insertErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*models.Order)}
}

func (f *fakeOrderRepo) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) SetPaymentIntent(_ context.Context, orderID, customerID, intentID string, deposit, balance int64) error {
	order, ok := f.orders[orderID]
	if !ok {
		return postgres.ErrNotFound
	}
	f.setCalls++
	order.StripeCustomerID = customerID
	order.PaymentIntentID = intentID
	order.DepositAmount = deposit
	order.BalanceAmount = balance
	order.PaymentStatus = models.PaymentStatusPending
	return nil
}

func (f *fakeOrderRepo) InsertInvoice(_ context.Context, inv *models.Invoice) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.invoices = append(f.invoices, inv)
	return nil
}

type fakeGateway struct {
	customers   int
	intents     int
	lastAmount  int64
	customerErr error
	intentErr   error
}

func (f *fakeGateway) EnsureCustomer(_ context.Context, existingID, _, _ string) (string, error) {
	if f.customerErr != nil {
		return "", f.customerErr
	}
	if existingID != "" {
		return existingID, nil
	}
	f.customers++
	return "cus_test", nil
}

func (f *fakeGateway) CreateIntent(_ context.Context, _ string, amountCents int64, _, _ string) (string, string, error) {
	if f.intentErr != nil {
		return "", "", f.intentErr
	}
	f.intents++
	f.lastAmount = amountCents
	return "pi_test", "pi_test_secret", nil
}

func buyerClaims() *auth.Claims {
	return &auth.Claims{UserID: "buyer-1", Email: "buyer@example.com", Role: "buyer"}
}

func newPaymentFixture(t *testing.T) (*PaymentService, *fakeOrderRepo, *fakeQuoteRepo, *fakeGateway) {
	t.Helper()

	orders := newFakeOrderRepo()
	orders.orders["order-1"] = &models.Order{
		ID:            "order-1",
		BuyerID:       "buyer-1",
		BuyerEmail:    "buyer@example.com",
		QuoteID:       "quote-1",
		Price:         926.25,
		PaymentStatus: models.PaymentStatusUnpaid,
	}
	quotes := newFakeQuoteRepo()
	quotes.totals["quote-1"] = 926.25
	gateway := &fakeGateway{}

	svc := NewPaymentService(orders, quotes, gateway, nil)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}
	return svc, orders, quotes, gateway
}

func TestCreateIntentDeposit(t *testing.T) {
	svc, orders, _, gateway := newPaymentFixture(t)

	result, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentDeposit,
		Claims:      buyerClaims(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// round(926.25 * 0.30 * 100)
	if result.AmountCents != 27788 {
		t.Errorf("AmountCents = %d, want 27788", result.AmountCents)
	}
	if result.ClientSecret != "pi_test_secret" {
		t.Errorf("ClientSecret = %q, want pi_test_secret", result.ClientSecret)
	}
	if gateway.customers != 1 {
		t.Errorf("customers created = %d, want 1", gateway.customers)
	}
	if orders.setCalls != 1 {
		t.Errorf("SetPaymentIntent calls = %d, want 1", orders.setCalls)
	}

	order := orders.orders["order-1"]
	if order.DepositAmount != 27788 || order.BalanceAmount != 64838 {
		t.Errorf("split = %d/%d, want 27788/64838", order.DepositAmount, order.BalanceAmount)
	}

	if len(orders.invoices) != 1 {
		t.Fatalf("invoices = %d, want 1", len(orders.invoices))
	}
	inv := orders.invoices[0]
	if inv.AmountCents != 27788 {
		t.Errorf("invoice amount = %d, want 27788", inv.AmountCents)
	}
	wantDue := time.Date(2026, 3, 21, 10, 0, 0, 0, time.UTC)
	if !inv.DueDate.Equal(wantDue) {
		t.Errorf("invoice due = %v, want %v", inv.DueDate, wantDue)
	}
}

func TestCreateIntentAmountsByType(t *testing.T) {
	tests := []struct {
		paymentType PaymentType
		want        int64
	}{
		{PaymentDeposit, 27788},
		{PaymentBalance, 64838},
		{PaymentFull, 92625},
	}

	for _, tt := range tests {
		t.Run(string(tt.paymentType), func(t *testing.T) {
			svc, _, _, gateway := newPaymentFixture(t)

			result, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
				OrderID:     "order-1",
				PaymentType: tt.paymentType,
				Claims:      buyerClaims(),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.AmountCents != tt.want {
				t.Errorf("AmountCents = %d, want %d", result.AmountCents, tt.want)
			}
			if gateway.lastAmount != tt.want {
				t.Errorf("gateway amount = %d, want %d", gateway.lastAmount, tt.want)
			}
		})
	}
}

func TestCreateIntentReusesExistingCustomer(t *testing.T) {
	svc, orders, _, gateway := newPaymentFixture(t)
	orders.orders["order-1"].StripeCustomerID = "cus_existing"

	if _, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentFull,
		Claims:      buyerClaims(),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gateway.customers != 0 {
		t.Errorf("customers created = %d, want 0", gateway.customers)
	}
	if orders.orders["order-1"].StripeCustomerID != "cus_existing" {
		t.Error("existing customer id was replaced")
	}
}

func TestCreateIntentForbiddenForOtherBuyer(t *testing.T) {
	svc, _, _, gateway := newPaymentFixture(t)

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentDeposit,
		Claims:      &auth.Claims{UserID: "intruder", Role: "buyer"},
	})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if gateway.intents != 0 {
		t.Error("no intent should be created for an unauthorized caller")
	}
}

func TestCreateIntentAdminAllowed(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(t)

	if _, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentDeposit,
		Claims:      &auth.Claims{UserID: "ops-1", Role: "admin"},
	}); err != nil {
		t.Fatalf("unexpected error for admin: %v", err)
	}
}

func TestCreateIntentPriceDrift(t *testing.T) {
	svc, _, quotes, _ := newPaymentFixture(t)
	// Just over half a percent off.
	quotes.totals["quote-1"] = 926.25 / 1.006

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentDeposit,
		Claims:      buyerClaims(),
	})
	if !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("expected ErrPriceMismatch, got %v", err)
	}
}

func TestCreateIntentTolerableDrift(t *testing.T) {
	svc, _, quotes, _ := newPaymentFixture(t)
	quotes.totals["quote-1"] = 926.25 * 1.004

	if _, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentDeposit,
		Claims:      buyerClaims(),
	}); err != nil {
		t.Fatalf("drift within tolerance should pass, got %v", err)
	}
}

func TestCreateIntentAmountTooLow(t *testing.T) {
	svc, orders, quotes, _ := newPaymentFixture(t)
	orders.orders["order-1"].Price = 2.50
	quotes.totals["quote-1"] = 2.50

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentDeposit,
		Claims:      buyerClaims(),
	})
	if !errors.Is(err, ErrAmountTooLow) {
		t.Fatalf("expected ErrAmountTooLow, got %v", err)
	}
}

func TestCreateIntentAlreadyPaid(t *testing.T) {
	svc, orders, _, _ := newPaymentFixture(t)
	orders.orders["order-1"].PaymentStatus = models.PaymentStatusPaid

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentBalance,
		Claims:      buyerClaims(),
	})
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestCreateIntentUnknownOrder(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(t)

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "missing",
		PaymentType: PaymentDeposit,
		Claims:      buyerClaims(),
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCreateIntentInvalidType(t *testing.T) {
	svc, _, _, _ := newPaymentFixture(t)

	_, err := svc.CreateIntent(context.Background(), PaymentIntentRequest{
		OrderID:     "order-1",
		PaymentType: PaymentType("installment"),
		Claims:      buyerClaims(),
	})
	if !errors.Is(err, ErrInvalidPaymentType) {
		t.Fatalf("expected ErrInvalidPaymentType, got %v", err)
	}
}
