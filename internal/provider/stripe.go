package provider

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"

	"sourcing-service/internal/config"
	"sourcing-service/internal/util"
)

// StripeGateway wraps the Stripe API surface the payment flow needs: customer
// reuse and payment intent creation.
type StripeGateway struct {
	api    *stripeclient.API
	logger *zap.Logger
}

func NewStripeGateway(cfg *config.Config, logger *zap.Logger) *StripeGateway {
	api := &stripeclient.API{}
	api.Init(cfg.Providers.StripeSecretKey, nil)

	return &StripeGateway{api: api, logger: logger}
}

// EnsureCustomer returns the existing Stripe customer id or creates a new
// customer keyed to the buyer.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, existingID, email, userID string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe customer: %w", err)
	}

	util.Debug("Stripe customer created",
		zap.String("email", util.MaskEmail(email)))

	return customer.ID, nil
}

// CreateIntent opens a payment intent for the given amount in cents.
func (g *StripeGateway) CreateIntent(ctx context.Context, customerID string, amountCents int64, orderID, paymentType string) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID)
	params.AddMetadata("payment_type", paymentType)

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create payment intent: %w", err)
	}

	return intent.ID, intent.ClientSecret, nil
}
