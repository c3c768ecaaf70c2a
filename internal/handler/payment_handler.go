package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sourcing-service/internal/auth"
	"sourcing-service/internal/service"
	"sourcing-service/internal/util"
)

// PaymentHandler handles HTTP requests for payment intent creation
type PaymentHandler struct {
	paymentService *service.PaymentService
	validator      *auth.Validator
	logger         *zap.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, validator *auth.Validator, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validator:      validator,
		logger:         logger,
	}
}

// RegisterRoutes registers the payment routes
func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/create-payment-intent", h.CreatePaymentIntent)
}

type paymentIntentRequest struct {
	OrderID     string `json:"orderId"`
	PaymentType string `json:"paymentType"`
}

// CreatePaymentIntent opens a Stripe payment intent for an order
func (h *PaymentHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	claims, err := h.validator.FromRequest(r)
	if err != nil {
		h.respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req paymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OrderID == "" {
		h.respondWithError(w, http.StatusBadRequest, "Order ID is required")
		return
	}
	if req.PaymentType == "" {
		req.PaymentType = string(service.PaymentDeposit)
	}

	result, err := h.paymentService.CreateIntent(ctx, service.PaymentIntentRequest{
		OrderID:     req.OrderID,
		PaymentType: service.PaymentType(req.PaymentType),
		Claims:      claims,
	})
	if err != nil {
		// Business-invariant violations surface as 400, signalling stale
		// client state.
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			h.respondWithError(w, http.StatusBadRequest, "Order not found")
		case errors.Is(err, service.ErrNotAuthorized):
			h.respondWithError(w, http.StatusForbidden, "You are not authorized to pay for this order")
		case errors.Is(err, service.ErrAlreadyPaid):
			h.respondWithError(w, http.StatusBadRequest, "Order is already paid")
		case errors.Is(err, service.ErrPriceMismatch):
			h.respondWithError(w, http.StatusBadRequest, "Order price does not match the quote. Please contact support.")
		case errors.Is(err, service.ErrAmountTooLow):
			h.respondWithError(w, http.StatusBadRequest, "Payment amount is too low")
		case errors.Is(err, service.ErrInvalidPaymentType):
			h.respondWithError(w, http.StatusBadRequest, "Payment type must be deposit, balance or full")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to create payment intent")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"clientSecret":    result.ClientSecret,
		"amount":          result.AmountCents,
		"paymentIntentId": result.PaymentIntentID,
	})
	h.logger.Info("Payment intent created via HTTP",
		util.String("order_id", util.MaskOrderID(req.OrderID)),
		util.String("payment_type", req.PaymentType),
		util.Int64("amount_cents", result.AmountCents),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *PaymentHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *PaymentHandler) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, map[string]interface{}{"error": message})
}
