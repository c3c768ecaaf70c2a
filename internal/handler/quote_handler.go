package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sourcing-service/internal/auth"
	"sourcing-service/internal/search"
	"sourcing-service/internal/service"
	"sourcing-service/internal/util"
)

// QuoteHandler handles HTTP requests for quote generation and back-office
// quote search
type QuoteHandler struct {
	quoteService *service.QuoteService
	limiter      *service.RateLimiter
	validator    *auth.Validator
	indexer      *search.QuoteIndexer
	logger       *zap.Logger
}

func NewQuoteHandler(
	quoteService *service.QuoteService,
	limiter *service.RateLimiter,
	validator *auth.Validator,
	indexer *search.QuoteIndexer,
	logger *zap.Logger,
) *QuoteHandler {
	return &QuoteHandler{
		quoteService: quoteService,
		limiter:      limiter,
		validator:    validator,
		indexer:      indexer,
		logger:       logger,
	}
}

// RegisterRoutes registers the quote routes
func (h *QuoteHandler) RegisterRoutes(router chi.Router) {
	router.Post("/ai-quote-generator", h.GenerateQuote)
	router.Get("/quotes/search", h.SearchQuotes)
}

// Public clients send `complexityLevel`, `customerEmail` and `customerName`;
// the short forms are accepted as aliases.
type quoteRequest struct {
	ProductType     string `json:"productType"`
	Quantity        int    `json:"quantity"`
	ComplexityLevel string `json:"complexityLevel"`
	Complexity      string `json:"complexity"`
	FabricType      string `json:"fabricType"`
	CustomerEmail   string `json:"customerEmail"`
	Email           string `json:"email"`
	CustomerName    string `json:"customerName"`
	Name            string `json:"name"`
	SessionID       string `json:"sessionId"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GenerateQuote prices a bulk order request
func (h *QuoteHandler) GenerateQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	requestID := uuid.New().String()

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", requestID, false)
		return
	}

	email := util.SanitizeInput(firstNonEmpty(req.CustomerEmail, req.Email))
	name := util.SanitizeInput(firstNonEmpty(req.CustomerName, req.Name))
	complexity := firstNonEmpty(req.ComplexityLevel, req.Complexity)
	req.ProductType = util.SanitizeInput(req.ProductType)
	if req.ProductType == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Product type is required", requestID, false)
		return
	}
	if email == "" {
		h.respondWithError(w, http.StatusBadRequest, "EMAIL_REQUIRED", "Customer email is required", requestID, false)
		return
	}
	if !util.ValidEmail(email) {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address", requestID, false)
		return
	}

	if !h.checkQuoteLimits(w, r, req.SessionID, requestID) {
		return
	}

	result, err := h.quoteService.Price(ctx, service.PriceRequest{
		RequestID:     requestID,
		ProductType:   req.ProductType,
		Quantity:      req.Quantity,
		Complexity:    complexity,
		FabricType:    req.FabricType,
		CustomerEmail: email,
		CustomerName:  name,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuantityOutOfRange):
			h.respondWithError(w, http.StatusBadRequest, "INVALID_QUANTITY", "Quantity must be between 50 and 100000 units", requestID, false)
		case errors.Is(err, service.ErrConfigNotFound):
			h.respondWithError(w, http.StatusNotFound, "CONFIG_NOT_FOUND", "We do not have pricing for this product yet. Our team will follow up.", requestID, false)
		default:
			h.respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate quote. Please try again.", requestID, true)
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"quote": map[string]interface{}{
			"category":   result.Quote.Category,
			"quantity":   result.Quote.Quantity,
			"complexity": result.Quote.Complexity,
			"fabricType": result.Quote.FabricType,
			"unitPrice":  result.Quote.UnitPrice,
			"totalPrice": result.Quote.TotalPrice,
		},
		"timeline":   result.Timeline,
		"aiInsights": result.Insights,
		"requestId":  requestID,
	})
	h.logger.Info("Quote generated via HTTP",
		util.String("request_id", requestID),
		util.String("category", result.Quote.Category),
		util.Int("quantity", result.Quote.Quantity),
		util.Bool("ai_used", result.AIUsed),
		util.Duration("duration", time.Since(startTime)),
	)
}

// checkQuoteLimits applies the three quote ceilings: per IP, per session and,
// when a valid token is present, per user. Writes the 429 itself on denial.
func (h *QuoteHandler) checkQuoteLimits(w http.ResponseWriter, r *http.Request, sessionID, requestID string) bool {
	ctx := r.Context()

	type limitCheck struct {
		identifier string
		kind       service.WindowKind
	}

	checks := []limitCheck{{clientIP(r), service.WindowQuoteIP}}
	if sessionID != "" {
		checks = append(checks, limitCheck{sessionID, service.WindowQuoteSession})
	}
	if claims, err := h.validator.FromRequest(r); err == nil {
		checks = append(checks, limitCheck{claims.UserID, service.WindowQuoteUser})
	}

	for _, check := range checks {
		if check.identifier == "" {
			continue
		}
		decision, err := h.limiter.CheckAndIncrement(ctx, check.identifier, check.kind)
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate quote. Please try again.", requestID, true)
			return false
		}
		if !decision.Allowed {
			h.respondWithJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":      "Daily quote limit reached. Please try again tomorrow.",
				"code":       "RATE_LIMITED",
				"requestId":  requestID,
				"retryAfter": int(decision.RetryAfter.Seconds()),
				"retryable":  true,
			})
			return false
		}
	}

	return true
}

// SearchQuotes serves the back-office quote search, admin only
func (h *QuoteHandler) SearchQuotes(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	claims, err := h.validator.FromRequest(r)
	if err != nil {
		h.respondWithError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required", requestID, false)
		return
	}
	if !claims.IsAdmin() {
		h.respondWithError(w, http.StatusForbidden, "ADMIN_REQUIRED", "Admin access required", requestID, false)
		return
	}

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Query parameter q is required", requestID, false)
		return
	}

	docs, err := h.indexer.Search(r.Context(), term, 20)
	if err != nil {
		h.logger.Error("Quote search failed", util.ErrorField(err))
		h.respondWithError(w, http.StatusInternalServerError, "SEARCH_FAILED", "Search failed", requestID, true)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": docs,
	})
}

// clientIP strips the port so the IP window keys stay stable across
// connections. RealIP middleware has already resolved proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *QuoteHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError writes the error envelope: a generic message, a short
// internal code and the per-invocation request id for support correlation.
func (h *QuoteHandler) respondWithError(w http.ResponseWriter, statusCode int, code, message, requestID string, retryable bool) {
	h.respondWithJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"code":      code,
		"requestId": requestID,
		"retryable": retryable,
	})
}
