package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sourcing-service/internal/provider"
	"sourcing-service/internal/service"
	"sourcing-service/internal/util"
)

// OTPHandler handles HTTP requests for code issuance and verification
type OTPHandler struct {
	otpService *service.OTPService
	logger     *zap.Logger
}

func NewOTPHandler(otpService *service.OTPService, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		otpService: otpService,
		logger:     logger,
	}
}

// RegisterRoutes registers the OTP routes
func (h *OTPHandler) RegisterRoutes(router chi.Router) {
	router.Post("/send-otp", h.SendOTP)
	router.Post("/verify-otp", h.VerifyOTP)
}

// Public clients send `type`; `channel` is accepted as an alias.
type sendOTPRequest struct {
	Type         string `json:"type"`
	Channel      string `json:"channel"`
	Identifier   string `json:"identifier"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Country      string `json:"country"`
	CaptchaToken string `json:"captchaToken"`
}

// Public clients send the code as `otp`; `code` is accepted as an alias.
type verifyOTPRequest struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	OTP        string `json:"otp"`
	Code       string `json:"code"`
}

// identifier resolves the submitted contact point: explicit identifier wins,
// otherwise whichever of email/phone was provided.
func resolveIdentifier(identifier, email, phone string) string {
	if identifier != "" {
		return identifier
	}
	if email != "" {
		return email
	}
	return phone
}

// resolveChannel prefers the documented `type` field over the `channel`
// alias and defaults to the quote email flow.
func resolveChannel(typ, channel string) service.Channel {
	if typ != "" {
		return service.Channel(typ)
	}
	if channel != "" {
		return service.Channel(channel)
	}
	return service.ChannelEmailQuote
}

// SendOTP issues a verification code
func (h *OTPHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	identifier := util.SanitizeInput(resolveIdentifier(req.Identifier, req.Email, req.Phone))
	channel := resolveChannel(req.Type, req.Channel)

	if identifier == "" {
		h.respondWithError(w, http.StatusBadRequest, "Email or phone number is required")
		return
	}
	switch channel {
	case service.ChannelPhone:
		normalized, ok := util.NormalizePhoneWithCountry(identifier, req.Country)
		if !ok {
			h.respondWithError(w, http.StatusBadRequest, "Invalid phone number")
			return
		}
		identifier = normalized
	case service.ChannelEmailQuote, service.ChannelEmailSupplier:
		if !util.ValidEmail(identifier) {
			h.respondWithError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
	default:
		h.respondWithError(w, http.StatusBadRequest, "Unsupported verification channel")
		return
	}

	result, err := h.otpService.Issue(ctx, service.IssueRequest{
		Identifier:   identifier,
		Channel:      channel,
		CaptchaToken: req.CaptchaToken,
		IPAddress:    r.RemoteAddr,
	})
	if err != nil {
		var limited *service.RateLimitedError
		switch {
		case errors.As(err, &limited):
			h.respondWithJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":      "A code was sent recently. Please wait before requesting another.",
				"retryAfter": int(limited.RetryAfter.Seconds()),
			})
		case errors.Is(err, service.ErrDailyCapReached):
			h.respondWithError(w, http.StatusTooManyRequests, "Daily verification limit reached. Please try again tomorrow.")
		case errors.Is(err, provider.ErrCaptchaFailed):
			h.respondWithError(w, http.StatusForbidden, "Captcha verification failed")
		case errors.Is(err, service.ErrDeliveryFailed):
			h.respondWithError(w, http.StatusBadGateway, "Failed to send verification code. Please try again.")
		case errors.Is(err, service.ErrInvalidChannel):
			h.respondWithError(w, http.StatusBadRequest, "Unsupported verification channel")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to send verification code")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
		"message":   "Verification code sent",
	})
	h.logger.Info("Verification code requested via HTTP",
		util.String("identifier", util.MaskIdentifier(identifier)),
		util.String("channel", string(channel)),
		util.Duration("duration", time.Since(startTime)),
	)
}

// VerifyOTP checks a submitted code
func (h *OTPHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	identifier := util.SanitizeInput(resolveIdentifier(req.Identifier, req.Email, req.Phone))
	channel := resolveChannel(req.Type, req.Channel)
	if channel == service.ChannelPhone {
		if normalized, ok := util.NormalizePhone(identifier); ok {
			identifier = normalized
		}
	}

	code := req.OTP
	if code == "" {
		code = req.Code
	}
	if identifier == "" || code == "" {
		h.respondWithError(w, http.StatusBadRequest, "Identifier and code are required")
		return
	}

	result, err := h.otpService.Verify(ctx, service.VerifyRequest{
		Identifier: identifier,
		Channel:    channel,
		Code:       code,
		IPAddress:  r.RemoteAddr,
	})
	if err != nil {
		var limited *service.RateLimitedError
		switch {
		case errors.As(err, &limited):
			h.respondWithJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":      "Too many verification attempts. Please try again later.",
				"retryAfter": int(limited.RetryAfter.Seconds()),
			})
		case errors.Is(err, service.ErrOTPNotFound):
			h.respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":    "No verification code found. Please request a new one.",
				"verified": false,
			})
		case errors.Is(err, service.ErrOTPExpired):
			h.respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":    "Verification code has expired. Please request a new one.",
				"verified": false,
			})
		case errors.Is(err, service.ErrMaxAttempts):
			h.respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":    "Maximum attempts exceeded. Please request a new code.",
				"verified": false,
			})
		case errors.Is(err, service.ErrCodeMismatch):
			resp := map[string]interface{}{
				"error":    "Incorrect verification code",
				"verified": false,
			}
			if result != nil {
				resp["attemptsRemaining"] = result.AttemptsRemaining
			}
			h.respondWithJSON(w, http.StatusBadRequest, resp)
		case errors.Is(err, service.ErrInvalidChannel):
			h.respondWithError(w, http.StatusBadRequest, "Unsupported verification channel")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Verification failed")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"verified": result.Verified,
	})
	h.logger.Info("Verification code accepted via HTTP",
		util.String("identifier", util.MaskIdentifier(identifier)),
		util.String("channel", string(channel)),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *OTPHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *OTPHandler) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, map[string]interface{}{"error": message})
}
