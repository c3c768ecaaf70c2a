package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/config"
	"sourcing-service/internal/models"
	"sourcing-service/internal/repository/postgres"
	"sourcing-service/internal/service"
)

// In-memory repositories so the HTTP surface can be exercised end to end
// without Postgres.

type memOTPRepo struct {
	recs   map[int64]*models.OTPCode
	nextID int64
}

func newMemOTPRepo() *memOTPRepo {
	return &memOTPRepo{recs: make(map[int64]*models.OTPCode)}
}

func (m *memOTPRepo) Insert(_ context.Context, rec *models.OTPCode) (int64, error) {
	m.nextID++
	stored := *rec
	stored.ID = m.nextID
	m.recs[m.nextID] = &stored
	return m.nextID, nil
}

func (m *memOTPRepo) LatestUnverified(_ context.Context, identifier, channel string) (*models.OTPCode, error) {
	var latest *models.OTPCode
	for _, rec := range m.recs {
		if rec.Identifier != identifier || rec.Channel != channel || rec.Verified {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, postgres.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *memOTPRepo) IncrementAttempts(_ context.Context, id int64) (int, error) {
	m.recs[id].AttemptCount++
	return m.recs[id].AttemptCount, nil
}

func (m *memOTPRepo) MarkVerified(_ context.Context, id int64) error {
	m.recs[id].Verified = true
	return nil
}

func (m *memOTPRepo) UpdateDeliveryStatus(_ context.Context, id int64, status, deliveryError string) error {
	m.recs[id].DeliveryStatus = status
	m.recs[id].DeliveryError = deliveryError
	return nil
}

func (m *memOTPRepo) CountVerifiedSince(_ context.Context, _, _ string, _ time.Time) (int, error) {
	return 0, nil
}

type memLimitRepo struct {
	recs   map[string]*models.RateLimit
	byID   map[int64]*models.RateLimit
	nextID int64
}

func newMemLimitRepo() *memLimitRepo {
	return &memLimitRepo{
		recs: make(map[string]*models.RateLimit),
		byID: make(map[int64]*models.RateLimit),
	}
}

func (m *memLimitRepo) key(identifier, kind string, ws time.Time) string {
	return identifier + "|" + kind + "|" + ws.Format(time.RFC3339)
}

func (m *memLimitRepo) FindActive(_ context.Context, identifier, kind string, ws time.Time) (*models.RateLimit, error) {
	rec, ok := m.recs[m.key(identifier, kind, ws)]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return rec, nil
}

func (m *memLimitRepo) Create(_ context.Context, identifier, kind string, ws time.Time) error {
	m.nextID++
	rec := &models.RateLimit{ID: m.nextID, Identifier: identifier, Kind: kind, WindowStart: ws, RequestCount: 1}
	m.recs[m.key(identifier, kind, ws)] = rec
	m.byID[rec.ID] = rec
	return nil
}

func (m *memLimitRepo) Increment(_ context.Context, id int64) (int, error) {
	m.byID[id].RequestCount++
	return m.byID[id].RequestCount, nil
}

type memSender struct {
	lastCode string
	calls    int
}

func (m *memSender) SendCode(_ context.Context, _, code string) error {
	m.calls++
	m.lastCode = code
	return nil
}

type memCaptcha struct{ err error }

func (m *memCaptcha) Verify(_ context.Context, _, _ string) error { return m.err }

func newOTPTestHandler(t *testing.T) (*OTPHandler, *memSender) {
	t.Helper()

	cfg := &config.Config{RateLimit: config.RateLimitConfig{FailOpen: true}}
	limiter := service.NewRateLimiter(newMemLimitRepo(), cfg, nil)
	sender := &memSender{}
	svc := service.NewOTPService(newMemOTPRepo(), limiter, sender, &memSender{}, &memCaptcha{}, nil, nil)
	return NewOTPHandler(svc, zap.NewNop()), sender
}

func postJSON(t *testing.T, handlerFunc http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	r.RemoteAddr = "203.0.113.7:51234"
	w := httptest.NewRecorder()
	handlerFunc(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestSendOTPEndpoint(t *testing.T) {
	h, sender := newOTPTestHandler(t)

	w := postJSON(t, h.SendOTP, map[string]string{
		"email":   "buyer@example.com",
		"channel": "email-quote",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["expiresAt"] == nil {
		t.Error("expiresAt missing from response")
	}
	if sender.calls != 1 {
		t.Errorf("sender calls = %d, want 1", sender.calls)
	}
}

func TestSendOTPRejectsBadEmail(t *testing.T) {
	h, _ := newOTPTestHandler(t)

	w := postJSON(t, h.SendOTP, map[string]string{
		"email":   "not-an-email",
		"channel": "email-quote",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSendOTPCooldownResponse(t *testing.T) {
	h, _ := newOTPTestHandler(t)
	req := map[string]string{"email": "buyer@example.com", "channel": "email-quote"}

	if w := postJSON(t, h.SendOTP, req); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}

	w := postJSON(t, h.SendOTP, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	body := decodeBody(t, w)
	retryAfter, ok := body["retryAfter"].(float64)
	if !ok || retryAfter <= 0 || retryAfter > 300 {
		t.Errorf("retryAfter = %v, want within the 5 minute cooldown", body["retryAfter"])
	}
}

func TestVerifyOTPEndToEnd(t *testing.T) {
	h, sender := newOTPTestHandler(t)

	if w := postJSON(t, h.SendOTP, map[string]string{
		"email":   "buyer@example.com",
		"channel": "email-quote",
	}); w.Code != http.StatusOK {
		t.Fatalf("send: status = %d", w.Code)
	}

	w := postJSON(t, h.VerifyOTP, map[string]string{
		"email":   "buyer@example.com",
		"channel": "email-quote",
		"code":    sender.lastCode,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["verified"] != true {
		t.Errorf("verified = %v, want true", body["verified"])
	}
}

func TestSendOTPPhoneChannelViaTypeField(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{FailOpen: true}}
	limiter := service.NewRateLimiter(newMemLimitRepo(), cfg, nil)
	sms := &memSender{}
	svc := service.NewOTPService(newMemOTPRepo(), limiter, &memSender{}, sms, &memCaptcha{}, nil, nil)
	h := NewOTPHandler(svc, zap.NewNop())

	w := postJSON(t, h.SendOTP, map[string]string{
		"type":    "phone",
		"phone":   "415 555 0101",
		"country": "1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if sms.calls != 1 {
		t.Errorf("sms sender calls = %d, want 1", sms.calls)
	}
}

func TestVerifyOTPAcceptsOtpField(t *testing.T) {
	h, sender := newOTPTestHandler(t)

	if w := postJSON(t, h.SendOTP, map[string]string{
		"type":  "email-quote",
		"email": "buyer@example.com",
	}); w.Code != http.StatusOK {
		t.Fatalf("send: status = %d", w.Code)
	}

	w := postJSON(t, h.VerifyOTP, map[string]string{
		"type":  "email-quote",
		"email": "buyer@example.com",
		"otp":   sender.lastCode,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: status = %d, body = %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["verified"] != true {
		t.Errorf("verified = %v, want true", body["verified"])
	}
}

func TestVerifyOTPWrongCodeResponse(t *testing.T) {
	h, _ := newOTPTestHandler(t)

	if w := postJSON(t, h.SendOTP, map[string]string{
		"email":   "buyer@example.com",
		"channel": "email-quote",
	}); w.Code != http.StatusOK {
		t.Fatalf("send: status = %d", w.Code)
	}

	w := postJSON(t, h.VerifyOTP, map[string]string{
		"email":   "buyer@example.com",
		"channel": "email-quote",
		"code":    "000000",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeBody(t, w)
	if body["verified"] != false {
		t.Errorf("verified = %v, want false", body["verified"])
	}
	if remaining, ok := body["attemptsRemaining"].(float64); !ok || remaining != 4 {
		t.Errorf("attemptsRemaining = %v, want 4", body["attemptsRemaining"])
	}
}
