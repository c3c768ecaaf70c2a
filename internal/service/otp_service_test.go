package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"sourcing-service/internal/models"
	"sourcing-service/internal/provider"
	"sourcing-service/internal/repository/postgres"
)

type fakeOTPRepo struct {
	recs          map[int64]*models.OTPCode
	nextID        int64
	verifiedToday int
	countErr      error
}

func newFakeOTPRepo() *fakeOTPRepo {
	return &fakeOTPRepo{recs: make(map[int64]*models.OTPCode)}
}

func (f *fakeOTPRepo) Insert(_ context.Context, rec *models.OTPCode) (int64, error) {
	f.nextID++
	stored := *rec
	stored.ID = f.nextID
	f.recs[f.nextID] = &stored
	return f.nextID, nil
}

func (f *fakeOTPRepo) LatestUnverified(_ context.Context, identifier, channel string) (*models.OTPCode, error) {
	var latest *models.OTPCode
	for _, rec := range f.recs {
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

func (f *fakeOTPRepo) IncrementAttempts(_ context.Context, id int64) (int, error) {
	rec, ok := f.recs[id]
	if !ok {
		return 0, postgres.ErrNotFound
	}
	rec.AttemptCount++
	return rec.AttemptCount, nil
}

func (f *fakeOTPRepo) MarkVerified(_ context.Context, id int64) error {
	rec, ok := f.recs[id]
	if !ok || rec.Verified {
		return postgres.ErrNotFound
	}
	rec.Verified = true
	return nil
}

func (f *fakeOTPRepo) UpdateDeliveryStatus(_ context.Context, id int64, status, deliveryError string) error {
	rec, ok := f.recs[id]
	if !ok {
		return postgres.ErrNotFound
	}
	rec.DeliveryStatus = status
	rec.DeliveryError = deliveryError
	return nil
}

func (f *fakeOTPRepo) CountVerifiedSince(_ context.Context, _, _ string, _ time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.verifiedToday, nil
}

type fakeSender struct {
	calls    int
	errs     []error
	lastCode string
}

func (f *fakeSender) SendCode(_ context.Context, _, code string) error {
	f.calls++
	f.lastCode = code
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

type fakeCaptcha struct {
	err    error
	called bool
}

func (f *fakeCaptcha) Verify(_ context.Context, _, _ string) error {
	f.called = true
	return f.err
}

type otpFixture struct {
	svc     *OTPService
	repo    *fakeOTPRepo
	email   *fakeSender
	sms     *fakeSender
	captcha *fakeCaptcha
	clock   time.Time
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()

	fx := &otpFixture{
		repo:    newFakeOTPRepo(),
		email:   &fakeSender{},
		sms:     &fakeSender{},
		captcha: &fakeCaptcha{},
		clock:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}

	limiter := newTestLimiter(newFakeLimitRepo(), true)
	limiter.now = func() time.Time { return fx.clock }

	fx.svc = NewOTPService(fx.repo, limiter, fx.email, fx.sms, fx.captcha, nil, nil)
	fx.svc.now = func() time.Time { return fx.clock }
	return fx
}

func TestIssueDeliversCode(t *testing.T) {
	fx := newOTPFixture(t)

	result, err := fx.svc.Issue(context.Background(), IssueRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := fx.clock.Add(10 * time.Minute); !result.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", result.ExpiresAt, want)
	}
	if fx.email.calls != 1 {
		t.Errorf("email sender calls = %d, want 1", fx.email.calls)
	}
	if !regexp.MustCompile(`^[1-9][0-9]{5}$`).MatchString(fx.email.lastCode) {
		t.Errorf("code %q is not a 6 digit value", fx.email.lastCode)
	}
	rec := fx.repo.recs[1]
	if rec.DeliveryStatus != models.DeliverySent {
		t.Errorf("DeliveryStatus = %q, want %q", rec.DeliveryStatus, models.DeliverySent)
	}
}

func TestIssuePhoneUsesSMSSender(t *testing.T) {
	fx := newOTPFixture(t)

	if _, err := fx.svc.Issue(context.Background(), IssueRequest{
		Identifier: "+14155550123",
		Channel:    ChannelPhone,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fx.sms.calls != 1 || fx.email.calls != 0 {
		t.Errorf("sms calls = %d, email calls = %d; want 1 and 0", fx.sms.calls, fx.email.calls)
	}
}

func TestIssueCooldown(t *testing.T) {
	fx := newOTPFixture(t)
	ctx := context.Background()
	req := IssueRequest{Identifier: "buyer@example.com", Channel: ChannelEmailQuote}

	if _, err := fx.svc.Issue(ctx, req); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}

	fx.clock = fx.clock.Add(time.Minute)
	_, err := fx.svc.Issue(ctx, req)

	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfter <= 0 || limited.RetryAfter > 5*time.Minute {
		t.Errorf("RetryAfter = %v, want within the 5 minute cooldown", limited.RetryAfter)
	}
}

func TestIssueRetriesTransientDeliveryFailure(t *testing.T) {
	fx := newOTPFixture(t)
	fx.email.errs = []error{errors.New("status 503 service unavailable")}

	if _, err := fx.svc.Issue(context.Background(), IssueRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fx.email.calls != 2 {
		t.Errorf("sender calls = %d, want 2 (one retry)", fx.email.calls)
	}
}

func TestIssuePermanentDeliveryFailure(t *testing.T) {
	fx := newOTPFixture(t)
	fx.email.errs = []error{errors.New("invalid recipient"), errors.New("invalid recipient"), errors.New("invalid recipient")}

	_, err := fx.svc.Issue(context.Background(), IssueRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
	})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}

	if fx.email.calls != 1 {
		t.Errorf("sender calls = %d, want 1 (permanent errors are not retried)", fx.email.calls)
	}
	if rec := fx.repo.recs[1]; rec.DeliveryStatus != models.DeliveryFailed {
		t.Errorf("DeliveryStatus = %q, want %q", rec.DeliveryStatus, models.DeliveryFailed)
	}
}

func TestIssueSupplierChannelRequiresCaptcha(t *testing.T) {
	fx := newOTPFixture(t)
	fx.captcha.err = provider.ErrCaptchaFailed

	_, err := fx.svc.Issue(context.Background(), IssueRequest{
		Identifier:   "supplier@example.com",
		Channel:      ChannelEmailSupplier,
		CaptchaToken: "bad-token",
	})
	if !errors.Is(err, provider.ErrCaptchaFailed) {
		t.Fatalf("expected ErrCaptchaFailed, got %v", err)
	}
	if !fx.captcha.called {
		t.Error("captcha verifier was not invoked")
	}
	if fx.email.calls != 0 {
		t.Error("no code should be sent when captcha fails")
	}
}

func TestIssueQuoteChannelDailyCap(t *testing.T) {
	fx := newOTPFixture(t)
	fx.repo.verifiedToday = 3

	_, err := fx.svc.Issue(context.Background(), IssueRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
	})
	if !errors.Is(err, ErrDailyCapReached) {
		t.Fatalf("expected ErrDailyCapReached, got %v", err)
	}
}

func TestIssueRejectsUnknownChannel(t *testing.T) {
	fx := newOTPFixture(t)

	_, err := fx.svc.Issue(context.Background(), IssueRequest{
		Identifier: "buyer@example.com",
		Channel:    Channel("carrier-pigeon"),
	})
	if !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
}

func seedOTP(fx *otpFixture, identifier string, channel Channel, code string) *models.OTPCode {
	fx.repo.nextID++
	rec := &models.OTPCode{
		ID:             fx.repo.nextID,
		Identifier:     identifier,
		Channel:        string(channel),
		Code:           code,
		ExpiresAt:      fx.clock.Add(10 * time.Minute),
		DeliveryStatus: models.DeliverySent,
		CreatedAt:      fx.clock,
	}
	fx.repo.recs[rec.ID] = rec
	return rec
}

func TestVerifyCorrectCode(t *testing.T) {
	fx := newOTPFixture(t)
	rec := seedOTP(fx, "buyer@example.com", ChannelEmailQuote, "482913")

	result, err := fx.svc.Verify(context.Background(), VerifyRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
		Code:       "482913",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Verified {
		t.Error("expected Verified = true")
	}
	if !fx.repo.recs[rec.ID].Verified {
		t.Error("record was not marked verified")
	}
	if fx.repo.recs[rec.ID].AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1 (every comparison costs an attempt)", fx.repo.recs[rec.ID].AttemptCount)
	}
}

func TestVerifyWrongCodeCountsAttempts(t *testing.T) {
	fx := newOTPFixture(t)
	rec := seedOTP(fx, "buyer@example.com", ChannelEmailQuote, "482913")
	ctx := context.Background()
	req := VerifyRequest{Identifier: "buyer@example.com", Channel: ChannelEmailQuote, Code: "000000"}

	for i := 1; i <= 3; i++ {
		result, err := fx.svc.Verify(ctx, req)
		if !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i, err)
		}
		if want := 5 - i; result.AttemptsRemaining != want {
			t.Errorf("attempt %d: AttemptsRemaining = %d, want %d", i, result.AttemptsRemaining, want)
		}
	}
	if fx.repo.recs[rec.ID].AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", fx.repo.recs[rec.ID].AttemptCount)
	}
}

func TestVerifyMaxAttemptsExceeded(t *testing.T) {
	fx := newOTPFixture(t)
	rec := seedOTP(fx, "buyer@example.com", ChannelEmailQuote, "482913")
	rec.AttemptCount = 5

	// Even the correct code is refused once the ceiling is hit.
	_, err := fx.svc.Verify(context.Background(), VerifyRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
		Code:       "482913",
	})
	if !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("expected ErrMaxAttempts, got %v", err)
	}
	if rec.AttemptCount != 5 {
		t.Errorf("AttemptCount = %d, want 5 (no increment past the ceiling)", rec.AttemptCount)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	fx := newOTPFixture(t)
	rec := seedOTP(fx, "buyer@example.com", ChannelEmailQuote, "482913")
	fx.clock = fx.clock.Add(11 * time.Minute)

	_, err := fx.svc.Verify(context.Background(), VerifyRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
		Code:       "482913",
	})
	if !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	if rec.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0 (expired codes must not consume attempts)", rec.AttemptCount)
	}
}

func TestVerifyNoPendingCode(t *testing.T) {
	fx := newOTPFixture(t)

	_, err := fx.svc.Verify(context.Background(), VerifyRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailQuote,
		Code:       "123456",
	})
	if !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound, got %v", err)
	}
}

func TestVerifyHourlyThrottle(t *testing.T) {
	fx := newOTPFixture(t)
	seedOTP(fx, "buyer@example.com", ChannelEmailQuote, "482913")
	ctx := context.Background()
	req := VerifyRequest{Identifier: "buyer@example.com", Channel: ChannelEmailQuote, Code: "000000"}

	for i := 0; i < 3; i++ {
		if _, err := fx.svc.Verify(ctx, req); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i+1, err)
		}
	}

	_, err := fx.svc.Verify(ctx, req)
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError on the fourth attempt, got %v", err)
	}
}

func TestVerifyChannelsAreIsolated(t *testing.T) {
	fx := newOTPFixture(t)
	seedOTP(fx, "buyer@example.com", ChannelEmailQuote, "482913")

	_, err := fx.svc.Verify(context.Background(), VerifyRequest{
		Identifier: "buyer@example.com",
		Channel:    ChannelEmailSupplier,
		Code:       "482913",
	})
	if !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound for the other channel, got %v", err)
	}
}
