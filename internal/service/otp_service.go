package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/audit"
	"sourcing-service/internal/models"
	"sourcing-service/internal/provider"
	"sourcing-service/internal/repository/postgres"
	"sourcing-service/internal/retry"
	"sourcing-service/internal/util"
)

// Channel identifies how a verification code is delivered and which flow
// requested it. The two email channels share a transport but carry different
// abuse policies.
type Channel string

const (
	ChannelPhone         Channel = "phone"
	ChannelEmailQuote    Channel = "email-quote"
	ChannelEmailSupplier Channel = "email-supplier"
)

const (
	otpTTL             = 10 * time.Minute
	maxVerifyAttempts  = 5
	dailyVerifiedCap   = 3
	dispatchAttempts   = 3
	dispatchRetryDelay = time.Second
)

var (
	ErrInvalidChannel  = errors.New("unsupported verification channel")
	ErrOTPNotFound     = errors.New("no pending verification code found")
	ErrOTPExpired      = errors.New("verification code has expired")
	ErrMaxAttempts     = errors.New("maximum verification attempts exceeded")
	ErrCodeMismatch    = errors.New("incorrect verification code")
	ErrDailyCapReached = errors.New("daily verification limit reached")
	ErrDeliveryFailed  = errors.New("failed to deliver verification code")
)

// CaptchaVerifier gates supplier-facing code issuance behind a human check.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type IssueRequest struct {
	Identifier   string
	Channel      Channel
	CaptchaToken string
	IPAddress    string
}

type IssueResult struct {
	ExpiresAt      time.Time
	DeliveryStatus string
}

type VerifyRequest struct {
	Identifier string
	Channel    Channel
	Code       string
	IPAddress  string
}

type VerifyResult struct {
	Verified          bool
	AttemptsRemaining int
}

// OTPService issues and verifies one-time codes across phone and email
// channels. Verification is deliberately strict about ordering: the attempt
// counter moves before the code comparison so a guess always costs an attempt.
type OTPService struct {
	repo    postgres.OTPRepository
	limiter *RateLimiter
	email   provider.CodeSender
	sms     provider.CodeSender
	captcha CaptchaVerifier
	audit   *audit.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

func NewOTPService(
	repo postgres.OTPRepository,
	limiter *RateLimiter,
	email provider.CodeSender,
	sms provider.CodeSender,
	captcha CaptchaVerifier,
	auditRecorder *audit.Recorder,
	logger *zap.Logger,
) *OTPService {
	return &OTPService{
		repo:    repo,
		limiter: limiter,
		email:   email,
		sms:     sms,
		captcha: captcha,
		audit:   auditRecorder,
		logger:  logger,
		now:     time.Now,
	}
}

// Issue generates, persists and dispatches a fresh code. The record is stored
// before dispatch so a delivery failure still leaves an auditable row.
func (s *OTPService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	sender, err := s.senderFor(req.Channel)
	if err != nil {
		return nil, err
	}

	if req.Channel == ChannelEmailSupplier {
		if err := s.captcha.Verify(ctx, req.CaptchaToken, req.IPAddress); err != nil {
			util.Warn("Captcha verification failed for supplier code request",
				zap.String("identifier", util.MaskIdentifier(req.Identifier)),
				zap.Error(err))
			return nil, err
		}
	}

	if req.Channel == ChannelEmailQuote {
		dayStart := s.now().UTC().Truncate(24 * time.Hour)
		verified, err := s.repo.CountVerifiedSince(ctx, req.Identifier, string(req.Channel), dayStart)
		if err != nil {
			return nil, fmt.Errorf("failed to check daily verification cap: %w", err)
		}
		if verified >= dailyVerifiedCap {
			return nil, ErrDailyCapReached
		}
	}

	decision, err := s.limiter.CheckAndIncrement(ctx, s.sendKey(req), WindowOTPSend)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &RateLimitedError{Kind: WindowOTPSend, RetryAfter: decision.RetryAfter}
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := s.now().UTC()
	rec := &models.OTPCode{
		Identifier:     req.Identifier,
		Channel:        string(req.Channel),
		Code:           code,
		ExpiresAt:      now.Add(otpTTL),
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      now,
	}

	id, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}

	dispatchErr := retry.Do(ctx, retry.Config{
		MaxAttempts: dispatchAttempts,
		Delay:       dispatchRetryDelay,
		Retryable:   provider.IsTransient,
	}, func(ctx context.Context) error {
		return sender.SendCode(ctx, req.Identifier, code)
	})
	if dispatchErr != nil {
		_ = s.repo.UpdateDeliveryStatus(ctx, id, models.DeliveryFailed, dispatchErr.Error())
		util.Error("Verification code delivery failed",
			zap.String("identifier", util.MaskIdentifier(req.Identifier)),
			zap.String("channel", string(req.Channel)),
			zap.Error(dispatchErr))
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, dispatchErr)
	}

	if err := s.repo.UpdateDeliveryStatus(ctx, id, models.DeliverySent, ""); err != nil {
		util.Warn("Failed to mark code as sent", zap.Int64("id", id), zap.Error(err))
	}

	util.Info("Verification code issued",
		zap.String("identifier", util.MaskIdentifier(req.Identifier)),
		zap.String("channel", string(req.Channel)),
		zap.Time("expires_at", rec.ExpiresAt))

	return &IssueResult{ExpiresAt: rec.ExpiresAt, DeliveryStatus: models.DeliverySent}, nil
}

// Verify checks a submitted code against the latest unverified record.
//
// Order matters and is load bearing:
//  1. hourly throttle, before touching any record
//  2. fetch latest unverified
//  3. expiry check, with no counter mutation on expired codes
//  4. attempt ceiling check on the stored count
//  5. unconditional attempt increment
//  6. code comparison
//  7. verified flip on match
func (s *OTPService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if _, err := s.senderFor(req.Channel); err != nil {
		return nil, err
	}

	decision, err := s.limiter.CheckAndIncrement(ctx, s.verifyKey(req), WindowOTPVerify)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.audit.Record(ctx, req.Identifier, string(req.Channel), false, "rate_limited", req.IPAddress)
		return nil, &RateLimitedError{Kind: WindowOTPVerify, RetryAfter: decision.RetryAfter}
	}

	rec, err := s.repo.LatestUnverified(ctx, req.Identifier, string(req.Channel))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.audit.Record(ctx, req.Identifier, string(req.Channel), false, "not_found", req.IPAddress)
			return nil, ErrOTPNotFound
		}
		return nil, err
	}

	if s.now().UTC().After(rec.ExpiresAt) {
		s.audit.Record(ctx, req.Identifier, string(req.Channel), false, "expired", req.IPAddress)
		return nil, ErrOTPExpired
	}

	if rec.AttemptCount >= maxVerifyAttempts {
		s.audit.Record(ctx, req.Identifier, string(req.Channel), false, "max_attempts", req.IPAddress)
		return nil, ErrMaxAttempts
	}

	attempts, err := s.repo.IncrementAttempts(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	remaining := maxVerifyAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}

	if rec.Code != req.Code {
		s.audit.Record(ctx, req.Identifier, string(req.Channel), false, "mismatch", req.IPAddress)
		return &VerifyResult{Verified: false, AttemptsRemaining: remaining}, ErrCodeMismatch
	}

	if err := s.repo.MarkVerified(ctx, rec.ID); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, req.Identifier, string(req.Channel), true, "verified", req.IPAddress)
	util.Info("Verification code accepted",
		zap.String("identifier", util.MaskIdentifier(req.Identifier)),
		zap.String("channel", string(req.Channel)))

	return &VerifyResult{Verified: true, AttemptsRemaining: remaining}, nil
}

func (s *OTPService) senderFor(channel Channel) (provider.CodeSender, error) {
	switch channel {
	case ChannelPhone:
		return s.sms, nil
	case ChannelEmailQuote, ChannelEmailSupplier:
		return s.email, nil
	default:
		return nil, ErrInvalidChannel
	}
}

// Cooldown and throttle windows are scoped per identifier and channel so a
// phone number and an email address never share a counter.
func (s *OTPService) sendKey(req IssueRequest) string {
	return fmt.Sprintf("%s:%s", req.Channel, req.Identifier)
}

func (s *OTPService) verifyKey(req VerifyRequest) string {
	return fmt.Sprintf("%s:%s", req.Channel, req.Identifier)
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
