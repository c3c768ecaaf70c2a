package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/config"
	"sourcing-service/internal/repository/postgres"
	"sourcing-service/internal/util"
)

// WindowKind names one configured rate-limit window. All call sites share the
// same counter primitive; only the window shape differs.
type WindowKind string

const (
	WindowQuoteIP      WindowKind = "quote_ip"      // anonymous quote requests per IP
	WindowQuoteUser    WindowKind = "quote_user"    // quote requests per authenticated user
	WindowQuoteSession WindowKind = "quote_session" // quote requests per anonymous session
	WindowOTPSend      WindowKind = "otp_send"      // code issuance cooldown
	WindowOTPVerify    WindowKind = "otp_verify"    // verification attempts per identifier
)

// Window describes the shape of one limit: how long it lasts, how many
// requests it admits, and whether it aligns to UTC midnight or rolls.
type Window struct {
	Duration   time.Duration
	Ceiling    int
	DayAligned bool
}

func defaultWindows() map[WindowKind]Window {
	return map[WindowKind]Window{
		WindowQuoteIP:      {Duration: 24 * time.Hour, Ceiling: 15, DayAligned: true},
		WindowQuoteUser:    {Duration: 24 * time.Hour, Ceiling: 20, DayAligned: true},
		WindowQuoteSession: {Duration: 24 * time.Hour, Ceiling: 3, DayAligned: true},
		WindowOTPSend:      {Duration: 5 * time.Minute, Ceiling: 1},
		WindowOTPVerify:    {Duration: time.Hour, Ceiling: 3},
	}
}

// Decision is the outcome of one counter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitedError carries the backoff hint to the HTTP layer.
type RateLimitedError struct {
	Kind       WindowKind
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Kind, e.RetryAfter)
}

// RateLimiter enforces windowed request ceilings on top of durable Postgres
// counters. On infrastructure errors it can fail open: admitting a few extra
// requests beats blocking legitimate traffic on a database hiccup.
type RateLimiter struct {
	repo     postgres.RateLimitRepository
	windows  map[WindowKind]Window
	failOpen bool
	logger   *zap.Logger
	now      func() time.Time
}

func NewRateLimiter(repo postgres.RateLimitRepository, cfg *config.Config, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		repo:     repo,
		windows:  defaultWindows(),
		failOpen: cfg.RateLimit.FailOpen,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckAndIncrement admits or denies one request. Every admitted request
// durably increments the counter; a denial leaves state untouched.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, identifier string, kind WindowKind) (Decision, error) {
	window, ok := rl.windows[kind]
	if !ok {
		return Decision{}, fmt.Errorf("unknown rate limit window: %s", kind)
	}

	now := rl.now().UTC()
	windowStart := rl.windowStart(now, window)
	retryAfter := windowStart.Add(window.Duration).Sub(now)

	rec, err := rl.repo.FindActive(ctx, identifier, string(kind), windowStart)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			if createErr := rl.repo.Create(ctx, identifier, string(kind), windowStart); createErr != nil {
				return rl.failOpenDecision(kind, identifier, window, createErr)
			}
			return Decision{Allowed: true, Remaining: window.Ceiling - 1}, nil
		}
		return rl.failOpenDecision(kind, identifier, window, err)
	}

	if rec.RequestCount >= window.Ceiling {
		util.Debug("Rate limit ceiling reached",
			zap.String("kind", string(kind)),
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Int("count", rec.RequestCount),
			zap.Int("ceiling", window.Ceiling))
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	count, err := rl.repo.Increment(ctx, rec.ID)
	if err != nil {
		return rl.failOpenDecision(kind, identifier, window, err)
	}

	remaining := window.Ceiling - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{Allowed: true, Remaining: remaining}, nil
}

func (rl *RateLimiter) windowStart(now time.Time, window Window) time.Time {
	if window.DayAligned {
		return now.Truncate(24 * time.Hour)
	}
	return now.Truncate(window.Duration)
}

// failOpenDecision implements the availability-over-strictness policy: when
// the counter store itself errors, admit the request rather than block it.
func (rl *RateLimiter) failOpenDecision(kind WindowKind, identifier string, window Window, err error) (Decision, error) {
	if rl.failOpen {
		util.Warn("Rate limit check failed, allowing request (fail-open)",
			zap.String("kind", string(kind)),
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.Error(err))
		return Decision{Allowed: true, Remaining: window.Ceiling}, nil
	}
	return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
}
