package provider

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"sourcing-service/internal/config"
	"sourcing-service/internal/util"
)

// CodeSender dispatches a one-time code over a single channel.
type CodeSender interface {
	SendCode(ctx context.Context, identifier, code string) error
}

// EmailSender delivers OTP codes through Resend.
type EmailSender struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

func NewEmailSender(cfg *config.Config, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		client: resend.NewClient(cfg.Providers.ResendAPIKey),
		from:   cfg.Providers.EmailFrom,
		logger: logger,
	}
}

func (s *EmailSender) SendCode(ctx context.Context, identifier, code string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{identifier},
		Subject: "Your verification code",
		Html: fmt.Sprintf(
			`<p>Your verification code is <strong>%s</strong>.</p><p>It expires in 10 minutes. If you did not request this, ignore this email.</p>`,
			code),
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		util.Warn("Email dispatch failed",
			zap.String("to", util.MaskEmail(identifier)),
			zap.Error(err))
		return fmt.Errorf("email dispatch failed: %w", err)
	}

	util.Debug("Verification email dispatched",
		zap.String("to", util.MaskEmail(identifier)),
		zap.String("provider_id", sent.Id))

	return nil
}
