package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/config"
	"sourcing-service/internal/util"
)

// SMSSender delivers OTP codes through an HTTP SMS gateway.
type SMSSender struct {
	gatewayURL string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSMSSender(cfg *config.Config, logger *zap.Logger) *SMSSender {
	return &SMSSender{
		gatewayURL: cfg.Providers.SMSGatewayURL,
		apiKey:     cfg.Providers.SMSAPIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (s *SMSSender) SendCode(ctx context.Context, identifier, code string) error {
	payload, err := json.Marshal(map[string]string{
		"to":      identifier,
		"message": fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		util.Warn("SMS gateway rejected dispatch",
			zap.String("to", util.MaskPhone(identifier)),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	util.Debug("Verification SMS dispatched",
		zap.String("to", util.MaskPhone(identifier)))

	return nil
}
