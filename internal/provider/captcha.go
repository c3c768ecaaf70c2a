package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/config"
	"sourcing-service/internal/util"
)

const siteVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// ErrCaptchaFailed means the token was present but did not verify.
var ErrCaptchaFailed = errors.New("captcha verification failed")

// CaptchaVerifier checks reCAPTCHA tokens against the siteverify endpoint.
type CaptchaVerifier struct {
	secret     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewCaptchaVerifier(cfg *config.Config, logger *zap.Logger) *CaptchaVerifier {
	return &CaptchaVerifier{
		secret:     cfg.Providers.RecaptchaSecret,
		endpoint:   siteVerifyURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (v *CaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrCaptchaFailed)
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("captcha verification request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode captcha response: %w", err)
	}

	if !result.Success {
		util.Warn("Captcha rejected",
			zap.Strings("error_codes", result.ErrorCodes))
		return ErrCaptchaFailed
	}

	return nil
}
