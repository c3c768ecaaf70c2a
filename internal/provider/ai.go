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

// aiCallTimeout is a hard ceiling on gateway latency. The pricing path never
// blocks on advisory text longer than this.
const aiCallTimeout = 25 * time.Second

// InsightsClient generates advisory sourcing text through the AI gateway.
// Callers must treat every error as soft: pricing works without insights.
type InsightsClient struct {
	gatewayURL string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewInsightsClient(cfg *config.Config, logger *zap.Logger) *InsightsClient {
	return &InsightsClient{
		gatewayURL: cfg.Providers.AIGatewayURL,
		apiKey:     cfg.Providers.AIAPIKey,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the gateway for sourcing advice on a priced quote.
func (c *InsightsClient) Generate(ctx context.Context, category string, quantity int, complexity, fabric string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, aiCallTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"You are an apparel sourcing advisor. Give three short, practical tips for a buyer ordering %d units of %s (complexity: %s, fabric: %s). Plain text, no markdown.",
		quantity, category, complexity, fabric)

	payload, err := json.Marshal(chatRequest{
		Model: "google/gemini-2.5-flash",
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal AI request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build AI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ai gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode AI response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("ai gateway returned empty completion")
	}

	util.Debug("AI insights generated",
		zap.Duration("duration", time.Since(start)))

	return parsed.Choices[0].Message.Content, nil
}
