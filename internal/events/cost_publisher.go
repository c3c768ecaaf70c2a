package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/client"
	"sourcing-service/internal/util"
)

// PricingInvocation is emitted once per pricing request, success or failure,
// so AI spend can be tracked downstream.
type PricingInvocation struct {
	RequestID   string    `json:"request_id"`
	Category    string    `json:"category"`
	Quantity    int       `json:"quantity"`
	AIUsed      bool      `json:"ai_used"`
	AISucceeded bool      `json:"ai_succeeded"`
	DurationMS  int64     `json:"duration_ms"`
	Outcome     string    `json:"outcome"`
	InvokedAt   time.Time `json:"invoked_at"`
}

// CostPublisher fans pricing invocations out to Kafka, best effort.
type CostPublisher struct {
	producer *client.KafkaProducer
	topic    string
	logger   *zap.Logger
}

func NewCostPublisher(producer *client.KafkaProducer, topic string, logger *zap.Logger) *CostPublisher {
	return &CostPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish emits one invocation event. Errors are logged and swallowed; cost
// tracking must never fail a pricing request.
func (p *CostPublisher) Publish(ctx context.Context, inv PricingInvocation) {
	if p == nil || p.producer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(inv)
	if err != nil {
		util.Warn("Failed to marshal pricing invocation", zap.Error(err))
		return
	}

	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(inv.RequestID), payload, nil); err != nil {
		util.Warn("Failed to publish pricing invocation",
			zap.String("request_id", inv.RequestID),
			zap.Error(err))
	}
}
