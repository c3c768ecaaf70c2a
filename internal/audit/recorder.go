package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/bucketing"
	"sourcing-service/internal/client"
	"sourcing-service/internal/models"
	"sourcing-service/internal/util"
)

const insertQuery = `
	INSERT INTO otp_attempt_audit
		(bucket, identifier, channel, success, reason, ip_address, occurred_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// Recorder writes every OTP verification attempt to ClickHouse so abuse
// monitoring survives independently of the OTP table. Writes are best effort:
// a failed audit insert must never fail the verify itself.
type Recorder struct {
	ch        *client.ClickHouseClient
	bucketing *bucketing.BucketingManager
	logger    *zap.Logger
}

func NewRecorder(ch *client.ClickHouseClient, bm *bucketing.BucketingManager, logger *zap.Logger) *Recorder {
	return &Recorder{ch: ch, bucketing: bm, logger: logger}
}

// Record writes one attempt. Errors are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, identifier, channel string, success bool, reason, ipAddress string) {
	if r == nil || r.ch == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ev := models.OTPAuditEvent{
		Bucket:     r.bucketing.GetIdentifierBucket(identifier),
		Identifier: identifier,
		Channel:    channel,
		Success:    success,
		Reason:     reason,
		IPAddress:  ipAddress,
		OccurredAt: time.Now().UTC(),
	}

	err := r.ch.Exec(ctx, insertQuery,
		ev.Bucket, ev.Identifier, ev.Channel, ev.Success, ev.Reason, ev.IPAddress, ev.OccurredAt)
	if err != nil {
		util.Warn("Failed to record OTP audit event",
			zap.String("identifier", util.MaskIdentifier(identifier)),
			zap.String("channel", channel),
			zap.Bool("success", success),
			zap.Error(err))
		return
	}

	util.Debug("OTP attempt audited",
		zap.Int("bucket", ev.Bucket),
		zap.String("channel", channel),
		zap.Bool("success", success))
}
