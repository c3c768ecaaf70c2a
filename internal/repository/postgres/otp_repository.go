package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"sourcing-service/internal/client"
	"sourcing-service/internal/models"
	"sourcing-service/internal/util"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("record not found")

// OTPRepository is the storage contract for one-time codes.
type OTPRepository interface {
	Insert(ctx context.Context, rec *models.OTPCode) (int64, error)
	LatestUnverified(ctx context.Context, identifier, channel string) (*models.OTPCode, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkVerified(ctx context.Context, id int64) error
	UpdateDeliveryStatus(ctx context.Context, id int64, status, deliveryError string) error
	CountVerifiedSince(ctx context.Context, identifier, channel string, since time.Time) (int, error)
}

type otpRepository struct {
	db     *client.PostgresClient
	logger *zap.Logger
}

func NewOTPRepository(db *client.PostgresClient, logger *zap.Logger) OTPRepository {
	return &otpRepository{db: db, logger: logger}
}

func (r *otpRepository) Insert(ctx context.Context, rec *models.OTPCode) (int64, error) {
	const query = `
		INSERT INTO otp_codes
			(identifier, channel, code, expires_at, verified, attempt_count, delivery_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query,
		rec.Identifier, rec.Channel, rec.Code, rec.ExpiresAt,
		rec.Verified, rec.AttemptCount, rec.DeliveryStatus, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		util.Error("Failed to insert OTP record",
			zap.String("identifier", util.MaskIdentifier(rec.Identifier)),
			zap.String("channel", rec.Channel),
			zap.Error(err))
		return 0, fmt.Errorf("failed to insert OTP record: %w", err)
	}

	return id, nil
}

// LatestUnverified returns the most recently created unverified record for
// the identifier. Expired rows are included on purpose; expiry is a service
// level decision, not a query filter.
func (r *otpRepository) LatestUnverified(ctx context.Context, identifier, channel string) (*models.OTPCode, error) {
	const query = `
		SELECT id, identifier, channel, code, expires_at, verified,
		       attempt_count, delivery_status, COALESCE(delivery_error, ''), created_at
		FROM otp_codes
		WHERE identifier = $1 AND channel = $2 AND verified = FALSE
		ORDER BY created_at DESC
		LIMIT 1`

	var rec models.OTPCode
	err := r.db.Pool.QueryRow(ctx, query, identifier, channel).Scan(
		&rec.ID, &rec.Identifier, &rec.Channel, &rec.Code, &rec.ExpiresAt,
		&rec.Verified, &rec.AttemptCount, &rec.DeliveryStatus, &rec.DeliveryError, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch latest OTP record: %w", err)
	}

	return &rec, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	const query = `
		UPDATE otp_codes
		SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment OTP attempts: %w", err)
	}

	return count, nil
}

func (r *otpRepository) MarkVerified(ctx context.Context, id int64) error {
	const query = `UPDATE otp_codes SET verified = TRUE WHERE id = $1 AND verified = FALSE`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark OTP verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *otpRepository) UpdateDeliveryStatus(ctx context.Context, id int64, status, deliveryError string) error {
	const query = `UPDATE otp_codes SET delivery_status = $2, delivery_error = NULLIF($3, '') WHERE id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, id, status, deliveryError); err != nil {
		util.Error("Failed to update OTP delivery status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	return nil
}

func (r *otpRepository) CountVerifiedSince(ctx context.Context, identifier, channel string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM otp_codes
		WHERE identifier = $1 AND channel = $2 AND verified = TRUE AND created_at >= $3`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, identifier, channel, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count verified codes: %w", err)
	}

	return count, nil
}
