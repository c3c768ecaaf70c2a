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
)

// RateLimitRepository is the storage contract for windowed request counters.
type RateLimitRepository interface {
	FindActive(ctx context.Context, identifier, kind string, windowStart time.Time) (*models.RateLimit, error)
	Create(ctx context.Context, identifier, kind string, windowStart time.Time) error
	Increment(ctx context.Context, id int64) (int, error)
}

type rateLimitRepository struct {
	db     *client.PostgresClient
	logger *zap.Logger
}

func NewRateLimitRepository(db *client.PostgresClient, logger *zap.Logger) RateLimitRepository {
	return &rateLimitRepository{db: db, logger: logger}
}

// FindActive returns the newest counter row for the pair whose window starts
// on or after windowStart.
func (r *rateLimitRepository) FindActive(ctx context.Context, identifier, kind string, windowStart time.Time) (*models.RateLimit, error) {
	const query = `
		SELECT id, identifier, kind, window_start, request_count
		FROM rate_limits
		WHERE identifier = $1 AND kind = $2 AND window_start >= $3
		ORDER BY window_start DESC
		LIMIT 1`

	var rec models.RateLimit
	err := r.db.Pool.QueryRow(ctx, query, identifier, kind, windowStart).Scan(
		&rec.ID, &rec.Identifier, &rec.Kind, &rec.WindowStart, &rec.RequestCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch rate limit counter: %w", err)
	}

	return &rec, nil
}

func (r *rateLimitRepository) Create(ctx context.Context, identifier, kind string, windowStart time.Time) error {
	const query = `
		INSERT INTO rate_limits (identifier, kind, window_start, request_count)
		VALUES ($1, $2, $3, 1)`

	if _, err := r.db.Pool.Exec(ctx, query, identifier, kind, windowStart); err != nil {
		return fmt.Errorf("failed to create rate limit counter: %w", err)
	}

	return nil
}

func (r *rateLimitRepository) Increment(ctx context.Context, id int64) (int, error) {
	const query = `
		UPDATE rate_limits
		SET request_count = request_count + 1
		WHERE id = $1
		RETURNING request_count`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return count, nil
}
