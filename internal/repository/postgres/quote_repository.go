package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"sourcing-service/internal/client"
	"sourcing-service/internal/models"
	"sourcing-service/internal/util"
)

// QuoteRepository covers the pricing catalog and persisted quotes.
type QuoteRepository interface {
	GetConfig(ctx context.Context, category string) (*models.QuoteConfig, error)
	InsertQuote(ctx context.Context, quote *models.Quote) error
	GetQuoteTotal(ctx context.Context, quoteID string) (float64, error)
}

type quoteRepository struct {
	db     *client.PostgresClient
	logger *zap.Logger
}

func NewQuoteRepository(db *client.PostgresClient, logger *zap.Logger) QuoteRepository {
	return &quoteRepository{db: db, logger: logger}
}

func (r *quoteRepository) GetConfig(ctx context.Context, category string) (*models.QuoteConfig, error) {
	const query = `
		SELECT id, category, base_price, complexity_multiplier,
		       min_quantity, max_quantity, sampling_days, production_days_per_100
		FROM quote_configs
		WHERE category = $1`

	var (
		cfg         models.QuoteConfig
		multipliers []byte
	)
	err := r.db.Pool.QueryRow(ctx, query, category).Scan(
		&cfg.ID, &cfg.Category, &cfg.BasePrice, &multipliers,
		&cfg.MinQuantity, &cfg.MaxQuantity, &cfg.SamplingDays, &cfg.ProductionDaysPer100,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch quote config: %w", err)
	}

	if err := json.Unmarshal(multipliers, &cfg.ComplexityMultiplier); err != nil {
		return nil, fmt.Errorf("invalid complexity multiplier payload for %q: %w", category, err)
	}

	return &cfg, nil
}

func (r *quoteRepository) InsertQuote(ctx context.Context, quote *models.Quote) error {
	const query = `
		INSERT INTO quotes
			(id, request_id, category, quantity, complexity, fabric_type,
			 unit_price, total_price, timeline_days, customer_email, customer_name,
			 ai_insights, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Pool.Exec(ctx, query,
		quote.ID, quote.RequestID, quote.Category, quote.Quantity, quote.Complexity,
		quote.FabricType, quote.UnitPrice, quote.TotalPrice, quote.TimelineDays,
		quote.CustomerEmail, quote.CustomerName, quote.AIInsights, quote.CreatedAt,
	)
	if err != nil {
		util.Error("Failed to persist quote",
			zap.String("request_id", quote.RequestID),
			zap.String("customer", util.MaskEmail(quote.CustomerEmail)),
			zap.Error(err))
		return fmt.Errorf("failed to persist quote: %w", err)
	}

	return nil
}

func (r *quoteRepository) GetQuoteTotal(ctx context.Context, quoteID string) (float64, error) {
	const query = `SELECT total_price FROM quotes WHERE id = $1`

	var total float64
	err := r.db.Pool.QueryRow(ctx, query, quoteID).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to fetch quote total: %w", err)
	}

	return total, nil
}
