package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sourcing-service/internal/config"
	"sourcing-service/internal/util"
)

type PostgresClient struct {
	Pool   *pgxpool.Pool
	config *config.PostgresConfig
}

// NewPostgresClient initializes a pgx connection pool.
func NewPostgresClient(cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	pgConfig := cfg.Postgres

	poolConfig, err := pgxpool.ParseConfig(pgConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres URL: %w", err)
	}

	poolConfig.MaxConns = int32(pgConfig.MaxConns)
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	util.Info("Postgres client initialized",
		zap.Int("max_conns", pgConfig.MaxConns))

	return &PostgresClient{
		Pool:   pool,
		config: &pgConfig,
	}, nil
}

// HealthCheck verifies Postgres connectivity.
func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// Close drains the pool.
func (p *PostgresClient) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		util.Info("Postgres pool closed")
	}
}
