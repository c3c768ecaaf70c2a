package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sourcing-service/internal/audit"
	"sourcing-service/internal/auth"
	"sourcing-service/internal/bucketing"
	"sourcing-service/internal/client"
	"sourcing-service/internal/config"
	"sourcing-service/internal/events"
	"sourcing-service/internal/provider"
	"sourcing-service/internal/repository/postgres"
	redisrepo "sourcing-service/internal/repository/redis"
	"sourcing-service/internal/search"
	"sourcing-service/internal/service"
	"sourcing-service/internal/tls"
	"sourcing-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	postgresClient   *client.PostgresClient
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	bucketingManager *bucketing.BucketingManager
	jwtValidator     *auth.Validator

	// Repositories
	otpRepository   postgres.OTPRepository
	limitRepository postgres.RateLimitRepository
	quoteRepository postgres.QuoteRepository
	orderRepository postgres.OrderRepository

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.bucketingManager = bucketing.NewBucketingManager(cfg)
	factory.jwtValidator = auth.NewValidator(cfg.Providers.JWTSecret)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("rate_limit_fail_open", cfg.RateLimit.FailOpen),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Postgres is the system of record; nothing works without it.
	pg, err := client.NewPostgresClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.postgresClient = pg

	// Redis
	if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = rc
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without cost events", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch
	if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = es
		if err := f.esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = ch
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) OTPRepository() postgres.OTPRepository {
	if f.otpRepository == nil {
		f.otpRepository = postgres.NewOTPRepository(f.postgresClient, util.Get())
	}
	return f.otpRepository
}

func (f *Factory) RateLimitRepository() postgres.RateLimitRepository {
	if f.limitRepository == nil {
		f.limitRepository = postgres.NewRateLimitRepository(f.postgresClient, util.Get())
	}
	return f.limitRepository
}

func (f *Factory) QuoteRepository() postgres.QuoteRepository {
	if f.quoteRepository == nil {
		f.quoteRepository = postgres.NewQuoteRepository(f.postgresClient, util.Get())
	}
	return f.quoteRepository
}

func (f *Factory) OrderRepository() postgres.OrderRepository {
	if f.orderRepository == nil {
		f.orderRepository = postgres.NewOrderRepository(f.postgresClient, util.Get())
	}
	return f.orderRepository
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var cache service.ConfigCache
		if f.redisClient != nil {
			cache = redisrepo.NewQuoteConfigCache(f.redisClient)
		}

		f.serviceFactory = service.NewServiceFactory(service.ServiceFactoryDeps{
			Config:    f.config,
			OTPRepo:   f.OTPRepository(),
			LimitRepo: f.RateLimitRepository(),
			QuoteRepo: f.QuoteRepository(),
			OrderRepo: f.OrderRepository(),
			Cache:     cache,
			Email:     provider.NewEmailSender(f.config, util.Get()),
			SMS:       provider.NewSMSSender(f.config, util.Get()),
			Captcha:   provider.NewCaptchaVerifier(f.config, util.Get()),
			Insights:  provider.NewInsightsClient(f.config, util.Get()),
			Gateway:   provider.NewStripeGateway(f.config, util.Get()),
			Recorder:  audit.NewRecorder(f.clickhouseClient, f.bucketingManager, util.Get()),
			Indexer:   search.NewQuoteIndexer(f.esClient, f.config.Elasticsearch.QuoteIndex, util.Get()),
			Costs:     events.NewCostPublisher(f.kafkaProducer, f.config.Kafka.CostTopic, util.Get()),
			Logger:    util.Get(),
		})
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.postgresClient != nil {
		if err := f.postgresClient.HealthCheck(ctx); err != nil {
			healthErrors["postgres"] = err
		}
	} else {
		healthErrors["postgres"] = fmt.Errorf("postgres client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	} else {
		healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// IsHealthy reports overall readiness. Kafka, ES and ClickHouse carry only
// best-effort telemetry, so they degrade the service but never fail it.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.postgresClient != nil {
			f.postgresClient.Close()
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) JWTValidator() *auth.Validator {
	return f.jwtValidator
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}

func (f *Factory) QuoteIndexer() *search.QuoteIndexer {
	return search.NewQuoteIndexer(f.esClient, f.config.Elasticsearch.QuoteIndex, util.Get())
}
