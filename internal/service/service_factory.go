package service

import (
	"go.uber.org/zap"

	"sourcing-service/internal/audit"
	"sourcing-service/internal/config"
	"sourcing-service/internal/events"
	"sourcing-service/internal/provider"
	"sourcing-service/internal/repository/postgres"
	"sourcing-service/internal/search"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg       *config.Config
	otpRepo   postgres.OTPRepository
	limitRepo postgres.RateLimitRepository
	quoteRepo postgres.QuoteRepository
	orderRepo postgres.OrderRepository

	cache    ConfigCache
	email    provider.CodeSender
	sms      provider.CodeSender
	captcha  CaptchaVerifier
	insights InsightsGenerator
	gateway  StripeGateway
	recorder *audit.Recorder
	indexer  *search.QuoteIndexer
	costs    *events.CostPublisher
	logger   *zap.Logger

	rateLimiter    *RateLimiter
	otpService     *OTPService
	quoteService   *QuoteService
	paymentService *PaymentService
}

type ServiceFactoryDeps struct {
	Config    *config.Config
	OTPRepo   postgres.OTPRepository
	LimitRepo postgres.RateLimitRepository
	QuoteRepo postgres.QuoteRepository
	OrderRepo postgres.OrderRepository
	Cache     ConfigCache
	Email     provider.CodeSender
	SMS       provider.CodeSender
	Captcha   CaptchaVerifier
	Insights  InsightsGenerator
	Gateway   StripeGateway
	Recorder  *audit.Recorder
	Indexer   *search.QuoteIndexer
	Costs     *events.CostPublisher
	Logger    *zap.Logger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(deps ServiceFactoryDeps) *ServiceFactory {
	return &ServiceFactory{
		cfg:       deps.Config,
		otpRepo:   deps.OTPRepo,
		limitRepo: deps.LimitRepo,
		quoteRepo: deps.QuoteRepo,
		orderRepo: deps.OrderRepo,
		cache:     deps.Cache,
		email:     deps.Email,
		sms:       deps.SMS,
		captcha:   deps.Captcha,
		insights:  deps.Insights,
		gateway:   deps.Gateway,
		recorder:  deps.Recorder,
		indexer:   deps.Indexer,
		costs:     deps.Costs,
		logger:    deps.Logger,
	}
}

// RateLimiter returns the rate limiter instance (singleton)
func (f *ServiceFactory) RateLimiter() *RateLimiter {
	if f.rateLimiter == nil {
		f.rateLimiter = NewRateLimiter(f.limitRepo, f.cfg, f.logger)
	}
	return f.rateLimiter
}

// OTPService returns the OTP service instance (singleton)
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		f.otpService = NewOTPService(
			f.otpRepo,
			f.RateLimiter(),
			f.email,
			f.sms,
			f.captcha,
			f.recorder,
			f.logger,
		)
	}
	return f.otpService
}

// QuoteService returns the quote service instance (singleton)
func (f *ServiceFactory) QuoteService() *QuoteService {
	if f.quoteService == nil {
		f.quoteService = NewQuoteService(
			f.quoteRepo,
			f.cache,
			f.insights,
			f.indexer,
			f.costs,
			f.logger,
		)
	}
	return f.quoteService
}

// PaymentService returns the payment service instance (singleton)
func (f *ServiceFactory) PaymentService() *PaymentService {
	if f.paymentService == nil {
		f.paymentService = NewPaymentService(
			f.orderRepo,
			f.quoteRepo,
			f.gateway,
			f.logger,
		)
	}
	return f.paymentService
}
