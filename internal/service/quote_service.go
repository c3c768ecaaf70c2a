package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sourcing-service/internal/events"
	"sourcing-service/internal/models"
	"sourcing-service/internal/repository/postgres"
	"sourcing-service/internal/search"
	"sourcing-service/internal/util"
)

const (
	minQuoteQuantity = 50
	maxQuoteQuantity = 100000

	defaultComplexity = "medium"

	// Shown to the customer when the advisory model is unavailable. Pricing
	// never blocks on the model.
	fallbackInsights = "Our sourcing team will review your requirements and share tailored production guidance within one business day."
)

var (
	ErrConfigNotFound     = errors.New("no pricing configuration found for product category")
	ErrQuantityOutOfRange = errors.New("quantity is outside the orderable range")
)

// categorySynonyms maps common customer phrasings onto catalog categories.
// Keys are already normalized (lowercase, underscores).
var categorySynonyms = map[string]string{
	"tee":        "t_shirt",
	"tees":       "t_shirt",
	"tshirt":     "t_shirt",
	"tshirts":    "t_shirt",
	"t_shirts":   "t_shirt",
	"hoody":      "hoodie",
	"hoodies":    "hoodie",
	"sweatshirt": "hoodie",
	"polo":       "polo_shirt",
	"polos":      "polo_shirt",
	"jeans":      "denim_pants",
	"joggers":    "jogger_pants",
}

// genericFallbacks are tried, in order, when neither the normalized category
// nor its singular form exists in the catalog.
var genericFallbacks = []string{"t_shirt", "generic_apparel"}

var whitespaceRun = regexp.MustCompile(`[\s-]+`)

// ConfigCache sits in front of the pricing catalog.
type ConfigCache interface {
	Get(ctx context.Context, category string) (*models.QuoteConfig, bool)
	Set(ctx context.Context, category string, cfg *models.QuoteConfig) error
}

// InsightsGenerator produces advisory text for a priced quote.
type InsightsGenerator interface {
	Generate(ctx context.Context, category string, quantity int, complexity, fabric string) (string, error)
}

// CostSink receives one event per pricing invocation, whatever the outcome.
type CostSink interface {
	Publish(ctx context.Context, inv events.PricingInvocation)
}

type PriceRequest struct {
	RequestID     string
	ProductType   string
	Quantity      int
	Complexity    string
	FabricType    string
	CustomerEmail string
	CustomerName  string
}

// Timeline breaks the delivery estimate into its parts.
type Timeline struct {
	SamplingDays   int `json:"samplingDays"`
	ProductionDays int `json:"productionDays"`
	BufferDays     int `json:"bufferDays"`
	TotalDays      int `json:"totalDays"`
}

type PriceResult struct {
	Quote    *models.Quote
	Timeline Timeline
	Insights string
	AIUsed   bool
}

// QuoteService prices bulk apparel requests from the catalog and enriches the
// result with model-generated sourcing advice.
type QuoteService struct {
	repo     postgres.QuoteRepository
	cache    ConfigCache
	insights InsightsGenerator
	indexer  *search.QuoteIndexer
	costs    CostSink
	logger   *zap.Logger
	now      func() time.Time
}

func NewQuoteService(
	repo postgres.QuoteRepository,
	cache ConfigCache,
	insights InsightsGenerator,
	indexer *search.QuoteIndexer,
	costs CostSink,
	logger *zap.Logger,
) *QuoteService {
	return &QuoteService{
		repo:     repo,
		cache:    cache,
		insights: insights,
		indexer:  indexer,
		costs:    costs,
		logger:   logger,
		now:      time.Now,
	}
}

// Price resolves the catalog entry, computes the deterministic price and
// timeline, then layers the advisory text on top. The advisory call degrades
// to a static message; it never fails the quote.
func (s *QuoteService) Price(ctx context.Context, req PriceRequest) (*PriceResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	started := s.now()
	category := NormalizeCategory(req.ProductType)

	// Cost accounting fires once per invocation, whatever the outcome.
	inv := events.PricingInvocation{
		RequestID: req.RequestID,
		Category:  category,
		Quantity:  req.Quantity,
		InvokedAt: started.UTC(),
	}
	published := false
	publish := func(ctx context.Context) {
		if s.costs == nil {
			return
		}
		inv.DurationMS = s.now().Sub(started).Milliseconds()
		s.costs.Publish(ctx, inv)
	}
	defer func() {
		if !published {
			publish(ctx)
		}
	}()

	if req.Quantity < minQuoteQuantity || req.Quantity > maxQuoteQuantity {
		inv.Outcome = "quantity_out_of_range"
		return nil, fmt.Errorf("%w: %d (allowed %d-%d)",
			ErrQuantityOutOfRange, req.Quantity, minQuoteQuantity, maxQuoteQuantity)
	}

	cfg, resolved, err := s.resolveConfig(ctx, category)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			inv.Outcome = "config_not_found"
		} else {
			inv.Outcome = "lookup_failed"
		}
		return nil, err
	}
	inv.Category = resolved

	complexity := strings.ToLower(strings.TrimSpace(req.Complexity))
	if complexity == "" {
		complexity = defaultComplexity
	}
	multiplier, ok := cfg.ComplexityMultiplier[complexity]
	if !ok {
		multiplier, ok = cfg.ComplexityMultiplier[defaultComplexity]
		if !ok {
			multiplier = 1.0
		}
	}

	unitPrice := round4(cfg.BasePrice * multiplier * volumeDiscount(req.Quantity))
	totalPrice := round2(unitPrice * float64(req.Quantity))
	timeline := buildTimeline(cfg, req.Quantity)

	insights, aiErr := s.insights.Generate(ctx, resolved, req.Quantity, complexity, req.FabricType)
	aiSucceeded := aiErr == nil
	inv.AIUsed = true
	inv.AISucceeded = aiSucceeded
	if aiErr != nil {
		util.Warn("Advisory generation failed, using fallback",
			zap.String("request_id", req.RequestID),
			zap.Error(aiErr))
		insights = fallbackInsights
	}

	quote := &models.Quote{
		ID:            uuid.New().String(),
		RequestID:     req.RequestID,
		Category:      resolved,
		Quantity:      req.Quantity,
		Complexity:    complexity,
		FabricType:    req.FabricType,
		UnitPrice:     unitPrice,
		TotalPrice:    totalPrice,
		TimelineDays:  timeline.TotalDays,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		AIInsights:    insights,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.InsertQuote(ctx, quote); err != nil {
		inv.Outcome = "persist_failed"
		return nil, err
	}
	inv.Outcome = "priced"

	// Search mirroring and cost accounting are both best effort; run them
	// concurrently and let neither delay the response.
	published = true
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.indexer.Index(gctx, quote)
		return nil
	})
	g.Go(func() error {
		publish(gctx)
		return nil
	})
	_ = g.Wait()

	util.Info("Quote priced",
		zap.String("request_id", req.RequestID),
		zap.String("category", resolved),
		zap.Int("quantity", req.Quantity),
		zap.Float64("total_price", totalPrice),
		zap.Bool("ai_succeeded", aiSucceeded))

	return &PriceResult{
		Quote:    quote,
		Timeline: timeline,
		Insights: insights,
		AIUsed:   aiSucceeded,
	}, nil
}

// resolveConfig walks the lookup chain: exact category, singular form, then
// the generic fallbacks. The resolved category name is returned alongside the
// config so the quote records what it was actually priced as.
func (s *QuoteService) resolveConfig(ctx context.Context, category string) (*models.QuoteConfig, string, error) {
	candidates := []string{category}
	if singular := strings.TrimSuffix(category, "s"); singular != category && singular != "" {
		candidates = append(candidates, singular)
	}
	candidates = append(candidates, genericFallbacks...)

	for _, candidate := range candidates {
		if s.cache != nil {
			if cfg, ok := s.cache.Get(ctx, candidate); ok {
				return cfg, candidate, nil
			}
		}

		cfg, err := s.repo.GetConfig(ctx, candidate)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				continue
			}
			return nil, "", err
		}

		if s.cache != nil {
			_ = s.cache.Set(ctx, candidate, cfg)
		}
		return cfg, candidate, nil
	}

	return nil, "", fmt.Errorf("%w: %q", ErrConfigNotFound, category)
}

// NormalizeCategory folds customer input onto catalog naming: lowercase,
// whitespace and dashes collapsed to underscores, synonyms applied.
func NormalizeCategory(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = whitespaceRun.ReplaceAllString(normalized, "_")
	if canonical, ok := categorySynonyms[normalized]; ok {
		return canonical
	}
	return normalized
}

func volumeDiscount(quantity int) float64 {
	switch {
	case quantity >= 200:
		return 0.90
	case quantity >= 100:
		return 0.95
	default:
		return 1.0
	}
}

func buildTimeline(cfg *models.QuoteConfig, quantity int) Timeline {
	production := int(math.Ceil(float64(quantity) / 100.0 * float64(cfg.ProductionDaysPer100)))
	buffer := int(math.Ceil(float64(production) * 0.10))

	return Timeline{
		SamplingDays:   cfg.SamplingDays,
		ProductionDays: production,
		BufferDays:     buffer,
		TotalDays:      cfg.SamplingDays + production + buffer,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
