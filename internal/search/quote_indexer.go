package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sourcing-service/internal/client"
	"sourcing-service/internal/models"
	"sourcing-service/internal/util"
)

// QuoteDocument is the searchable projection of a priced quote.
type QuoteDocument struct {
	RequestID     string    `json:"request_id"`
	Category      string    `json:"category"`
	Quantity      int       `json:"quantity"`
	Complexity    string    `json:"complexity"`
	FabricType    string    `json:"fabric_type"`
	UnitPrice     float64   `json:"unit_price"`
	TotalPrice    float64   `json:"total_price"`
	TimelineDays  int       `json:"timeline_days"`
	CustomerEmail string    `json:"customer_email"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuoteIndexer mirrors priced quotes into Elasticsearch for back-office
// search. Indexing is best effort and never blocks the pricing response.
type QuoteIndexer struct {
	es     *client.ESClient
	index  string
	logger *zap.Logger
}

func NewQuoteIndexer(es *client.ESClient, index string, logger *zap.Logger) *QuoteIndexer {
	return &QuoteIndexer{es: es, index: index, logger: logger}
}

func (i *QuoteIndexer) Index(ctx context.Context, quote *models.Quote) {
	if i == nil || i.es == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := QuoteDocument{
		RequestID:     quote.RequestID,
		Category:      quote.Category,
		Quantity:      quote.Quantity,
		Complexity:    quote.Complexity,
		FabricType:    quote.FabricType,
		UnitPrice:     quote.UnitPrice,
		TotalPrice:    quote.TotalPrice,
		TimelineDays:  quote.TimelineDays,
		CustomerEmail: quote.CustomerEmail,
		CreatedAt:     quote.CreatedAt,
	}

	res, err := i.es.IndexDocument(ctx, i.index, quote.ID, doc)
	if err != nil {
		util.Warn("Failed to index quote document",
			zap.String("request_id", quote.RequestID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Warn("Elasticsearch rejected quote document",
			zap.String("request_id", quote.RequestID),
			zap.String("status", res.Status()))
		return
	}

	util.Debug("Quote indexed",
		zap.String("request_id", quote.RequestID))
}

// Search runs a match query against the quote index, used by the back-office
// search endpoint.
func (i *QuoteIndexer) Search(ctx context.Context, term string, size int) ([]QuoteDocument, error) {
	if size <= 0 || size > 100 {
		size = 20
	}

	query := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  term,
				"fields": []string{"category", "customer_email", "fabric_type"},
			},
		},
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}

	res, err := i.es.Search(ctx, i.index, query)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source QuoteDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := i.es.ParseResponse(res, &parsed); err != nil {
		return nil, err
	}

	docs := make([]QuoteDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, hit.Source)
	}

	return docs, nil
}
