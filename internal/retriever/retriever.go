// Package retriever answers similarity queries against a tenant's
// collection: embed the query, search the vector store filtered by
// collection tag, and keep only matches at or above the score threshold.
package retriever

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/embeddings"
	"github.com/Galitein/Ai1st-ai/internal/vectorstore"
)

var tracer = otel.Tracer("ait.retriever")

const (
	// DefaultLimit is the number of candidates fetched when the caller
	// does not specify one.
	DefaultLimit = 15

	// DefaultThreshold is the minimum similarity score a match must reach.
	DefaultThreshold = 0.3
)

// Match is one retrieved chunk.
type Match struct {
	PageContent string  `json:"page_content"`
	FileName    string  `json:"file_name"`
	Score       float32 `json:"score"`
}

// Response is the outcome of one retrieval. Status is false when nothing
// cleared the threshold; that is an empty result, not an error.
type Response struct {
	Status  bool    `json:"status"`
	Results []Match `json:"results"`
	Message string  `json:"message,omitempty"`
}

// Query carries the retrieval parameters. Zero Limit and Threshold take
// the package defaults.
type Query struct {
	AITID     string
	Text      string
	Tag       string
	Limit     int
	Threshold float32
}

// Retriever embeds queries and searches the vector store.
type Retriever struct {
	store    vectorstore.Store
	embedder embeddings.Provider
	logger   *zap.Logger
}

// New creates a Retriever.
func New(store vectorstore.Store, embedder embeddings.Provider, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		logger:   logger.Named("retriever"),
	}
}

// Search runs one retrieval. Missing collections and empty result sets
// both come back as Status=false with a nil error; only infrastructure
// failures are errors.
func (r *Retriever) Search(ctx context.Context, q Query) (Response, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Search")
	defer span.End()

	if q.AITID == "" {
		return Response{}, fmt.Errorf("query missing ait id")
	}
	if q.Text == "" {
		return Response{}, fmt.Errorf("query missing text")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Threshold <= 0 {
		q.Threshold = DefaultThreshold
	}
	span.SetAttributes(
		attribute.String("ait_id", q.AITID),
		attribute.String("tag", q.Tag),
		attribute.Int("limit", q.Limit),
	)

	exists, err := r.store.CollectionExists(ctx, q.AITID)
	if err != nil {
		return Response{}, fmt.Errorf("checking collection for %s: %w", q.AITID, err)
	}
	if !exists {
		return noContext(), nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return Response{}, fmt.Errorf("embedding query: %w", err)
	}

	points, err := r.store.Search(ctx, q.AITID, vector, q.Tag, q.Limit)
	if err != nil {
		return Response{}, fmt.Errorf("searching collection for %s: %w", q.AITID, err)
	}

	// The store returns nearest neighbors regardless of absolute
	// similarity; the threshold cut happens here.
	matches := make([]Match, 0, len(points))
	for _, p := range points {
		if p.Score < q.Threshold {
			continue
		}
		matches = append(matches, Match{
			PageContent: p.Chunk.PageContent,
			FileName:    p.Chunk.FileName,
			Score:       p.Score,
		})
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))

	if len(matches) == 0 {
		r.logger.Debug("no matches above threshold",
			zap.String("ait_id", q.AITID),
			zap.String("tag", q.Tag),
			zap.Float32("threshold", q.Threshold),
		)
		return noContext(), nil
	}
	return Response{Status: true, Results: matches}, nil
}

func noContext() Response {
	return Response{
		Status:  false,
		Results: []Match{},
		Message: "no relevant context found",
	}
}
