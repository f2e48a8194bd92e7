package pipeline

import (
	"context"
	"slices"

	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// Retriever is one retrieval backend. Hits are returned best first; a
// backend that finds nothing returns an empty list and no error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]hybrid.RetrievalHit, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, limit int) ([]hybrid.RetrievalHit, error)

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string, limit int) ([]hybrid.RetrievalHit, error) {
	return f(ctx, query, limit)
}

// StaticRetriever serves a fixed hit list regardless of the query. The CLI
// uses it to replay backend output captured in files.
type StaticRetriever struct {
	hits []hybrid.RetrievalHit
}

// NewStaticRetriever copies hits into a StaticRetriever.
func NewStaticRetriever(hits []hybrid.RetrievalHit) *StaticRetriever {
	return &StaticRetriever{hits: slices.Clone(hits)}
}

// Retrieve returns up to limit hits (all when limit <= 0).
func (s *StaticRetriever) Retrieve(ctx context.Context, _ string, limit int) ([]hybrid.RetrievalHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(s.hits)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]hybrid.RetrievalHit, n)
	copy(out, s.hits[:n])
	return out, nil
}
