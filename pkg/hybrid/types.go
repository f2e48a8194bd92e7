package hybrid

import (
	"fmt"
	"strings"
)

// Field names a document field a backend reports as matched.
type Field string

const (
	FieldTitle    Field = "title"
	FieldSummary  Field = "summary"
	FieldAbstract Field = "abstract"
	FieldContent  Field = "content"
)

// KnownField reports whether f is one of the fields the scorer boosts.
func KnownField(f Field) bool {
	switch f {
	case FieldTitle, FieldSummary, FieldAbstract, FieldContent:
		return true
	}
	return false
}

// RetrievalHit is a single result from one retrieval backend.
// Backends return hits ordered by their own score, highest first.
type RetrievalHit struct {
	DocID         string  `json:"doc_id" yaml:"doc_id"`
	Score         float64 `json:"score" yaml:"score"`
	MatchedFields []Field `json:"matched_fields,omitempty" yaml:"matched_fields,omitempty"`
}

// HasField reports whether the hit matched in field f.
func (h RetrievalHit) HasField(f Field) bool {
	for _, m := range h.MatchedFields {
		if m == f {
			return true
		}
	}
	return false
}

// HybridScore is the fused score for one document.
type HybridScore struct {
	DocID string `json:"doc_id"`

	// Raw backend scores, 0 when the document was absent from that backend.
	SparseScore float64 `json:"sparse_score"`
	DenseScore  float64 `json:"dense_score"`
	BM25Score   float64 `json:"bm25_score"`

	// HybridScore is the fused score. Normalized to the top result when
	// normalization was requested and the top score is positive.
	HybridScore float64 `json:"hybrid_score"`

	// TitleBoost is the field boost applied to this document (the maximum
	// over all backends that returned it).
	TitleBoost float64 `json:"title_boost"`
	// ContentBoost is the scorer's body-match boost, kept for explain output.
	ContentBoost float64 `json:"content_boost"`

	// 1-indexed positions in each backend's list, 0 if absent.
	SparseRank int `json:"sparse_rank,omitempty"`
	DenseRank  int `json:"dense_rank,omitempty"`
	BM25Rank   int `json:"bm25_rank,omitempty"`
}

// FusionMethod selects how backend lists are combined.
type FusionMethod string

const (
	// FusionWeightedSum blends raw scores with per-backend weights.
	FusionWeightedSum FusionMethod = "weighted_sum"
	// FusionRRF fuses on rank alone: Σ 1/(k + rank).
	FusionRRF FusionMethod = "rrf"
)

// ParseFusionMethod converts a config string to a FusionMethod.
func ParseFusionMethod(s string) (FusionMethod, error) {
	switch FusionMethod(strings.ToLower(strings.TrimSpace(s))) {
	case FusionWeightedSum, "weighted", "":
		return FusionWeightedSum, nil
	case FusionRRF, "reciprocal_rank_fusion":
		return FusionRRF, nil
	default:
		return "", fmt.Errorf("unknown fusion method %q (use weighted_sum or rrf)", s)
	}
}

// Weights configures weighted-sum fusion. Values are treated as an
// immutable snapshot; Scorer.UpdateWeights swaps the whole struct.
type Weights struct {
	Sparse float64 `json:"sparse" yaml:"sparse"`
	Dense  float64 `json:"dense" yaml:"dense"`
	BM25   float64 `json:"bm25" yaml:"bm25"`
}

// Sum returns the total of all three weights.
func (w Weights) Sum() float64 {
	return w.Sparse + w.Dense + w.BM25
}

// DefaultWeights returns the default sparse/dense/bm25 blend.
func DefaultWeights() Weights {
	return Weights{
		Sparse: 0.3,
		Dense:  0.5,
		BM25:   0.2,
	}
}
