// Package ingest loads and validates retrieval results at the boundary
// between external backends and the scorer.
package ingest

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// Query bundles one query's backend results. BM25 is a pointer so an absent
// key (no lexical backend) stays distinct from an empty list.
type Query struct {
	Text     string                 `yaml:"query" json:"query"`
	Sparse   []hybrid.RetrievalHit  `yaml:"sparse" json:"sparse"`
	Dense    []hybrid.RetrievalHit  `yaml:"dense" json:"dense"`
	BM25     *[]hybrid.RetrievalHit `yaml:"bm25" json:"bm25"`
	Passages map[string]string      `yaml:"passages" json:"passages"`
}

// BM25Hits returns the lexical list, nil when the source was absent.
func (q *Query) BM25Hits() []hybrid.RetrievalHit {
	if q.BM25 == nil {
		return nil
	}
	if *q.BM25 == nil {
		return []hybrid.RetrievalHit{}
	}
	return *q.BM25
}

// ValidateHits checks one source's hits: non-empty doc ids, finite scores,
// known matched fields and no duplicate doc ids.
func ValidateHits(source string, hits []hybrid.RetrievalHit) error {
	seen := make(map[string]int, len(hits))
	for i, h := range hits {
		pos := strconv.Itoa(i)
		if h.DocID == "" {
			return rerrors.New(rerrors.ErrCodeEmptyDocID, "hit has an empty doc_id", nil).
				WithDetail("source", source).
				WithDetail("index", pos)
		}
		if math.IsNaN(h.Score) || math.IsInf(h.Score, 0) {
			return rerrors.New(rerrors.ErrCodeInvalidScore,
				fmt.Sprintf("hit %q has a non-finite score", h.DocID), nil).
				WithDetail("source", source).
				WithDetail("index", pos)
		}
		for _, f := range h.MatchedFields {
			if !hybrid.KnownField(f) {
				return rerrors.New(rerrors.ErrCodeUnknownField,
					fmt.Sprintf("hit %q has unknown matched field %q", h.DocID, f), nil).
					WithDetail("source", source).
					WithSuggestion("use one of: title, summary, abstract, content")
			}
		}
		if prev, dup := seen[h.DocID]; dup {
			return rerrors.New(rerrors.ErrCodeDuplicateDoc,
				fmt.Sprintf("doc_id %q appears more than once", h.DocID), nil).
				WithDetail("source", source).
				WithDetail("first", strconv.Itoa(prev)).
				WithDetail("second", pos).
				WithSuggestion("deduplicate backend results before scoring")
		}
		seen[h.DocID] = i
	}
	return nil
}

// Validate checks every source present in q.
func (q *Query) Validate() error {
	if q.Sparse == nil && q.Dense == nil {
		return rerrors.New(rerrors.ErrCodeMissingSource, "query has neither sparse nor dense results", nil).
			WithSuggestion("add a sparse: and a dense: list (either may be empty)")
	}
	if err := ValidateHits("sparse", q.Sparse); err != nil {
		return err
	}
	if err := ValidateHits("dense", q.Dense); err != nil {
		return err
	}
	if q.BM25 != nil {
		if err := ValidateHits("bm25", *q.BM25); err != nil {
			return err
		}
	}
	return nil
}

// LoadHits reads a YAML or JSON list of hits and validates it.
func LoadHits(path string) ([]hybrid.RetrievalHit, error) {
	var hits []hybrid.RetrievalHit
	if err := decodeFile(path, &hits); err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []hybrid.RetrievalHit{}
	}
	if err := ValidateHits(path, hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// LoadPassages reads a doc_id -> text mapping.
func LoadPassages(path string) (map[string]string, error) {
	passages := map[string]string{}
	if err := decodeFile(path, &passages); err != nil {
		return nil, err
	}
	return passages, nil
}

// LoadQuery reads a query bundle with sparse, dense, optional bm25 and
// optional passages keys, and validates it.
func LoadQuery(path string) (*Query, error) {
	var q Query
	if err := decodeFile(path, &q); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// decodeFile reads path and decodes it with yaml.v3, which also accepts JSON.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rerrors.New(rerrors.ErrCodeFileNotFound, "file not found", err).
				WithDetail("path", path)
		}
		return rerrors.IOError("failed to read file", err).WithDetail("path", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return rerrors.New(rerrors.ErrCodeFileCorrupt, "failed to parse file", err).
			WithDetail("path", path).
			WithSuggestion("expected YAML or JSON")
	}
	return nil
}
