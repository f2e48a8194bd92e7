package hybrid

import (
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// Default field boosts.
const (
	DefaultTitleBoost    = 2.0
	DefaultAbstractBoost = 1.5
	DefaultContentBoost  = 1.0
)

// weightSumTolerance is how far weighted-sum weights may drift from 1.0
// before a warning is logged.
const weightSumTolerance = 1e-6

// Scorer fuses backend result lists into one ranked list of HybridScore.
//
// Everything except the weights is fixed at construction. Weights live in
// an atomically swapped snapshot so UpdateWeights is safe alongside Score.
type Scorer struct {
	weights atomic.Pointer[Weights]

	method        FusionMethod
	rrfK          int
	titleBoost    float64
	abstractBoost float64
	contentBoost  float64
	logger        *slog.Logger
}

// Option configures a Scorer.
type Option func(*scorerConfig)

type scorerConfig struct {
	weights       Weights
	method        FusionMethod
	rrfK          int
	titleBoost    float64
	abstractBoost float64
	contentBoost  float64
	logger        *slog.Logger
}

// WithWeights sets the weighted-sum fusion weights.
func WithWeights(w Weights) Option {
	return func(c *scorerConfig) {
		c.weights = w
	}
}

// WithFusionMethod selects weighted-sum or RRF fusion.
func WithFusionMethod(m FusionMethod) Option {
	return func(c *scorerConfig) {
		c.method = m
	}
}

// WithRRFK sets the RRF rank-damping constant. Values <= 0 use 60.
func WithRRFK(k int) Option {
	return func(c *scorerConfig) {
		c.rrfK = k
	}
}

// WithFieldBoosts sets the multiplicative boosts for title, abstract/summary
// and content matches.
func WithFieldBoosts(title, abstract, content float64) Option {
	return func(c *scorerConfig) {
		c.titleBoost = title
		c.abstractBoost = abstract
		c.contentBoost = content
	}
}

// WithLogger sets the logger used for configuration warnings and weight
// updates. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *scorerConfig) {
		c.logger = l
	}
}

// NewScorer creates a scorer. Options are validated once here; a
// weighted-sum configuration whose weights do not sum to 1.0 is logged as a
// warning and accepted.
func NewScorer(opts ...Option) *Scorer {
	cfg := scorerConfig{
		weights:       DefaultWeights(),
		method:        FusionWeightedSum,
		rrfK:          DefaultRRFConstant,
		titleBoost:    DefaultTitleBoost,
		abstractBoost: DefaultAbstractBoost,
		contentBoost:  DefaultContentBoost,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rrfK <= 0 {
		cfg.rrfK = DefaultRRFConstant
	}
	if cfg.method == "" {
		cfg.method = FusionWeightedSum
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &Scorer{
		method:        cfg.method,
		rrfK:          cfg.rrfK,
		titleBoost:    cfg.titleBoost,
		abstractBoost: cfg.abstractBoost,
		contentBoost:  cfg.contentBoost,
		logger:        cfg.logger,
	}
	w := cfg.weights
	s.weights.Store(&w)

	if s.method == FusionWeightedSum {
		if sum := w.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
			s.logger.Warn("Hybrid weights do not sum to 1.0",
				slog.Float64("sum", sum),
				slog.Float64("sparse", w.Sparse),
				slog.Float64("dense", w.Dense),
				slog.Float64("bm25", w.BM25))
		}
	}

	return s
}

// Weights returns the current weight snapshot.
func (s *Scorer) Weights() Weights {
	return *s.weights.Load()
}

// FusionMethod returns the configured fusion method.
func (s *Scorer) FusionMethod() FusionMethod {
	return s.method
}

// RRFK returns the RRF constant.
func (s *Scorer) RRFK() int {
	return s.rrfK
}

// UpdateWeights replaces the fusion weights for runtime tuning. A nil bm25
// keeps the current BM25 weight. No validation is performed.
func (s *Scorer) UpdateWeights(sparse, dense float64, bm25 *float64) {
	next := Weights{Sparse: sparse, Dense: dense, BM25: s.Weights().BM25}
	if bm25 != nil {
		next.BM25 = *bm25
	}
	s.weights.Store(&next)

	s.logger.Info("Updated hybrid weights",
		slog.Float64("sparse", next.Sparse),
		slog.Float64("dense", next.Dense),
		slog.Float64("bm25", next.BM25))
}

// source indexes one backend's hits by doc id. Duplicate ids within a list
// are last-wins for both the hit and its rank.
type source struct {
	hits  map[string]RetrievalHit
	ranks map[string]int
}

func indexHits(hits []RetrievalHit) source {
	src := source{
		hits:  make(map[string]RetrievalHit, len(hits)),
		ranks: make(map[string]int, len(hits)),
	}
	for i, h := range hits {
		src.hits[h.DocID] = h
		src.ranks[h.DocID] = i + 1
	}
	return src
}

// Score fuses the three backend lists. A nil bm25 means the lexical backend
// was not consulted; an empty non-nil slice means it returned nothing.
//
// The result holds one entry per doc id in the union of the inputs, sorted
// by HybridScore descending with doc id ascending as tie-break. When
// normalize is set and the top score is positive every score is divided by
// the top score. A top score <= 0 leaves scores untouched.
func (s *Scorer) Score(sparse, dense, bm25 []RetrievalHit, normalize bool) []HybridScore {
	// Return empty slice, not nil, for consistent API behavior
	if len(sparse) == 0 && len(dense) == 0 && len(bm25) == 0 {
		return []HybridScore{}
	}

	w := s.Weights()
	sp := indexHits(sparse)
	de := indexHits(dense)
	lx := indexHits(bm25)
	useBM25 := bm25 != nil

	ids := unionIDs(sparse, dense, bm25)
	results := make([]HybridScore, 0, len(ids))

	for _, id := range ids {
		sHit, inSparse := sp.hits[id]
		dHit, inDense := de.hits[id]
		bHit, inBM25 := lx.hits[id]

		hs := HybridScore{
			DocID:        id,
			SparseScore:  sHit.Score,
			DenseScore:   dHit.Score,
			BM25Score:    bHit.Score,
			SparseRank:   sp.ranks[id],
			DenseRank:    de.ranks[id],
			BM25Rank:     lx.ranks[id],
			ContentBoost: s.contentBoost,
		}

		boost := math.Inf(-1)
		if inSparse {
			boost = math.Max(boost, s.fieldBoost(sHit))
		}
		if inDense {
			boost = math.Max(boost, s.fieldBoost(dHit))
		}
		if inBM25 {
			boost = math.Max(boost, s.fieldBoost(bHit))
		}
		hs.TitleBoost = boost

		switch s.method {
		case FusionRRF:
			hs.HybridScore = s.rrfScore(hs) * boost
		default:
			hs.HybridScore = weightedSum(w, hs, useBM25) * boost
		}

		results = append(results, hs)
	}

	sortScores(results)

	if normalize {
		normalizeScores(results)
	}

	return results
}

// fieldBoost picks the boost for a single hit: title beats summary/abstract
// beats content.
func (s *Scorer) fieldBoost(h RetrievalHit) float64 {
	switch {
	case h.HasField(FieldTitle):
		return s.titleBoost
	case h.HasField(FieldSummary), h.HasField(FieldAbstract):
		return s.abstractBoost
	default:
		return s.contentBoost
	}
}

// rrfScore sums 1/(k + rank) over the backends that returned the document.
func (s *Scorer) rrfScore(hs HybridScore) float64 {
	var score float64
	for _, rank := range []int{hs.SparseRank, hs.DenseRank, hs.BM25Rank} {
		if rank > 0 {
			score += 1.0 / float64(s.rrfK+rank)
		}
	}
	return score
}

// weightedSum blends raw scores. Without BM25 the sparse and dense weights
// are rescaled to sum to one.
func weightedSum(w Weights, hs HybridScore, useBM25 bool) float64 {
	if useBM25 {
		return w.Sparse*hs.SparseScore + w.Dense*hs.DenseScore + w.BM25*hs.BM25Score
	}

	var ws, wd float64
	if total := w.Sparse + w.Dense; total != 0 {
		ws = w.Sparse / total
		wd = w.Dense / total
	}
	return ws*hs.SparseScore + wd*hs.DenseScore
}

// unionIDs returns every doc id across the lists in first-seen order.
func unionIDs(lists ...[]RetrievalHit) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, list := range lists {
		for _, h := range list {
			if _, ok := seen[h.DocID]; ok {
				continue
			}
			seen[h.DocID] = struct{}{}
			ids = append(ids, h.DocID)
		}
	}
	return ids
}

// sortScores orders by HybridScore descending, then DocID ascending.
func sortScores(results []HybridScore) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].HybridScore != results[j].HybridScore {
			return results[i].HybridScore > results[j].HybridScore
		}
		return results[i].DocID < results[j].DocID
	})
}

// normalizeScores divides by the top score. Results are sorted, so the
// first entry holds the maximum.
func normalizeScores(results []HybridScore) {
	if len(results) == 0 {
		return
	}

	top := results[0].HybridScore
	if top <= 0 {
		return
	}

	for i := range results {
		results[i].HybridScore /= top
	}
}
