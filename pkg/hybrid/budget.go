package hybrid

import (
	"math"
	"unicode/utf8"
)

// Budget defaults.
const (
	DefaultMaxPassages           = 50
	DefaultMaxTokens             = 8000
	DefaultDisagreementThreshold = 0.3
)

// Budget trims a fused list to a passage count and token ceiling.
// It is immutable after construction and safe for concurrent use.
type Budget struct {
	maxPassages   int
	maxTokens     int
	sampling      bool
	threshold     float64
	estimateToken func(string) int
}

// BudgetOption configures a Budget.
type BudgetOption func(*Budget)

// WithMaxPassages caps the number of passages kept.
func WithMaxPassages(n int) BudgetOption {
	return func(b *Budget) {
		b.maxPassages = n
	}
}

// WithMaxTokens caps the estimated token total. Zero or negative disables
// the token cap.
func WithMaxTokens(n int) BudgetOption {
	return func(b *Budget) {
		b.maxTokens = n
	}
}

// WithDisagreementSampling enables disagreement sampling with the given
// minimum relative sparse/dense disagreement.
func WithDisagreementSampling(enabled bool, threshold float64) BudgetOption {
	return func(b *Budget) {
		b.sampling = enabled
		b.threshold = threshold
	}
}

// WithTokenEstimator replaces the default length/4 token estimate.
func WithTokenEstimator(fn func(string) int) BudgetOption {
	return func(b *Budget) {
		if fn != nil {
			b.estimateToken = fn
		}
	}
}

// NewBudget creates a budget with defaults of 50 passages, 8000 tokens and
// disagreement sampling off (threshold 0.3).
func NewBudget(opts ...BudgetOption) *Budget {
	b := &Budget{
		maxPassages:   DefaultMaxPassages,
		maxTokens:     DefaultMaxTokens,
		threshold:     DefaultDisagreementThreshold,
		estimateToken: EstimateTokens,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxPassages returns the passage cap.
func (b *Budget) MaxPassages() int { return b.maxPassages }

// MaxTokens returns the token cap (<= 0 means unlimited).
func (b *Budget) MaxTokens() int { return b.maxTokens }

// SamplingEnabled reports whether disagreement sampling is on.
func (b *Budget) SamplingEnabled() bool { return b.sampling }

// Threshold returns the disagreement threshold.
func (b *Budget) Threshold() float64 { return b.threshold }

// EstimateTokens approximates a passage's token count as one token per four
// characters.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// BudgetStats describes what each budget stage removed.
type BudgetStats struct {
	Input            int `json:"input"`
	AfterPassageCap  int `json:"after_passage_cap"`
	AfterTokenCap    int `json:"after_token_cap"`
	Output           int `json:"output"`
	TokensUsed       int `json:"tokens_used"`
	DisagreementPool int `json:"disagreement_pool"`
}

// Apply trims scores, which must already be sorted by HybridScore
// descending. Texts are looked up by doc id; a missing text counts as zero
// tokens. Inputs are never modified.
func (b *Budget) Apply(scores []HybridScore, texts map[string]string) []HybridScore {
	out, _ := b.ApplyWithStats(scores, texts)
	return out
}

// ApplyWithStats is Apply plus per-stage counts.
//
// Stages, each operating on the previous stage's output:
//  1. positional cut to MaxPassages
//  2. greedy token prefix: stop at the first passage that would exceed MaxTokens
//  3. disagreement sampling, when enabled and more than two passages remain
func (b *Budget) ApplyWithStats(scores []HybridScore, texts map[string]string) ([]HybridScore, BudgetStats) {
	stats := BudgetStats{Input: len(scores)}

	limit := min(max(b.maxPassages, 0), len(scores))
	selected := make([]HybridScore, limit)
	copy(selected, scores[:limit])
	stats.AfterPassageCap = len(selected)

	if b.maxTokens > 0 {
		total := 0
		cut := len(selected)
		for i, s := range selected {
			tokens := b.estimateToken(texts[s.DocID])
			if total+tokens > b.maxTokens {
				cut = i
				break
			}
			total += tokens
		}
		selected = selected[:cut]
		stats.TokensUsed = total
	} else {
		for _, s := range selected {
			stats.TokensUsed += b.estimateToken(texts[s.DocID])
		}
	}
	stats.AfterTokenCap = len(selected)

	if b.sampling && len(selected) > 2 {
		var pool int
		selected, pool = b.sampleDisagreement(selected)
		stats.DisagreementPool = pool
		// Sampling can only drop passages, so recount tokens for what is left.
		stats.TokensUsed = 0
		for _, s := range selected {
			stats.TokensUsed += b.estimateToken(texts[s.DocID])
		}
	}
	stats.Output = len(selected)

	return selected, stats
}

// Disagreement returns |sparse-dense| / max(sparse, dense). ok is false when
// either score is not positive; such documents never join the pool.
func Disagreement(s HybridScore) (float64, bool) {
	if s.SparseScore <= 0 || s.DenseScore <= 0 {
		return 0, false
	}
	return math.Abs(s.SparseScore-s.DenseScore) / math.Max(s.SparseScore, s.DenseScore), true
}

// sampleDisagreement keeps the top half of the list plus up to a quarter
// (of the list length) of passages whose sparse and dense scores disagree by
// at least the threshold. Returns the re-sorted union and the pool size.
func (b *Budget) sampleDisagreement(scores []HybridScore) ([]HybridScore, int) {
	var pool []HybridScore
	for _, s := range scores {
		if d, ok := Disagreement(s); ok && d >= b.threshold {
			pool = append(pool, s)
		}
	}

	n := len(scores)
	top := scores[:n/2]
	extra := pool[:min(n/4, len(pool))]

	seen := make(map[string]struct{}, len(top)+len(extra))
	out := make([]HybridScore, 0, len(top)+len(extra))
	for _, group := range [][]HybridScore{top, extra} {
		for _, s := range group {
			if _, ok := seen[s.DocID]; ok {
				continue
			}
			seen[s.DocID] = struct{}{}
			out = append(out, s)
		}
	}

	sortScores(out)
	return out, len(pool)
}
