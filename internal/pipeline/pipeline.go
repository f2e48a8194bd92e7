// Package pipeline runs one ranking request end to end: concurrent
// retrieval, boundary validation, hybrid scoring and budgeting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
	"github.com/Aman-CERP/hybridrank/internal/ingest"
	"github.com/Aman-CERP/hybridrank/internal/metrics"
	"github.com/Aman-CERP/hybridrank/internal/passages"
	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// DefaultFetchLimit is how many hits each retriever is asked for.
const DefaultFetchLimit = 100

// Source names used in logs, metrics and error details.
const (
	SourceSparse  = "sparse"
	SourceDense   = "dense"
	SourceLexical = "bm25"
)

// Result is the outcome of one Run.
type Result struct {
	Query  string               `json:"query"`
	Scores []hybrid.HybridScore `json:"scores"`
	// Fused is the length of the fused list before budgeting.
	Fused int                `json:"fused"`
	Stats hybrid.BudgetStats `json:"stats"`
	// Texts holds the passage text of each kept document that had one.
	Texts map[string]string `json:"-"`
	// LexicalDegraded is set when a configured lexical retriever failed and
	// the run was scored without bm25.
	LexicalDegraded bool `json:"lexical_degraded"`
}

// Pipeline wires retrievers to a Scorer and Budget. Safe for concurrent use;
// all mutable state lives in the Scorer, the breaker and the store.
type Pipeline struct {
	sparse  Retriever
	dense   Retriever
	lexical Retriever

	scorer *hybrid.Scorer
	budget *hybrid.Budget
	store  passages.Store

	metrics    *metrics.Metrics
	logger     *slog.Logger
	fetchLimit int
	timeout    time.Duration
	retry      rerrors.RetryConfig
	breaker    *rerrors.CircuitBreaker
	normalize  bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLexical adds the optional bm25 retriever.
func WithLexical(r Retriever) Option {
	return func(p *Pipeline) {
		p.lexical = r
	}
}

// WithBudget sets the budget. Without one every fused result is returned.
func WithBudget(b *hybrid.Budget) Option {
	return func(p *Pipeline) {
		p.budget = b
	}
}

// WithPassageStore sets where passage texts come from.
func WithPassageStore(s passages.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithFetchLimit sets how many hits each retriever is asked for.
func WithFetchLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.fetchLimit = n
		}
	}
}

// WithTimeout bounds retrieval and passage fetching. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithRetry retries failed backend calls. The default is no retries.
func WithRetry(cfg rerrors.RetryConfig) Option {
	return func(p *Pipeline) {
		p.retry = cfg
	}
}

// WithLexicalBreaker guards the lexical retriever with a circuit breaker so
// a failing bm25 backend is skipped instead of called on every run.
func WithLexicalBreaker(cb *rerrors.CircuitBreaker) Option {
	return func(p *Pipeline) {
		p.breaker = cb
	}
}

// WithNormalize toggles top-anchored normalization of fused scores.
func WithNormalize(on bool) Option {
	return func(p *Pipeline) {
		p.normalize = on
	}
}

// New creates a pipeline. sparse, dense and scorer are required.
func New(sparse, dense Retriever, scorer *hybrid.Scorer, opts ...Option) (*Pipeline, error) {
	if sparse == nil || dense == nil {
		return nil, rerrors.New(rerrors.ErrCodeMissingSource, "sparse and dense retrievers are required", nil)
	}
	if scorer == nil {
		return nil, rerrors.InternalError("pipeline requires a scorer", nil)
	}

	p := &Pipeline{
		sparse:     sparse,
		dense:      dense,
		scorer:     scorer,
		fetchLimit: DefaultFetchLimit,
		normalize:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Scorer returns the pipeline's scorer, e.g. for runtime weight updates.
func (p *Pipeline) Scorer() *hybrid.Scorer {
	return p.scorer
}

// Run retrieves, validates, scores and budgets one query.
//
// Sparse and dense run concurrently with the optional lexical retriever.
// A sparse or dense failure fails the run. A lexical failure (including an
// open circuit or invalid hits) degrades the run to no bm25.
func (p *Pipeline) Run(ctx context.Context, query string) (res *Result, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveRun(time.Since(start), err) }()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var (
		sparseHits, denseHits, lexicalHits []hybrid.RetrievalHit
		lexicalErr                         error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sparseHits, err = p.retrieve(gctx, SourceSparse, p.sparse, query)
		return err
	})
	g.Go(func() error {
		var err error
		denseHits, err = p.retrieve(gctx, SourceDense, p.dense, query)
		return err
	})
	if p.lexical != nil {
		g.Go(func() error {
			lexicalHits, lexicalErr = p.retrieveLexical(gctx, query)
			// Lexical failure never fails the group.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res = &Result{Query: query}

	var bm25 []hybrid.RetrievalHit
	if p.lexical != nil {
		if lexicalErr == nil {
			lexicalErr = ingest.ValidateHits(SourceLexical, lexicalHits)
		}
		if lexicalErr != nil {
			p.logger.Warn("Lexical retrieval unavailable, scoring without bm25",
				slog.String("query", query),
				slog.String("error", lexicalErr.Error()))
			p.metrics.LexicalDegraded()
			res.LexicalDegraded = true
		} else {
			bm25 = lexicalHits
			if bm25 == nil {
				bm25 = []hybrid.RetrievalHit{}
			}
		}
	}

	scores := p.scorer.Score(sparseHits, denseHits, bm25, p.normalize)
	res.Fused = len(scores)
	p.metrics.ObserveFusion(len(scores))

	p.logger.Debug("Fused retrieval results",
		slog.String("query", query),
		slog.Int("sparse", len(sparseHits)),
		slog.Int("dense", len(denseHits)),
		slog.Int("bm25", len(bm25)),
		slog.Int("fused", len(scores)))

	if p.budget == nil {
		res.Scores = scores
		res.Stats = hybrid.BudgetStats{
			Input:           len(scores),
			AfterPassageCap: len(scores),
			AfterTokenCap:   len(scores),
			Output:          len(scores),
		}
		res.Texts, err = p.fetchTexts(ctx, scores)
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	// Only the passage-capped prefix can survive the budget.
	candidates := scores[:min(max(p.budget.MaxPassages(), 0), len(scores))]
	texts, err := p.fetchTexts(ctx, candidates)
	if err != nil {
		return nil, err
	}

	res.Scores, res.Stats = p.budget.ApplyWithStats(scores, texts)
	p.metrics.ObserveBudget(res.Stats)

	res.Texts = make(map[string]string, len(res.Scores))
	for _, s := range res.Scores {
		if text, ok := texts[s.DocID]; ok {
			res.Texts[s.DocID] = text
		}
	}

	p.logger.Debug("Applied retrieval budget",
		slog.String("query", query),
		slog.Int("input", res.Stats.Input),
		slog.Int("output", res.Stats.Output),
		slog.Int("tokens", res.Stats.TokensUsed),
		slog.Int("disagreement_pool", res.Stats.DisagreementPool))

	return res, nil
}

// retrieve calls a required retriever with retries and validates its hits.
func (p *Pipeline) retrieve(ctx context.Context, source string, r Retriever, query string) ([]hybrid.RetrievalHit, error) {
	hits, err := rerrors.Retry(ctx, p.retry, func(ctx context.Context) ([]hybrid.RetrievalHit, error) {
		return r.Retrieve(ctx, query, p.fetchLimit)
	})
	if err != nil {
		p.metrics.RetrieverFailed(source)
		return nil, rerrors.New(rerrors.ErrCodeRetrievalFailed,
			fmt.Sprintf("%s retrieval failed", source), err).
			WithDetail("source", source)
	}
	if err := ingest.ValidateHits(source, hits); err != nil {
		p.metrics.RetrieverFailed(source)
		return nil, err
	}
	return hits, nil
}

// retrieveLexical calls the lexical retriever through the breaker, if any.
// Calls cut short by cancellation of ctx count against neither the breaker
// nor the error metric.
func (p *Pipeline) retrieveLexical(ctx context.Context, query string) ([]hybrid.RetrievalHit, error) {
	call := func() ([]hybrid.RetrievalHit, error) {
		hits, err := rerrors.Retry(ctx, p.retry, func(ctx context.Context) ([]hybrid.RetrievalHit, error) {
			return p.lexical.Retrieve(ctx, query, p.fetchLimit)
		})
		// A backend error surfacing after the run was cancelled is reported
		// as the cancellation, so the breaker does not count it.
		if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return hits, err
	}

	var (
		hits []hybrid.RetrievalHit
		err  error
	)
	if p.breaker != nil {
		hits, err = rerrors.Execute(p.breaker, call)
	} else {
		hits, err = call()
	}
	if err != nil && ctx.Err() == nil {
		p.metrics.RetrieverFailed(SourceLexical)
	}
	return hits, err
}

// fetchTexts loads passage texts for scores. A missing store yields no
// texts, so every passage counts as zero tokens.
func (p *Pipeline) fetchTexts(ctx context.Context, scores []hybrid.HybridScore) (map[string]string, error) {
	if p.store == nil || len(scores) == 0 {
		return map[string]string{}, nil
	}

	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = s.DocID
	}

	texts, err := rerrors.Retry(ctx, p.retry, func(ctx context.Context) (map[string]string, error) {
		return p.store.Texts(ctx, ids)
	})
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodePassageFetch, "failed to fetch passage texts", err).
			WithDetail("count", fmt.Sprint(len(ids)))
	}
	return texts, nil
}
