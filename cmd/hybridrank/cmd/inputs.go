package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Aman-CERP/hybridrank/internal/config"
	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
	"github.com/Aman-CERP/hybridrank/internal/ingest"
	"github.com/Aman-CERP/hybridrank/internal/metrics"
	"github.com/Aman-CERP/hybridrank/internal/output"
	"github.com/Aman-CERP/hybridrank/internal/passages"
	"github.com/Aman-CERP/hybridrank/internal/pipeline"
	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// inputFlags are the retrieval inputs and scoring overrides shared by score
// and watch.
type inputFlags struct {
	query    string
	text     string
	sparse   string
	dense    string
	bm25     string
	passages string

	fusion       string
	rrfK         int
	noNormalize  bool
	noBudget     bool
	maxPassages  int
	maxTokens    int
	disagreement bool
	threshold    float64
}

func (in *inputFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&in.query, "query", "", "Query bundle file with sparse, dense, bm25 and passages keys")
	fs.StringVar(&in.text, "text", "", "Query text shown in output (overrides the bundle's query)")
	fs.StringVar(&in.sparse, "sparse", "", "Sparse retriever hits (YAML or JSON)")
	fs.StringVar(&in.dense, "dense", "", "Dense retriever hits (YAML or JSON)")
	fs.StringVar(&in.bm25, "bm25", "", "Lexical retriever hits; omit when there is no lexical backend")
	fs.StringVar(&in.passages, "passages", "", "doc_id to passage text mapping used for token counting")

	fs.StringVar(&in.fusion, "fusion", "", "Fusion method: weighted_sum or rrf")
	fs.IntVar(&in.rrfK, "rrf-k", 0, "RRF smoothing constant")
	fs.BoolVar(&in.noNormalize, "no-normalize", false, "Keep raw fused scores instead of scaling the top result to 1")
	fs.BoolVar(&in.noBudget, "no-budget", false, "Return every fused result")
	fs.IntVar(&in.maxPassages, "max-passages", 0, "Passage cap")
	fs.IntVar(&in.maxTokens, "max-tokens", 0, "Token cap (0 disables it)")
	fs.BoolVar(&in.disagreement, "disagreement", false, "Enable disagreement sampling")
	fs.Float64Var(&in.threshold, "threshold", 0, "Disagreement threshold between 0 and 1")
}

// apply returns a copy of cfg with every explicitly set flag applied, and
// validates the result.
func (in *inputFlags) apply(cmd *cobra.Command, cfg *config.Config) (*config.Config, error) {
	c := *cfg
	flags := cmd.Flags()

	if flags.Changed("fusion") {
		c.Scorer.FusionMethod = in.fusion
	}
	if flags.Changed("rrf-k") {
		c.Scorer.RRFK = in.rrfK
	}
	if flags.Changed("no-normalize") {
		c.Scorer.Normalize = !in.noNormalize
	}
	if flags.Changed("max-passages") {
		c.Budget.MaxPassages = in.maxPassages
	}
	if flags.Changed("max-tokens") {
		c.Budget.MaxTokens = in.maxTokens
	}
	if flags.Changed("disagreement") {
		c.Budget.EnableDisagreementSampling = in.disagreement
	}
	if flags.Changed("threshold") {
		c.Budget.DisagreementThreshold = in.threshold
	}

	if err := c.Validate(); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeInvalidInput, err.Error(), err).
			WithSuggestion("check the scoring flags")
	}
	return &c, nil
}

// load reads the query bundle, then lets the per-source files replace its
// lists.
func (in *inputFlags) load() (*ingest.Query, error) {
	q := &ingest.Query{}
	if in.query != "" {
		loaded, err := ingest.LoadQuery(in.query)
		if err != nil {
			return nil, err
		}
		q = loaded
	}

	if in.sparse != "" {
		hits, err := ingest.LoadHits(in.sparse)
		if err != nil {
			return nil, err
		}
		q.Sparse = hits
	}
	if in.dense != "" {
		hits, err := ingest.LoadHits(in.dense)
		if err != nil {
			return nil, err
		}
		q.Dense = hits
	}
	if in.bm25 != "" {
		hits, err := ingest.LoadHits(in.bm25)
		if err != nil {
			return nil, err
		}
		q.BM25 = &hits
	}
	if in.passages != "" {
		texts, err := ingest.LoadPassages(in.passages)
		if err != nil {
			return nil, err
		}
		q.Passages = texts
	}
	if in.text != "" {
		q.Text = in.text
	}

	if err := q.Validate(); err != nil {
		if rerrors.GetCode(err) == rerrors.ErrCodeMissingSource {
			return nil, rerrors.New(rerrors.ErrCodeMissingSource, "no retrieval results given", nil).
				WithSuggestion("pass --sparse and --dense files, or a --query bundle")
		}
		return nil, err
	}
	return q, nil
}

// buildPipeline replays q's hit lists through a pipeline configured by cfg.
func buildPipeline(cfg *config.Config, q *ingest.Query, withBudget bool, logger *slog.Logger, m *metrics.Metrics) (*pipeline.Pipeline, error) {
	scorer := hybrid.NewScorer(cfg.ScorerOptions(logger)...)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithFetchLimit(cfg.Retrieval.FetchLimit),
		pipeline.WithTimeout(cfg.RetrievalTimeout()),
		pipeline.WithRetry(cfg.RetryConfig()),
		pipeline.WithNormalize(cfg.Scorer.Normalize),
	}
	if q.BM25 != nil {
		opts = append(opts,
			pipeline.WithLexical(pipeline.NewStaticRetriever(q.BM25Hits())),
			pipeline.WithLexicalBreaker(rerrors.NewCircuitBreaker(pipeline.SourceLexical, cfg.BreakerOptions()...)))
	}
	if withBudget {
		opts = append(opts, pipeline.WithBudget(hybrid.NewBudget(cfg.BudgetOptions()...)))
	}
	if len(q.Passages) > 0 {
		store := passages.NewCachedStore(passages.NewMapStore(q.Passages), cfg.Retrieval.PassageCacheSize)
		opts = append(opts, pipeline.WithPassageStore(store))
	}

	return pipeline.New(
		pipeline.NewStaticRetriever(q.Sparse),
		pipeline.NewStaticRetriever(q.Dense),
		scorer,
		opts...)
}

// viewFlags control how results are printed.
type viewFlags struct {
	json    bool
	explain bool
	snippet int
}

func (v *viewFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&v.json, "json", false, "Output results as JSON")
	fs.BoolVar(&v.explain, "explain", false, "Show per-source ranks, field boost and disagreement")
	fs.IntVar(&v.snippet, "snippet", 0, "Show up to N characters of each passage")
}

func (v *viewFlags) render(out *output.Writer, res *pipeline.Result) error {
	opts := output.RenderOptions{Explain: v.explain, Snippet: v.snippet}
	if v.json {
		return out.JSON(res, opts)
	}
	out.Results(res, opts)
	return nil
}
