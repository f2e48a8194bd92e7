package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hybridrank/internal/output"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		in   inputFlags
		view viewFlags
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Fuse retrieval results and apply the budget",
		Long: `Fuse the hits of a sparse, a dense and an optional lexical retriever into one
ranked list, then apply the passage and token budget.

Hit files are YAML or JSON lists of {doc_id, score, matched_fields}. Leaving
out --bm25 scores without a lexical source (its weight is spread over sparse
and dense); an empty bm25 file keeps the lexical weight in the sum.

Flags override the configuration only when set.`,
		Example: `  # Fuse two retrievers
  hybridrank score --sparse sparse.json --dense dense.json

  # Add a lexical source and passage texts for token counting
  hybridrank score --sparse s.yaml --dense d.yaml --bm25 b.yaml --passages p.yaml

  # Replay a bundle with reciprocal rank fusion, as JSON
  hybridrank score --query bundle.yaml --fusion rrf --json

  # Show why each document ranked where it did
  hybridrank score --query bundle.yaml --explain --snippet 60`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd, a, &in, &view)
		},
	}

	in.register(cmd.Flags())
	view.register(cmd.Flags())

	return cmd
}

func runScore(cmd *cobra.Command, a *app, in *inputFlags, view *viewFlags) error {
	base, err := a.loadConfig()
	if err != nil {
		return err
	}
	cfg, err := in.apply(cmd, base)
	if err != nil {
		return err
	}

	q, err := in.load()
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, q, !in.noBudget, a.log(), nil)
	if err != nil {
		return err
	}

	res, err := p.Run(cmd.Context(), q.Text)
	if err != nil {
		return err
	}

	return view.render(output.New(cmd.OutOrStdout()), res)
}
