// Package hybrid fuses sparse (SPLADE), dense (vector) and lexical (BM25)
// retrieval results into a single ranked list and trims that list to a
// passage/token budget.
//
// # Components
//
//   - [Scorer]: fuses up to three ranked hit lists using weighted-sum or
//     Reciprocal Rank Fusion, applies field boosts and top-anchored
//     normalization.
//   - [Budget]: caps the fused list by passage count and estimated tokens,
//     optionally re-sampling to keep documents where sparse and dense
//     signals disagree.
//
// # Usage
//
//	scorer := hybrid.NewScorer(
//	    hybrid.WithWeights(hybrid.Weights{Sparse: 0.3, Dense: 0.5, BM25: 0.2}),
//	    hybrid.WithFusionMethod(hybrid.FusionRRF),
//	)
//	scores := scorer.Score(sparseHits, denseHits, bm25Hits, true)
//
//	budget := hybrid.NewBudget(hybrid.WithMaxTokens(4000))
//	kept := budget.Apply(scores, passageTexts)
//
// A nil bm25 slice means the lexical backend was not consulted; the sparse
// and dense weights are then renormalized to sum to one.
//
// # Thread Safety
//
// Score and Apply may be called concurrently. UpdateWeights replaces the
// weight snapshot atomically, so a concurrent Score sees either the old or
// the new weights, never a mix.
package hybrid
