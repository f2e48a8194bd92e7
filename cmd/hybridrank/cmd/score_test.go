package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Aman-CERP/hybridrank/internal/errors"
)

const (
	sparseHits = `[{"doc_id": "A", "score": 0.9}, {"doc_id": "B", "score": 0.5}]`
	denseHits  = `[{"doc_id": "B", "score": 0.8}, {"doc_id": "C", "score": 0.6}]`
	forty      = "0123456789012345678901234567890123456789"
)

// scoreInputs writes the sparse and dense hit files and returns their flags.
func scoreInputs(t *testing.T, dir string) []string {
	t.Helper()
	return []string{
		"--sparse", writeFile(t, dir, "sparse.json", sparseHits),
		"--dense", writeFile(t, dir, "dense.json", denseHits),
	}
}

func TestScoreCmd_FusesUnionOfDocuments(t *testing.T) {
	// Given: sparse and dense hits with no lexical source
	dir := isolate(t)
	args := append([]string{"score", "--json", "--no-normalize"}, scoreInputs(t, dir)...)

	// When: scoring
	stdout, _, err := runCLI(t, args...)

	// Then: bm25 weight is spread over sparse and dense (0.375 / 0.625)
	require.NoError(t, err)
	r := decodeReport(t, stdout)
	assert.Equal(t, []string{"B", "C", "A"}, r.ids())
	assert.Equal(t, 3, r.Fused)
	assert.InDelta(t, 0.6875, r.Results[0].HybridScore, 1e-9)
	assert.InDelta(t, 0.375, r.Results[1].HybridScore, 1e-9)
	assert.InDelta(t, 0.3375, r.Results[2].HybridScore, 1e-9)
}

func TestScoreCmd_NormalizesByDefault(t *testing.T) {
	dir := isolate(t)
	args := append([]string{"score", "--json"}, scoreInputs(t, dir)...)

	stdout, _, err := runCLI(t, args...)

	require.NoError(t, err)
	r := decodeReport(t, stdout)
	assert.InDelta(t, 1.0, r.Results[0].HybridScore, 1e-9)
	assert.InDelta(t, 0.375/0.6875, r.Results[1].HybridScore, 1e-9)
}

func TestScoreCmd_EmptyBM25KeepsItsWeight(t *testing.T) {
	// Given: an empty lexical list, distinct from no lexical source
	dir := isolate(t)
	args := append([]string{"score", "--json", "--no-normalize",
		"--bm25", writeFile(t, dir, "bm25.json", "[]")}, scoreInputs(t, dir)...)

	// When: scoring
	stdout, _, err := runCLI(t, args...)

	// Then: weights are used as configured (0.3 / 0.5 / 0.2)
	require.NoError(t, err)
	r := decodeReport(t, stdout)
	assert.Equal(t, "B", r.Results[0].DocID)
	assert.InDelta(t, 0.55, r.Results[0].HybridScore, 1e-9)
	assert.False(t, r.LexicalDegraded)
}

func TestScoreCmd_RRFRanksByPosition(t *testing.T) {
	// Given: rank fusion, under which A (sparse #1) beats C (dense #2)
	dir := isolate(t)
	args := append([]string{"score", "--json", "--fusion", "rrf"}, scoreInputs(t, dir)...)

	// When: scoring
	stdout, _, err := runCLI(t, args...)

	// Then: B appears in both lists and leads
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, decodeReport(t, stdout).ids())
}

func TestScoreCmd_BudgetFlags(t *testing.T) {
	// Given: a bundle whose passages are 10 tokens each
	dir := isolate(t)
	bundle := writeFile(t, dir, "bundle.yaml", `query: what fuses best
sparse:
  - {doc_id: A, score: 0.9}
  - {doc_id: B, score: 0.5}
dense:
  - {doc_id: B, score: 0.8}
  - {doc_id: C, score: 0.6}
passages:
  A: "`+forty+`"
  B: "`+forty+`"
  C: "`+forty+`"
`)

	// When: scoring with a 15 token cap
	stdout, _, err := runCLI(t, "score", "--json", "--query", bundle, "--max-tokens", "15", "--snippet", "5")

	// Then: the greedy prefix stops before the second passage
	require.NoError(t, err)
	r := decodeReport(t, stdout)
	assert.Equal(t, "what fuses best", r.Query)
	assert.Equal(t, []string{"B"}, r.ids())
	assert.Equal(t, 3, r.Stats.AfterPassageCap)
	assert.Equal(t, 1, r.Stats.AfterTokenCap)
	assert.Equal(t, 10, r.Stats.TokensUsed)
	assert.Equal(t, "01234…", r.Results[0].Text)
}

func TestScoreCmd_MaxPassagesAndNoBudget(t *testing.T) {
	dir := isolate(t)
	inputs := scoreInputs(t, dir)

	stdout, _, err := runCLI(t, append([]string{"score", "--json", "--max-passages", "2"}, inputs...)...)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, decodeReport(t, stdout).ids())

	stdout, _, err = runCLI(t, append([]string{"score", "--json", "--max-passages", "2", "--no-budget"}, inputs...)...)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, decodeReport(t, stdout).ids())
}

func TestScoreCmd_FlagFilesOverrideBundle(t *testing.T) {
	// Given: a bundle and a dense file that replaces its dense list
	dir := isolate(t)
	bundle := writeFile(t, dir, "bundle.yaml", "sparse:\n  - {doc_id: A, score: 0.9}\ndense: []\n")
	dense := writeFile(t, dir, "dense.yaml", "- {doc_id: Z, score: 1.0}\n")

	// When: scoring both
	stdout, _, err := runCLI(t, "score", "--json", "--query", bundle, "--dense", dense)

	// Then: the dense file wins
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "Z"}, decodeReport(t, stdout).ids())
}

func TestScoreCmd_ConfigFileWeights(t *testing.T) {
	// Given: a config that ignores dense entirely
	dir := isolate(t)
	cfg := writeFile(t, dir, "tune.yaml", "scorer:\n  sparse_weight: 1\n  dense_weight: 0\n  bm25_weight: 0\n")
	args := append([]string{"--config", cfg, "score", "--json"}, scoreInputs(t, dir)...)

	// When: scoring
	stdout, _, err := runCLI(t, args...)

	// Then: the order follows sparse scores
	require.NoError(t, err)
	assert.Equal(t, "A", decodeReport(t, stdout).Results[0].DocID)
}

func TestScoreCmd_TableOutput(t *testing.T) {
	dir := isolate(t)
	args := append([]string{"score", "--explain"}, scoreInputs(t, dir)...)

	stdout, _, err := runCLI(t, args...)

	require.NoError(t, err)
	lines := strings.Split(stdout, "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "#  doc_id"), lines[0])
	assert.Contains(t, lines[0], "ranks s/d/b")
	assert.Contains(t, stdout, "kept 3 of 3 fused")
}

func TestScoreCmd_Errors(t *testing.T) {
	dir := isolate(t)
	dup := writeFile(t, dir, "dup.json", `[{"doc_id": "A", "score": 1}, {"doc_id": "A", "score": 0.5}]`)
	dense := writeFile(t, dir, "dense.json", denseHits)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{name: "no inputs", args: []string{"score"}, code: rerrors.ErrCodeMissingSource},
		{name: "duplicate doc", args: []string{"score", "--sparse", dup, "--dense", dense}, code: rerrors.ErrCodeDuplicateDoc},
		{name: "missing file", args: []string{"score", "--sparse", "nope.json", "--dense", dense}, code: rerrors.ErrCodeFileNotFound},
		{name: "bad fusion", args: []string{"score", "--sparse", dense, "--dense", dense, "--fusion", "max"}, code: rerrors.ErrCodeInvalidInput},
		{name: "bad threshold", args: []string{"score", "--sparse", dense, "--dense", dense, "--threshold", "2"}, code: rerrors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, rerrors.GetCode(err))
		})
	}
}
