//go:build ignore

// Package main generates a synthetic query bundle for `hybridrank score`.
// Usage: go run scripts/generate-hits.go -docs 500 -output testdata/bundle.yaml
//
// Sparse and dense lists share roughly half their documents, with scores
// that agree for some and disagree for others, so fusion and disagreement
// sampling both have something to do.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	numDocs   = flag.Int("docs", 200, "Number of candidate documents")
	withBM25  = flag.Bool("bm25", true, "Include a bm25 list")
	outputPth = flag.String("output", "testdata/bundle.yaml", "Output file")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

type hit struct {
	DocID         string   `yaml:"doc_id"`
	Score         float64  `yaml:"score"`
	MatchedFields []string `yaml:"matched_fields,omitempty"`
}

type bundle struct {
	Query    string            `yaml:"query"`
	Sparse   []hit             `yaml:"sparse"`
	Dense    []hit             `yaml:"dense"`
	BM25     []hit             `yaml:"bm25,omitempty"`
	Passages map[string]string `yaml:"passages"`
}

var fields = []string{"title", "abstract", "summary", "content"}

var words = strings.Fields(`retrieval sparse dense lexical passage token budget
fusion rank score query document reader model vector embedding index term
weight boost title abstract content signal noise recall precision`)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	b := bundle{
		Query:    "synthetic query",
		Passages: make(map[string]string, *numDocs),
	}

	for i := 0; i < *numDocs; i++ {
		id := fmt.Sprintf("doc-%04d", i)
		b.Passages[id] = passage(rng)

		base := rng.Float64()
		inSparse := rng.Float64() < 0.7
		inDense := rng.Float64() < 0.7
		if !inSparse && !inDense {
			inDense = true
		}

		if inSparse {
			b.Sparse = append(b.Sparse, newHit(rng, id, jitter(rng, base)*30))
		}
		if inDense {
			b.Dense = append(b.Dense, newHit(rng, id, jitter(rng, base)))
		}
		if *withBM25 && rng.Float64() < 0.5 {
			b.BM25 = append(b.BM25, newHit(rng, id, jitter(rng, base)*15))
		}
	}

	for _, list := range [][]hit{b.Sparse, b.Dense, b.BM25} {
		sort.Slice(list, func(i, j int) bool { return list[i].Score > list[j].Score })
	}

	data, err := yaml.Marshal(b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*outputPth), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outputPth, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d documents (sparse=%d dense=%d bm25=%d) in %s\n",
		*numDocs, len(b.Sparse), len(b.Dense), len(b.BM25), *outputPth)
}

func newHit(rng *rand.Rand, id string, score float64) hit {
	h := hit{DocID: id, Score: score}
	if rng.Float64() < 0.6 {
		h.MatchedFields = []string{fields[rng.Intn(len(fields))]}
	}
	return h
}

// jitter moves a shared base score; about one in five documents gets a
// large move so sparse and dense disagree on it.
func jitter(rng *rand.Rand, base float64) float64 {
	spread := 0.1
	if rng.Float64() < 0.2 {
		spread = 0.8
	}
	v := base + (rng.Float64()*2-1)*spread
	return max(v, 0.001)
}

func passage(rng *rand.Rand) string {
	n := 20 + rng.Intn(200)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[rng.Intn(len(words))]
	}
	return strings.Join(parts, " ")
}
