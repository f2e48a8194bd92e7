// Package output renders ranked results and status messages for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/hybridrank/internal/pipeline"
	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a Writer that colors output only when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return NewWithColor(out, UseColor(out))
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	styles := NoColorStyles()
	if color {
		styles = DefaultStyles()
	}
	return &Writer{out: out, styles: styles}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✅"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// RenderOptions controls result rendering.
type RenderOptions struct {
	// Explain adds per-backend ranks, boosts and sparse/dense disagreement.
	Explain bool
	// Snippet is the max passage characters shown per row; 0 hides text.
	Snippet int
}

// Results renders a ranked table followed by a budget summary.
func (w *Writer) Results(res *pipeline.Result, opts RenderOptions) {
	if res.LexicalDegraded {
		w.Warning("bm25 retriever unavailable; scored on sparse and dense only")
	}
	if len(res.Scores) == 0 {
		w.Status("", w.styles.Dim.Render("no results"))
		w.summary(res)
		return
	}

	header := []string{"#", "doc_id", "hybrid", "sparse", "dense", "bm25"}
	if opts.Explain {
		header = append(header, "ranks s/d/b", "boost", "disagree")
	}

	rows := make([][]string, len(res.Scores))
	for i, s := range res.Scores {
		row := []string{
			fmt.Sprint(i + 1),
			s.DocID,
			formatScore(s.HybridScore),
			formatScore(s.SparseScore),
			formatScore(s.DenseScore),
			formatScore(s.BM25Score),
		}
		if opts.Explain {
			row = append(row,
				fmt.Sprintf("%s/%s/%s", formatRank(s.SparseRank), formatRank(s.DenseRank), formatRank(s.BM25Rank)),
				formatScore(s.TitleBoost),
				formatDisagreement(s),
			)
		}
		rows[i] = row
	}

	widths := columnWidths(header, rows)
	w.line(header, widths, func(col int, cell string) string { return w.styles.Header.Render(cell) })
	for i, row := range rows {
		w.line(row, widths, func(col int, cell string) string {
			switch col {
			case 1:
				return w.styles.DocID.Render(cell)
			case 2:
				return w.styles.Score.Render(cell)
			default:
				return cell
			}
		})
		if opts.Snippet > 0 {
			if text, ok := res.Texts[res.Scores[i].DocID]; ok {
				_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(snippet(text, opts.Snippet)))
			}
		}
	}
	w.summary(res)
}

// line writes one padded row. Padding is applied before styling so ANSI
// escapes do not skew column widths.
func (w *Writer) line(cells []string, widths []int, style func(int, string) string) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = style(i, fmt.Sprintf("%-*s", widths[i], cell))
	}
	_, _ = fmt.Fprintln(w.out, strings.TrimRight(strings.Join(parts, "  "), " "))
}

func (w *Writer) summary(res *pipeline.Result) {
	st := res.Stats
	label := w.styles.Label.Render
	_, _ = fmt.Fprintf(w.out, "\n%s %d of %d fused  %s %d  %s %d  %s %d",
		label("kept"), st.Output, res.Fused,
		label("passage cap"), st.AfterPassageCap,
		label("token cap"), st.AfterTokenCap,
		label("tokens"), st.TokensUsed)
	if st.DisagreementPool > 0 {
		_, _ = fmt.Fprintf(w.out, "  %s %d", label("disagreement pool"), st.DisagreementPool)
	}
	_, _ = fmt.Fprintln(w.out)
}

// jsonResult is the --json shape of one ranked document.
type jsonResult struct {
	Rank int `json:"rank"`
	hybrid.HybridScore
	Disagreement *float64 `json:"disagreement,omitempty"`
	Text         string   `json:"text,omitempty"`
}

type jsonReport struct {
	Query           string             `json:"query,omitempty"`
	Fused           int                `json:"fused"`
	LexicalDegraded bool               `json:"lexical_degraded"`
	Stats           hybrid.BudgetStats `json:"stats"`
	Results         []jsonResult       `json:"results"`
}

// JSON writes res as indented JSON. With explain, each result carries its
// sparse/dense disagreement where defined.
func (w *Writer) JSON(res *pipeline.Result, opts RenderOptions) error {
	report := jsonReport{
		Query:           res.Query,
		Fused:           res.Fused,
		LexicalDegraded: res.LexicalDegraded,
		Stats:           res.Stats,
		Results:         make([]jsonResult, len(res.Scores)),
	}
	for i, s := range res.Scores {
		r := jsonResult{Rank: i + 1, HybridScore: s}
		if opts.Explain {
			if d, ok := hybrid.Disagreement(s); ok {
				r.Disagreement = &d
			}
		}
		if opts.Snippet > 0 {
			r.Text = snippet(res.Texts[s.DocID], opts.Snippet)
		}
		report.Results[i] = r
	}
	return w.WriteJSON(report)
}

// WriteJSON writes any value as indented JSON.
func (w *Writer) WriteJSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func columnWidths(header []string, rows [][]string) []int {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len([]rune(cell)))
		}
	}
	return widths
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func formatRank(r int) string {
	if r == 0 {
		return "-"
	}
	return fmt.Sprint(r)
}

func formatDisagreement(s hybrid.HybridScore) string {
	d, ok := hybrid.Disagreement(s)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.2f", d)
}

// snippet collapses whitespace and truncates to n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
