package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
)

const footer = "\n---\n\n_Scores come from fixed phrase lists and simple arithmetic. " +
	"They describe wording, not intent, and are no substitute for judgment._\n"

// Renderer writes reports to files and prints summaries to out
type Renderer struct {
	includeFooter bool
	out           io.Writer
}

// NewRenderer creates a renderer; a nil out discards printed summaries
func NewRenderer(includeFooter bool, out io.Writer) *Renderer {
	if out == nil {
		out = io.Discard
	}
	return &Renderer{includeFooter: includeFooter, out: out}
}

// RenderJSON writes v as indented JSON
func (r *Renderer) RenderJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderAnalysisMarkdown writes a single-message report
func (r *Renderer) RenderAnalysisMarkdown(result model.AnalysisResult, path string) error {
	return writeFile(path, []byte(r.AnalysisMarkdown(result)))
}

// RenderThreadMarkdown writes a thread report
func (r *Renderer) RenderThreadMarkdown(summary *model.ThreadSummary, path string) error {
	return writeFile(path, []byte(r.ThreadMarkdown(summary)))
}

// RenderLLMMarkdown writes pre-rendered narrative markdown
func (r *Renderer) RenderLLMMarkdown(markdown, path string) error {
	return writeFile(path, []byte(markdown))
}

// AnalysisMarkdown renders a single-message report
func (r *Renderer) AnalysisMarkdown(result model.AnalysisResult) string {
	var b strings.Builder

	b.WriteString("# Communication Analysis\n\n")
	fmt.Fprintf(&b, "> %s\n\n", quote(result.Input))

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| **Consciousness Score** | %d/100 |\n", result.Score)
	fmt.Fprintf(&b, "| **Level** | %s |\n", levelText(result))
	fmt.Fprintf(&b, "| **Algorithm** | %s |\n", result.Algorithm)
	fmt.Fprintf(&b, "| **15° Turns** | %d |\n", result.FifteenDegreeTurns)
	fmt.Fprintf(&b, "| **Primary Concern** | %s |\n", result.Analysis.PrimaryConcern)
	fmt.Fprintf(&b, "| **Primary Strength** | %s |\n\n", result.Analysis.PrimaryStrength)

	writeMatches(&b, "Manipulation Patterns", result.Manipulation)
	writeMatches(&b, "Truth Signals", result.Truth)

	b.WriteString("## Recommended Response\n\n")
	b.WriteString(result.RecommendedResponse)
	b.WriteString("\n")

	if r.includeFooter {
		b.WriteString(footer)
	}
	return b.String()
}

// ThreadMarkdown renders a thread report
func (r *Renderer) ThreadMarkdown(summary *model.ThreadSummary) string {
	var b strings.Builder

	b.WriteString("# Thread Analysis\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| **Messages** | %d |\n", summary.MessageCount)
	fmt.Fprintf(&b, "| **Average Consciousness** | %d/100 |\n", summary.AverageScore)
	fmt.Fprintf(&b, "| **Dominant Algorithm** | %s |\n", summary.DominantAlgorithm)
	fmt.Fprintf(&b, "| **Total Manipulation** | %d |\n", summary.TotalManipulation)
	fmt.Fprintf(&b, "| **Total Truth** | %d |\n\n", summary.TotalTruth)

	b.WriteString("## Pattern Frequency\n\n")
	freq := sortedFrequency(summary.PatternFrequency)
	if len(freq) == 0 {
		b.WriteString("_No manipulation patterns detected._\n\n")
	} else {
		b.WriteString("| Pattern | Count |\n|---|---|\n")
		for _, f := range freq {
			fmt.Fprintf(&b, "| %s | %d |\n", f.category, f.count)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Messages\n\n")
	b.WriteString("| # | Score | Level | Algorithm | Message |\n|---|---|---|---|---|\n")
	for _, res := range summary.Results {
		fmt.Fprintf(&b, "| %d | %d | %s | %s | %s |\n",
			res.Index+1, res.Score, res.Level, res.Algorithm, tableCell(res.Input, 80))
	}
	b.WriteString("\n")

	b.WriteString("## Recommendation\n\n")
	b.WriteString(summary.Recommendation)
	b.WriteString("\n")

	if summary.Narrative != nil && summary.Narrative.Enabled {
		b.WriteString("\n_An LLM narrative was generated separately. It does not affect any score above._\n")
	}

	if r.includeFooter {
		b.WriteString(footer)
	}
	return b.String()
}

// PrintAnalysis prints a short terminal summary of one result
func (r *Renderer) PrintAnalysis(result model.AnalysisResult) {
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  Consciousness:  %d/100 (%s)\n", result.Score, levelText(result))
	fmt.Fprintf(r.out, "  Algorithm:      %s\n", result.Algorithm)
	fmt.Fprintf(r.out, "  Manipulation:   %d (%d patterns)\n", result.Manipulation.Score, len(result.Manipulation.Matches))
	fmt.Fprintf(r.out, "  Truth:          %d (%d signals)\n", result.Truth.Score, len(result.Truth.Matches))
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  → %s\n", result.RecommendedResponse)
	fmt.Fprintln(r.out)
}

// PrintThread prints a short terminal summary of a thread
func (r *Renderer) PrintThread(summary *model.ThreadSummary) {
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  Messages:       %d\n", summary.MessageCount)
	fmt.Fprintf(r.out, "  Average:        %d/100\n", summary.AverageScore)
	fmt.Fprintf(r.out, "  Dominant:       %s\n", summary.DominantAlgorithm)
	for i, f := range sortedFrequency(summary.PatternFrequency) {
		if i >= 3 {
			break
		}
		fmt.Fprintf(r.out, "  Pattern:        %s ×%d\n", f.category, f.count)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  → %s\n", summary.Recommendation)
	fmt.Fprintln(r.out)
}

func writeMatches(b *strings.Builder, title string, d model.Detection) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(d.Matches) == 0 {
		b.WriteString("_None detected._\n\n")
		return
	}
	fmt.Fprintf(b, "Score %d, confidence %.2f\n\n", d.Score, d.Confidence)
	b.WriteString("| Category | Phrase | Weight |\n|---|---|---|\n")
	for _, m := range d.Matches {
		fmt.Fprintf(b, "| %s | %s | %d |\n", m.Category, tableCell(m.Phrase, 60), m.Weight)
	}
	b.WriteString("\n")
}

func levelText(result model.AnalysisResult) string {
	if result.LevelDescription == "" {
		return result.Level
	}
	return fmt.Sprintf("%s (%s)", result.Level, result.LevelDescription)
}

type frequency struct {
	category model.Category
	count    int
}

// sortedFrequency orders categories by count, then name
func sortedFrequency(freq map[model.Category]int) []frequency {
	out := make([]frequency, 0, len(freq))
	for c, n := range freq {
		out = append(out, frequency{category: c, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].category < out[j].category
	})
	return out
}

func quote(s string) string {
	if s == "" {
		return "_(empty message)_"
	}
	return strings.ReplaceAll(s, "\n", "\n> ")
}

// tableCell flattens s for a markdown table and truncates it to limit runes
func tableCell(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if runes := []rune(s); len(runes) > limit {
		s = string(runes[:limit-1]) + "…"
	}
	return s
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
