package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
)

// ErrScoreLeak is returned in strict mode when a narrative quotes a score
// other than the one the scorer computed
var ErrScoreLeak = errors.New("narrative quotes a score that was not computed")

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize writes a narrative for a scored thread
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for a narrative
type SummarizeRequest struct {
	// Summary is the already-scored thread; it is read, never modified
	Summary model.ThreadSummary

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's narrative output
type SummarizeResponse struct {
	Summary    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI; optional for Ollama
	APIKey string

	// BaseURL for custom or OpenAI-compatible endpoints
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// Strict rejects narratives that quote a score other than the computed one
	Strict bool

	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		Strict:    true,
		MaxTokens: 800,
	}
}

// BuildPrompt constructs the default narrative prompt for a scored thread
func BuildPrompt(summary model.ThreadSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are describing the result of a rule-based phrase scan over a conversation. The scan counts known manipulation and truth phrases; it does NOT understand meaning and it NEVER judges people.

CRITICAL RULES:
1. The only score you may mention is %d/100. Never compute, estimate or quote any other score.
2. Describe the detected patterns, not the intent of the speakers.
3. If few patterns were detected, say the evidence is thin.
4. Do not diagnose, label or give clinical advice.

Scan Summary:
- Messages: %d
- Average Score: %d/100
- Dominant Algorithm: %s
- Manipulation Weight: %d
- Truth Weight: %d
- Recommendation: %s

Top Patterns:
`, summary.AverageScore, summary.MessageCount, summary.AverageScore, summary.DominantAlgorithm,
		summary.TotalManipulation, summary.TotalTruth, summary.Recommendation)

	top := topPatterns(summary.PatternFrequency, 3)
	if len(top) == 0 {
		b.WriteString("- (no manipulation patterns detected)\n")
	}
	for _, p := range top {
		fmt.Fprintf(&b, "- %s: %d\n", p.category, p.count)
	}

	b.WriteString("\nProvide a 3-4 sentence plain-language reading of these patterns.")
	return b.String()
}

type patternCount struct {
	category model.Category
	count    int
}

// topPatterns returns the n most frequent categories, ties broken by name
func topPatterns(freq map[model.Category]int, n int) []patternCount {
	counts := make([]patternCount, 0, len(freq))
	for c, count := range freq {
		counts = append(counts, patternCount{category: c, count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].category < counts[j].category
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

var quotedScore = regexp.MustCompile(`\b(\d{1,3})\s*/\s*100\b`)

// verifyScores checks that every "N/100" in text equals want
func verifyScores(text string, want int) error {
	for _, m := range quotedScore.FindAllStringSubmatch(text, -1) {
		got, err := strconv.Atoi(m[1])
		if err != nil || got != want {
			return fmt.Errorf("%w: found %s/100, computed %d/100", ErrScoreLeak, m[1], want)
		}
	}
	return nil
}
