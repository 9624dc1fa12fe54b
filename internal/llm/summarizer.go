package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
	"go.uber.org/zap"
)

// Summarizer attaches optional narratives to scored threads
type Summarizer struct {
	provider Provider // nil when disabled
	config   Config
	logger   *zap.Logger
}

// NewSummarizer creates a summarizer; a config without a provider yields a
// disabled summarizer rather than an error
func NewSummarizer(config Config, logger *zap.Logger) (*Summarizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, err
	}

	return &Summarizer{
		provider: provider,
		config:   config,
		logger:   logger,
	}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s.provider != nil
}

// ProviderName returns the configured provider, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// GenerateNarrative asks the provider to describe summary. It returns nil
// when disabled. Provider failures are reported as warnings on the
// narrative, so a scan never fails because of the LLM.
func (s *Summarizer) GenerateNarrative(ctx context.Context, summary *model.ThreadSummary) (*model.Narrative, error) {
	if s.provider == nil {
		return nil, nil
	}
	if summary == nil {
		return nil, fmt.Errorf("no thread summary to describe")
	}

	narrative := &model.Narrative{
		Provider: s.provider.Name(),
		Model:    s.config.Model,
		Strict:   s.config.Strict,
	}

	if !s.provider.IsAvailable(ctx) {
		narrative.Warnings = append(narrative.Warnings,
			fmt.Sprintf("LLM provider %s is not available", s.provider.Name()))
		return narrative, nil
	}
	narrative.Enabled = true

	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Summary:   *summary,
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
	})
	if err != nil {
		s.logger.Warn("narrative generation failed",
			zap.String("provider", s.provider.Name()),
			zap.Error(err))
		narrative.Warnings = append(narrative.Warnings, fmt.Sprintf("LLM narrative generation failed: %v", err))
		return narrative, nil
	}

	narrative.SummaryMD = resp.Summary
	if resp.Model != "" {
		narrative.Model = resp.Model
	}
	if resp.TokensUsed > 0 {
		narrative.Warnings = append(narrative.Warnings, fmt.Sprintf("Tokens used: %d", resp.TokensUsed))
	}

	return narrative, nil
}

// RenderSeparateMarkdown renders a narrative as its own document, apart
// from the scored report
func RenderSeparateMarkdown(n *model.Narrative) string {
	if n == nil || !n.Enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString("# LLM Narrative\n\n")
	b.WriteString("> **GENERATED CONTENT.** This text was written by a language model from the scan results. ")
	b.WriteString("Scores were determined independently by phrase rules and are not affected by it.\n\n")

	fmt.Fprintf(&b, "- **Provider:** %s\n", n.Provider)
	if n.Model != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", n.Model)
	}
	fmt.Fprintf(&b, "- **Strict Score Mode:** %t\n\n", n.Strict)

	b.WriteString("## Narrative\n\n")
	if n.SummaryMD == "" {
		b.WriteString("_No summary generated._\n")
	} else {
		b.WriteString(n.SummaryMD)
		b.WriteString("\n")
	}

	if len(n.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range n.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}
