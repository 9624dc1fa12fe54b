package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/cyclotron/internal/atoms"
	"github.com/ppiankov/cyclotron/internal/cache"
	"github.com/ppiankov/cyclotron/internal/extract"
	"github.com/ppiankov/cyclotron/internal/llm"
	"github.com/ppiankov/cyclotron/internal/model"
	"github.com/ppiankov/cyclotron/internal/score"
	"github.com/ppiankov/cyclotron/internal/worker"
	"go.uber.org/zap"
)

// Pipeline wires the scorer, batch processor, atom fetcher, optional
// narrative summarizer and renderer
type Pipeline struct {
	scorer     *score.Scorer
	batch      *worker.BatchProcessor
	fetcher    *atoms.Fetcher
	summarizer *llm.Summarizer // Optional LLM summarizer (nil if disabled)
	renderer   *Renderer
	config     *model.Config
	logger     *zap.Logger
	status     io.Writer // Progress lines for humans
}

// NewPipeline creates a new pipeline with the given configuration.
// A broken patterns file is an error; a broken LLM setup only disables
// narratives.
func NewPipeline(cfg *model.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scorer := score.NewScorer()
	if cfg.Scoring.PatternsFile != "" {
		rules, err := score.LoadRules(cfg.Scoring.PatternsFile)
		if err != nil {
			return nil, fmt.Errorf("load patterns: %w", err)
		}
		if scorer, err = score.NewScorerWithRules(rules); err != nil {
			return nil, fmt.Errorf("load patterns: %w", err)
		}
		logger.Info("loaded custom patterns", zap.String("file", cfg.Scoring.PatternsFile))
	}

	var summarizer *llm.Summarizer
	if cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM), logger)
		if err != nil {
			logger.Warn("failed to initialize LLM provider", zap.Error(err))
		} else {
			summarizer = s
			logger.Debug("narratives enabled", zap.String("provider", s.ProviderName()))
		}
	}

	limiter := worker.NewHostLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)

	return &Pipeline{
		scorer:     scorer,
		batch:      worker.NewBatchProcessor(scorer, cfg.Concurrency.Workers, logger),
		fetcher:    atoms.NewFetcher(cfg.Index, cache.New(cfg.Cache), limiter, logger),
		summarizer: summarizer,
		renderer:   NewRenderer(cfg.Output.IncludeFooter, os.Stdout),
		config:     cfg,
		logger:     logger,
		status:     os.Stderr,
	}, nil
}

// Renderer returns the pipeline's renderer
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

// AnalyzeText scores a single message
func (p *Pipeline) AnalyzeText(text string) model.AnalysisResult {
	return p.scorer.Analyze(text)
}

// AnalyzeHTML scores the visible text of an HTML document as one message
func (p *Pipeline) AnalyzeHTML(htmlContent string) (model.AnalysisResult, error) {
	text, err := extract.VisibleText(htmlContent)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	return p.scorer.Analyze(strings.ReplaceAll(text, "\n", " ")), nil
}

// AnalyzeThread scores messages concurrently, aggregates them in order and
// attaches a narrative when a provider is configured
func (p *Pipeline) AnalyzeThread(ctx context.Context, messages []string) (*model.ThreadSummary, error) {
	if len(messages) == 0 {
		return nil, score.ErrEmptyThread
	}

	results, err := p.batch.ProcessMessages(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("analyze messages: %w", err)
	}

	summary, err := score.Summarize(results)
	if err != nil {
		return nil, err
	}

	// Narrative runs after scoring and never changes it
	if p.summarizer != nil && p.summarizer.IsEnabled() {
		narrative, err := p.summarizer.GenerateNarrative(ctx, summary)
		if err != nil {
			p.logger.Warn("narrative generation failed", zap.Error(err))
		} else if narrative != nil {
			summary.Narrative = narrative
		}
	}

	return summary, nil
}

// ReadThreadFile loads messages from path. HTML files yield one message per
// block element; anything else is read one message per line.
func ReadThreadFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read thread: %w", err)
		}
		return extract.Messages(string(raw))
	default:
		return worker.ReadMessagesFromFile(path)
	}
}

// AnalyzeThreadFile reads and analyzes a thread file
func (p *Pipeline) AnalyzeThreadFile(ctx context.Context, path string) (*model.ThreadSummary, error) {
	messages, err := ReadThreadFile(path)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("thread loaded", zap.String("file", path), zap.Int("messages", len(messages)))
	return p.AnalyzeThread(ctx, messages)
}

// LoadAtoms loads the configured atom index, or source when non-empty
func (p *Pipeline) LoadAtoms(ctx context.Context, source string) (*atoms.Index, error) {
	if source == "" {
		source = p.config.Index.Source
	}
	return p.fetcher.FetchIndex(ctx, source)
}

// RenderAnalysis writes a single-message result to the requested outputs
// and prints a summary
func (p *Pipeline) RenderAnalysis(result model.AnalysisResult, jsonPath, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(result, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(p.status, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderAnalysisMarkdown(result, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(p.status, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	p.renderer.PrintAnalysis(result)
	return nil
}

// RenderThread writes a thread summary to the requested outputs, puts any
// narrative in its own .llm.md file, and prints a summary
func (p *Pipeline) RenderThread(summary *model.ThreadSummary, jsonPath, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(summary, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(p.status, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderThreadMarkdown(summary, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(p.status, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	if summary.Narrative != nil && summary.Narrative.Enabled && mdPath != "" {
		llmPath := strings.TrimSuffix(mdPath, ".md") + ".llm.md"
		if err := p.renderer.RenderLLMMarkdown(llm.RenderSeparateMarkdown(summary.Narrative), llmPath); err != nil {
			p.logger.Warn("failed to write narrative", zap.String("path", llmPath), zap.Error(err))
		} else if verbose {
			fmt.Fprintf(p.status, "✓ Wrote LLM Narrative: %s\n", llmPath)
		}
	}

	p.renderer.PrintThread(summary)
	return nil
}
