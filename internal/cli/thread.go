package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/cyclotron/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	threadTimeout time.Duration
	llmEnabled    bool
	llmProvider   string
	llmModel      string
)

// threadCmd represents the thread command
var threadCmd = &cobra.Command{
	Use:   "thread <file>",
	Short: "Score an ordered conversation",
	Long: `Thread scores every message of a conversation and aggregates the results.

Text files hold one message per line; blank lines and lines starting with
# are skipped. HTML files yield one message per paragraph or block.

An optional LLM narrative can be generated after scoring. It is written to
a separate .llm.md file and never changes any score.

Example:
  cyclotron thread chat.txt
  cyclotron thread chat.txt --json thread.json --md thread.md
  cyclotron thread export.html --llm --llm-provider ollama --md thread.md`,
	Args: cobra.ExactArgs(1),
	RunE: runThread,
}

func init() {
	rootCmd.AddCommand(threadCmd)

	threadCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	threadCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	threadCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	threadCmd.Flags().DurationVar(&threadTimeout, "timeout", 2*time.Minute, "overall timeout (includes the LLM narrative)")

	// LLM flags
	threadCmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable LLM narrative generation")
	threadCmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, ollama)")
	threadCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name (provider default when empty)")
}

func runThread(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), threadTimeout)
	defer cancel()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if err := applyLLMFlags(cfg); err != nil {
		return err
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "Analyzing thread: %s\n", file)
		fmt.Fprintf(os.Stderr, "Workers: %d\n", cfg.Concurrency.Workers)
		if cfg.LLM.Provider != "" {
			fmt.Fprintf(os.Stderr, "LLM: %s\n", cfg.LLM.Provider)
		}
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	summary, err := p.AnalyzeThreadFile(ctx, file)
	if err != nil {
		return fmt.Errorf("analyze thread: %w", err)
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "✓ Scored %d messages\n", summary.MessageCount)
		if summary.Narrative != nil && summary.Narrative.Enabled {
			fmt.Fprintf(os.Stderr, "✓ Generated LLM narrative using %s/%s\n", summary.Narrative.Provider, summary.Narrative.Model)
		}
		fmt.Fprintln(os.Stderr)
	}

	if err := p.RenderThread(summary, outJSON, outMD, cfg.Output.Verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
