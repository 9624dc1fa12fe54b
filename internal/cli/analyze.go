package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/cyclotron/internal/model"
	"github.com/ppiankov/cyclotron/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	outJSON   string
	outMD     string
	inputFile string
	inputHTML string
	noFooter  bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Score a single message",
	Long: `Analyze scores one message for manipulation patterns and truth signals.

The message comes from the argument, --file, --html or standard input.

Example:
  cyclotron analyze "you never listen to me, i was wrong about that"
  cyclotron analyze --file message.txt --json result.json --md result.md
  cyclotron analyze --html exported-email.html
  echo "i take responsibility" | cyclotron analyze`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&inputFile, "file", "", "read the message from a text file")
	analyzeCmd.Flags().StringVar(&inputHTML, "html", "", "read the message from the visible text of an HTML file")
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	analyzeCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	analyzeCmd.MarkFlagsMutuallyExclusive("file", "html")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if noFooter {
		cfg.Output.IncludeFooter = false
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	var result model.AnalysisResult
	switch {
	case len(args) == 1:
		if inputFile != "" || inputHTML != "" {
			return fmt.Errorf("pass the message as an argument or with --file/--html, not both")
		}
		result = p.AnalyzeText(args[0])

	case inputHTML != "":
		raw, err := os.ReadFile(inputHTML)
		if err != nil {
			return fmt.Errorf("read html: %w", err)
		}
		if result, err = p.AnalyzeHTML(string(raw)); err != nil {
			return err
		}

	case inputFile != "":
		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		result = p.AnalyzeText(strings.TrimSpace(string(raw)))

	default:
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		result = p.AnalyzeText(strings.TrimSpace(string(raw)))
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "✓ Matched %d manipulation patterns, %d truth signals\n",
			len(result.Manipulation.Matches), len(result.Truth.Matches))
	}

	if err := p.RenderAnalysis(result, outJSON, outMD, cfg.Output.Verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
