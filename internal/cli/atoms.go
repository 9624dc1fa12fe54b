package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ppiankov/cyclotron/internal/atoms"
	"github.com/ppiankov/cyclotron/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	atomsSource  string
	atomsType    string
	atomsLimit   int
	atomsJSON    bool
	atomsTimeout time.Duration
)

// atomsCmd represents the atoms command
var atomsCmd = &cobra.Command{
	Use:   "atoms",
	Short: "Search and summarize an atom index",
	Long: `Atoms loads a pre-built JSON index of named, typed atoms and searches it.

The index is read from a local path or fetched over HTTP(S). Remote
fetches honour robots.txt, are rate limited per host, and are cached.

Example:
  cyclotron atoms search boot
  cyclotron atoms search verifier --type class --limit 5
  cyclotron atoms stats --source https://example.com/atoms/index.json`,
}

var atomsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find atoms whose name or path contains query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := loadAtomIndex(cmd)
		if err != nil {
			return err
		}

		results := ix.Search(args[0], atoms.SearchOptions{Limit: atomsLimit, Type: atomsType})
		out := cmd.OutOrStdout()
		if atomsJSON {
			return writeJSON(out, results)
		}

		if len(results) == 0 {
			fmt.Fprintf(out, "No atoms match %q\n", args[0])
			return nil
		}
		for _, a := range results {
			fmt.Fprintf(out, "  %-10s %-40s %s\n", a.Type, a.Name, a.Path)
		}
		fmt.Fprintf(out, "\n%d result(s)\n", len(results))
		return nil
	},
}

var atomsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show atom counts by type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := loadAtomIndex(cmd)
		if err != nil {
			return err
		}

		stats := ix.Stats()
		out := cmd.OutOrStdout()
		if atomsJSON {
			return writeJSON(out, stats)
		}

		fmt.Fprintf(out, "  Total atoms:   %d\n", stats.TotalAtoms)
		if !stats.LastUpdated.IsZero() && stats.LastUpdated.Unix() != 0 {
			fmt.Fprintf(out, "  Last updated:  %s\n", stats.LastUpdated.Format(time.RFC3339))
		}
		fmt.Fprintln(out)

		types := make([]string, 0, len(stats.Types))
		for t := range stats.Types {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(out, "  %-12s %d\n", t, stats.Types[t])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(atomsCmd)
	atomsCmd.AddCommand(atomsSearchCmd)
	atomsCmd.AddCommand(atomsStatsCmd)

	atomsCmd.PersistentFlags().StringVar(&atomsSource, "source", "", "index path or URL (default: config index.source)")
	atomsCmd.PersistentFlags().BoolVar(&atomsJSON, "json", false, "print JSON instead of a table")
	atomsCmd.PersistentFlags().DurationVar(&atomsTimeout, "timeout", time.Minute, "timeout for loading the index")

	atomsSearchCmd.Flags().StringVar(&atomsType, "type", "", "only return atoms of this type")
	atomsSearchCmd.Flags().IntVar(&atomsLimit, "limit", atoms.DefaultSearchLimit, "maximum results")
}

func loadAtomIndex(cmd *cobra.Command) (*atoms.Index, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), atomsTimeout)
	defer cancel()

	ix, err := p.LoadAtoms(ctx, atomsSource)
	if err != nil {
		return nil, fmt.Errorf("load atom index: %w", err)
	}
	return ix, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
