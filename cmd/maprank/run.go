package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/use-agent/maprank/batch"
	"github.com/use-agent/maprank/models"
	"github.com/use-agent/maprank/report"
	"github.com/use-agent/maprank/tabular"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Resolve a batch of (query, target) pairs",
	Long: `Resolves every pair in order on a single browser tab and prints a results
table. Pairs come from a CSV file (--in; first column query, second column
target name, header row ignored, duplicates dropped) and/or repeated
--pair "query=target" flags.

Interrupting the run stops before the next pair; rows resolved so far are
still written.`,
	Args: cobra.NoArgs,
	RunE: runBatchCmd,
}

var (
	runIn         string
	runPairs      []string
	runOut        string
	runReport     string
	runMaxScrolls int
	runQuiet      bool
)

func init() {
	runCommand.Flags().StringVarP(&runIn, "in", "i", "", "CSV file of query,target-name pairs")
	runCommand.Flags().StringArrayVarP(&runPairs, "pair", "p", nil, `Pair as "query=target" (repeatable)`)
	runCommand.Flags().StringVarP(&runOut, "out", "o", "", "Write results as CSV to this file")
	runCommand.Flags().StringVar(&runReport, "report", "", "Write a report; format from extension (.html, .md, .json)")
	runCommand.Flags().IntVar(&runMaxScrolls, "max-scrolls", 0, "Override the scroll budget per pair")
	runCommand.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not print progress")
	rootCmd.AddCommand(runCommand)
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	// ── 1. Collect input ────────────────────────────────────────────
	pairs, err := collectPairs(runIn, runPairs)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return errors.New("no pairs given: use --in and/or --pair")
	}
	if runReport != "" {
		if _, err := reportFormat(runReport); err != nil {
			return err
		}
	}

	// ── 2. Start browser ────────────────────────────────────────────
	a, err := newApp(cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := a.runner
	if runMaxScrolls > 0 {
		r := *runner
		r.Resolver = runner.Resolver.WithOptions(runner.Resolver.Options().WithMaxScrollAttempts(runMaxScrolls))
		runner = &r
	}

	// ── 3. Resolve ──────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress batch.Progress
	if !runQuiet {
		progress = progressPrinter(cmd.ErrOrStderr())
	}
	rows, runErr := runner.Run(ctx, a.browser, pairs, progress)
	if len(rows) == 0 && runErr != nil {
		return runErr
	}

	// ── 4. Write outputs ────────────────────────────────────────────
	if err := writeTable(cmd.OutOrStdout(), rows); err != nil {
		return err
	}
	if runOut != "" {
		if err := writeFile(runOut, func(w io.Writer) error { return tabular.WriteResults(w, rows) }); err != nil {
			return err
		}
	}
	if runReport != "" {
		if err := writeReport(runReport, rows); err != nil {
			return err
		}
	}
	return runErr
}

// collectPairs reads pairs from the CSV file at path (if any) followed by the
// --pair flag values.
func collectPairs(path string, flags []string) ([]models.Pair, error) {
	var pairs []models.Pair
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		pairs, err = tabular.ReadPairs(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	for _, s := range flags {
		p, err := parsePairFlag(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// parsePairFlag splits "query=target" at the first '='.
func parsePairFlag(s string) (models.Pair, error) {
	query, target, ok := strings.Cut(s, "=")
	p := models.Pair{Query: strings.TrimSpace(query), Target: strings.TrimSpace(target)}
	if !ok {
		return p, fmt.Errorf("--pair %q: want query=target", s)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("--pair %q: %w", s, err)
	}
	return p, nil
}

// progressPrinter reports progress as one line per update.
func progressPrinter(w io.Writer) batch.Progress {
	return func(fraction float64, status string) {
		fmt.Fprintf(w, "[%3.0f%%] %s\n", fraction*100, status)
	}
}

// writeTable prints rows as an aligned table.
func writeTable(w io.Writer, rows []models.ResultRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tTARGET\tRANK\tNOTE")
	for _, row := range rows {
		note := ""
		if row.Error != nil {
			note = row.Error.Code + ": " + row.Error.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Query, row.Target, row.Outcome, note)
	}
	return tw.Flush()
}

// reportFormat picks the report format from the file extension.
func reportFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "html", nil
	case ".md", ".markdown":
		return "markdown", nil
	case ".json":
		return "json", nil
	default:
		return "", fmt.Errorf("--report %q: extension must be .html, .md or .json", path)
	}
}

func writeReport(path string, rows []models.ResultRow) error {
	format, err := reportFormat(path)
	if err != nil {
		return err
	}
	rep := report.Build(rows)
	r := report.NewRenderer("Rank report")

	return writeFile(path, func(w io.Writer) error {
		switch format {
		case "html":
			return r.HTML(w, rep)
		case "markdown":
			md, err := r.Markdown(rep)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, md)
			return err
		default:
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
	})
}

func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
