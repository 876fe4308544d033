package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/experiment"
	"github.com/headline-goat/janus/internal/ingest"
)

func init() {
	rootCmd.AddCommand(newAnalyzeCmd())
}

func newAnalyzeCmd() *cobra.Command {
	var (
		flags  engineFlags
		format string
		cols   ingest.Columns
	)

	cmd := &cobra.Command{
		Use:   "analyze <file.csv>",
		Short: "Evaluate an experiment from a CSV file",
		Long: `Evaluate a per-exposure CSV (one row per exposure with alternative,
converted and value columns) or, with --format summary, a per-period summary
CSV (alternative, period, exposures, conversions, value).

Use - to read from stdin. Without --baseline, an interactive terminal asks
which alternative is the baseline.

Examples:
  janus analyze visits.csv --baseline control
  janus analyze daily.csv --format summary --baseline control --metrics conversion,arpu
  janus simulate | janus analyze - --baseline baseline --bootstrap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}

			in, closeIn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeIn()

			var (
				rows    []experiment.Row
				summary []ingest.SummaryRow
				labels  []string
			)
			switch format {
			case "rows":
				if rows, err = ingest.ReadRows(in, cols); err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				labels = rowLabels(rows)
			case "summary":
				if summary, err = ingest.ReadSummary(in); err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				for _, r := range summary {
					labels = appendUnique(labels, r.Alternative)
				}
			default:
				return fmt.Errorf("invalid format: must be 'rows' or 'summary'")
			}

			if cfg.BaselineVariantName == "" {
				if cfg.BaselineVariantName, err = promptBaseline(labels); err != nil {
					return err
				}
			}

			var report *experiment.Report
			if rows != nil {
				exp, err := newExperiment(cmd, "analysis", cfg)
				if err != nil {
					return err
				}
				report, err = exp.Run(cmd.Context(), rows)
				if err != nil {
					return err
				}
			} else {
				report, err = evaluateSummary(cmd, "analysis", cfg, summary)
				if err != nil {
					return err
				}
			}
			return printReport(cmd.OutOrStdout(), report, flags.threshold, flags.jsonOut)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "rows", "input format (rows or summary)")
	cmd.Flags().StringVar(&cols.Alternative, "alternative-column", "", "alternative column name (default alternative)")
	cmd.Flags().StringVar(&cols.Converted, "converted-column", "", "converted column name (default converted, or sales)")
	cmd.Flags().StringVar(&cols.Value, "value-column", "", "value column name (default value, or revenue)")
	return cmd
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

// promptBaseline asks which label is the baseline. It only prompts on an
// interactive terminal.
func promptBaseline(labels []string) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", fmt.Errorf("--baseline is required (alternatives: %v)", labels)
	}
	if len(labels) == 0 {
		return "", fmt.Errorf("no alternatives found")
	}

	prompt := promptui.Select{
		Label: "Baseline variant",
		Items: labels,
		Size:  5,
	}

	_, choice, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return "", fmt.Errorf("cancelled")
		}
		return "", err
	}
	return choice, nil
}

func rowLabels(rows []experiment.Row) []string {
	var labels []string
	for _, r := range rows {
		labels = appendUnique(labels, r.Alternative)
	}
	return labels
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
