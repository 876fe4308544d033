package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/experiment"
	"github.com/headline-goat/janus/internal/ingest"
	"github.com/headline-goat/janus/internal/stats"
	"github.com/headline-goat/janus/internal/store"
)

func init() {
	rootCmd.AddCommand(newResultsCmd())
}

func newResultsCmd() *cobra.Command {
	var flags engineFlags

	cmd := &cobra.Command{
		Use:   "results <experiment>",
		Short: "Evaluate the stored observations of an experiment",
		Long: `Evaluate every observation recorded for an experiment.

The baseline defaults to the one saved with 'janus import --baseline'.
With --bootstrap the summary rows are expanded to per-exposure rows first.

Example:
  janus results checkout --baseline control`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				exp, err := s.GetExperiment(ctx, name)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment '%s' not found", name)
					}
					return fmt.Errorf("failed to get experiment: %w", err)
				}
				if cfg.BaselineVariantName == "" {
					cfg.BaselineVariantName = exp.Baseline
				}

				obs, err := s.GetObservations(ctx, name)
				if err != nil {
					return fmt.Errorf("failed to get observations: %w", err)
				}

				report, err := evaluateSummary(cmd, name, cfg, store.Summaries(obs))
				if err != nil {
					return err
				}
				return printReport(cmd.OutOrStdout(), report, flags.threshold, flags.jsonOut)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

// evaluateSummary totals summary rows per alternative, or expands them
// when the bootstrap needs per-exposure rows.
func evaluateSummary(cmd *cobra.Command, name string, cfg experiment.Config, rows []ingest.SummaryRow) (*experiment.Report, error) {
	exp, err := newExperiment(cmd, name, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.BootstrapEnabled {
		expanded, err := ingest.ExpandSummary(rows)
		if err != nil {
			return nil, err
		}
		return exp.Run(cmd.Context(), expanded)
	}

	totals, err := ingest.Totals(rows)
	if err != nil {
		return nil, err
	}
	return exp.RunAggregates(cmd.Context(), totals)
}

// printReport writes report as JSON or as one table per metric followed by
// a decision line.
func printReport(out io.Writer, report *experiment.Report, threshold float64, jsonOut bool) error {
	if jsonOut {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	// Print header
	fmt.Fprintf(out, "EXPERIMENT: %s\n", report.Name)
	fmt.Fprintf(out, "BASELINE: %s\n", report.Baseline)
	fmt.Fprintf(out, "DRAWS: %s  SEED: %d\n", formatNumber(report.SampleSize), report.Seed)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tEXPOSURES\tCONVERSIONS\tVALUE\tSHARE")
	for _, v := range report.Variants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(v.Name),
			formatNumber(v.Exposures),
			formatNumber(v.Conversions),
			formatMoney(v.TotalValue),
			formatPercent(v.Ratio),
		)
	}
	w.Flush()

	ciLabel := fmt.Sprintf("%g%% CI", report.CredibleLevel*100)
	for _, m := range report.Metrics {
		leader, _ := report.Leader(m)

		fmt.Fprintln(out)
		fmt.Fprintln(out, strings.ToUpper(m.Label()))
		fmt.Fprintln(out, strings.Repeat("─", 72))

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "VARIANT\tOBSERVED\tCHANCE TO BEAT\tEXPECTED LOSS\tLIFT\t%s\t\n", ciLabel)
		for _, v := range report.Variants {
			res, ok := v.Statistics[m]
			if !ok {
				continue
			}

			indicator := ""
			if v.Name == leader.Name {
				indicator = "← LEADING"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t[%s, %s]\t%s\n",
				truncate(v.Name),
				formatMetric(m, observed(v, m)),
				formatPercent(res.ChanceToBeat),
				formatMetric(m, res.ExpectedLoss),
				formatLift(res.Lift),
				formatMetric(m, res.Interval.Lower),
				formatMetric(m, res.Interval.Upper),
				indicator,
			)
			if res.Bootstrap != nil {
				fmt.Fprintf(w, "  bootstrap\t%s\t\t\t\t[%s, %s]\t\n",
					formatMetric(m, res.Bootstrap.Mean),
					formatMetric(m, res.Bootstrap.Lower),
					formatMetric(m, res.Bootstrap.Upper),
				)
			}
		}
		w.Flush()

		fmt.Fprintln(out, decision(report, m, threshold))
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintln(out)
		for _, warn := range report.Warnings {
			fmt.Fprintf(out, "warning: %s (%s): %s\n", warn.Variant, warn.Metric, warn.Message)
		}
	}

	return nil
}

func decision(report *experiment.Report, m stats.Metric, threshold float64) string {
	leader, ok := report.Leader(m)
	if !ok {
		return "Decision: no data"
	}
	chance := leader.Statistics[m].ChanceToBeat

	if winner, ok := report.Winner(m, threshold); ok {
		return fmt.Sprintf("Decision: %q wins (%s chance to beat)", winner.Name, formatPercent(chance))
	}
	return fmt.Sprintf("Decision: %q leads with %s chance to beat, below the %s threshold",
		leader.Name, formatPercent(chance), formatPercent(threshold))
}

func observed(v experiment.VariantResult, m stats.Metric) float64 {
	switch m {
	case stats.Conversion:
		return v.ConversionRate
	case stats.ValuePerConversion:
		return v.AvgValuePerConversion
	case stats.ValuePerExposure:
		return v.ValuePerExposure
	}
	return 0
}

func formatMetric(m stats.Metric, x float64) string {
	if m == stats.Conversion {
		return formatPercent(x)
	}
	return formatMoney(x)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}

func formatLift(lift float64) string {
	if math.IsInf(lift, 0) || math.IsNaN(lift) {
		return "n/a"
	}
	if lift == 0 {
		return "0%"
	}
	return fmt.Sprintf("%+.2f%%", lift*100)
}

// formatMoney rounds to cents with thousands separators.
func formatMoney(x float64) string {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return "n/a"
	}
	s := decimal.NewFromFloat(x).StringFixed(2)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + "." + frac
}

// Truncate name if too long
func truncate(name string) string {
	if len(name) > 16 {
		return name[:13] + "..."
	}
	return name
}
