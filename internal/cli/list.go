package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored experiments",
	Long:  `List every experiment in the database with its observation totals.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		experiments, err := s.ListExperiments(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(experiments) == 0 {
			fmt.Fprintln(out, "No experiments yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Import a summary CSV to get started:")
			fmt.Fprintln(out, "  janus import checkout daily.csv --baseline control")
			return nil
		}

		// Print table
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tBASELINE\tVARIANTS\tPERIODS\tEXPOSURES\tCONVERSIONS\tVALUE\tUPDATED")

		for _, e := range experiments {
			baseline := e.Baseline
			if baseline == "" {
				baseline = "-"
			}

			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
				e.Name,
				baseline,
				e.Alternatives,
				e.Periods,
				formatNumber(e.Exposures),
				formatNumber(e.Conversions),
				formatMoney(e.Value),
				e.UpdatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}

func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
