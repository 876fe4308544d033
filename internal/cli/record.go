package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/ingest"
	"github.com/headline-goat/janus/internal/store"
)

func init() {
	rootCmd.AddCommand(newRecordCmd())
}

func newRecordCmd() *cobra.Command {
	var row ingest.SummaryRow

	cmd := &cobra.Command{
		Use:   "record <experiment>",
		Short: "Record one period of one alternative",
		Long: `Record the exposures, conversions and value of one alternative for one
period. Recording the same period again replaces it.

Example:
  janus record checkout --alternative control --period 2024-05-01 \
    --exposures 1200 --conversions 96 --value 4310.50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if row.Alternative == "" {
				return fmt.Errorf("--alternative is required")
			}
			if _, err := ingest.Totals([]ingest.SummaryRow{row}); err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.RecordObservation(context.Background(), store.ObservationFromSummary(name, row)); err != nil {
					return fmt.Errorf("failed to record observation: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s/%s for '%s'\n", row.Alternative, periodLabel(row.Period), name)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&row.Alternative, "alternative", "a", "", "alternative (variant) name")
	cmd.Flags().StringVarP(&row.Period, "period", "p", "", "period label, e.g. a date")
	cmd.Flags().IntVarP(&row.Exposures, "exposures", "e", 0, "exposures in the period")
	cmd.Flags().IntVarP(&row.Conversions, "conversions", "c", 0, "conversions in the period")
	cmd.Flags().Float64Var(&row.Value, "value", 0, "total conversion value in the period")
	return cmd
}

func periodLabel(p string) string {
	if p == "" {
		return "(all)"
	}
	return p
}
