package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/ingest"
	"github.com/headline-goat/janus/internal/store"
)

func init() {
	rootCmd.AddCommand(newImportCmd())
}

func newImportCmd() *cobra.Command {
	var baseline string

	cmd := &cobra.Command{
		Use:   "import <experiment> <summary.csv>",
		Short: "Store per-period summary rows for an experiment",
		Long: `Import a summary CSV with alternative, period, exposures, conversions and
value columns. Rows for a period already stored are replaced. The import is
all or nothing.

Example:
  janus import checkout daily.csv --baseline control`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			in, closeIn, err := openInput(cmd, args[1])
			if err != nil {
				return err
			}
			defer closeIn()

			rows, err := ingest.ReadSummary(in)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			// reject bad rows before touching the database
			if _, err := ingest.Totals(rows); err != nil {
				return err
			}

			obs := make([]store.Observation, len(rows))
			for i, r := range rows {
				obs[i] = store.ObservationFromSummary(name, r)
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				n, err := s.ImportObservations(ctx, name, obs)
				if err != nil {
					return fmt.Errorf("failed to import observations: %w", err)
				}
				if baseline != "" {
					if _, err := s.SaveExperiment(ctx, name, baseline); err != nil {
						return fmt.Errorf("failed to save baseline: %w", err)
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows into '%s'\n", n, name)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&baseline, "baseline", "b", "", "save the baseline variant with the experiment")
	return cmd
}
