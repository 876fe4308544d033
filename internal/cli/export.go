package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/ingest"
	"github.com/headline-goat/janus/internal/store"
)

func init() {
	rootCmd.AddCommand(newExportCmd())
}

func newExportCmd() *cobra.Command {
	var (
		exportFormat string
		expand       bool
	)

	cmd := &cobra.Command{
		Use:   "export <experiment>",
		Short: "Export stored observations",
		Long: `Export the observations of an experiment as a summary CSV or JSON.
With --expand the CSV holds one row per exposure instead.

Examples:
  janus export checkout --format csv > checkout.csv
  janus export checkout --format json > checkout.json
  janus export checkout --expand | janus analyze - --baseline control --bootstrap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if exportFormat != "csv" && exportFormat != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}
			if expand && exportFormat != "csv" {
				return fmt.Errorf("--expand only applies to csv")
			}

			return withStore(func(s *store.SQLiteStore) error {
				obs, err := s.GetObservations(context.Background(), name)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment '%s' not found", name)
					}
					return fmt.Errorf("failed to get observations: %w", err)
				}

				rows := store.Summaries(obs)
				out := cmd.OutOrStdout()
				switch {
				case expand:
					perExposure, err := ingest.ExpandSummary(rows)
					if err != nil {
						return err
					}
					return ingest.WriteRows(out, perExposure)
				case exportFormat == "csv":
					return ingest.WriteSummary(out, rows)
				default:
					return exportJSON(out, name, rows)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	cmd.Flags().BoolVar(&expand, "expand", false, "write one csv row per exposure")
	return cmd
}

type jsonExport struct {
	Experiment   string              `json:"experiment"`
	Observations []ingest.SummaryRow `json:"observations"`
}

func exportJSON(w io.Writer, name string, rows []ingest.SummaryRow) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonExport{Experiment: name, Observations: rows})
}
