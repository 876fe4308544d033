package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/headline-goat/janus/internal/ingest"
)

func init() {
	rootCmd.AddCommand(newSimulateCmd())
}

func newSimulateCmd() *cobra.Command {
	var (
		scenario     = ingest.DefaultScenario()
		scenarioFile string
		seed         uint64
		output       string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a synthetic per-exposure dataset",
		Long: `Generate per-exposure rows for a synthetic two-variant experiment.
Payments are drawn from the value posterior of each arm and rounded to cents.

Flags override values read from --scenario.

Examples:
  janus simulate --exposures 20000 --treatment-conversion 0.13 > visits.csv
  janus simulate --scenario pricing.yaml --seed 7 --output visits.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := scenario
			if scenarioFile != "" {
				loaded, err := loadScenario(scenarioFile)
				if err != nil {
					return err
				}
				s = mergeScenario(cmd, loaded, scenario)
			}

			rows, err := ingest.Synthesize(s, seed)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			if err := ingest.WriteRows(out, rows); err != nil {
				return fmt.Errorf("failed to write rows: %w", err)
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", len(rows), output)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&scenarioFile, "scenario", "", "scenario file (yaml)")
	flags.Uint64Var(&seed, "seed", 1, "random seed")
	flags.StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	flags.IntVar(&scenario.Exposures, "exposures", scenario.Exposures, "total exposures")
	flags.Float64Var(&scenario.BaselineShare, "baseline-share", scenario.BaselineShare, "share of exposures in the baseline")
	flags.StringVar(&scenario.BaselineName, "baseline-name", scenario.BaselineName, "baseline label")
	flags.StringVar(&scenario.TreatmentName, "treatment-name", scenario.TreatmentName, "treatment label")
	flags.Float64Var(&scenario.BaselineConversion, "baseline-conversion", scenario.BaselineConversion, "baseline conversion rate")
	flags.Float64Var(&scenario.TreatmentConversion, "treatment-conversion", scenario.TreatmentConversion, "treatment conversion rate")
	flags.Float64Var(&scenario.BaselineAvgValue, "baseline-value", scenario.BaselineAvgValue, "baseline average value per conversion")
	flags.Float64Var(&scenario.TreatmentAvgValue, "treatment-value", scenario.TreatmentAvgValue, "treatment average value per conversion")
	return cmd
}

func loadScenario(path string) (ingest.Scenario, error) {
	s := ingest.DefaultScenario()

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return s, nil
}

// mergeScenario applies the flags the user set on top of base.
func mergeScenario(cmd *cobra.Command, base, fromFlags ingest.Scenario) ingest.Scenario {
	flags := cmd.Flags()
	if flags.Changed("exposures") {
		base.Exposures = fromFlags.Exposures
	}
	if flags.Changed("baseline-share") {
		base.BaselineShare = fromFlags.BaselineShare
	}
	if flags.Changed("baseline-name") {
		base.BaselineName = fromFlags.BaselineName
	}
	if flags.Changed("treatment-name") {
		base.TreatmentName = fromFlags.TreatmentName
	}
	if flags.Changed("baseline-conversion") {
		base.BaselineConversion = fromFlags.BaselineConversion
	}
	if flags.Changed("treatment-conversion") {
		base.TreatmentConversion = fromFlags.TreatmentConversion
	}
	if flags.Changed("baseline-value") {
		base.BaselineAvgValue = fromFlags.BaselineAvgValue
	}
	if flags.Changed("treatment-value") {
		base.TreatmentAvgValue = fromFlags.TreatmentAvgValue
	}
	return base
}
