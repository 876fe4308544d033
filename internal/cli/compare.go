package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/janus/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newCompareCmd())
}

func newCompareCmd() *cobra.Command {
	var (
		flags    engineFlags
		variants []string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two variants from summary counts",
		Long: `Compare two variants given their totals as name:exposures:conversions[:value].

The first variant is the baseline unless --baseline says otherwise.

Example:
  janus compare --variant control:1000:100:1000 --variant treatment:1000:150:1500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			aggs := make([]experiment.Aggregate, 0, len(variants))
			for _, arg := range variants {
				agg, err := parseVariantFlag(arg)
				if err != nil {
					return err
				}
				aggs = append(aggs, agg)
			}
			if len(aggs) == 0 {
				return fmt.Errorf("at least one --variant is required")
			}

			cfg, err := flags.config(cmd)
			if err != nil {
				return err
			}
			if cfg.BaselineVariantName == "" {
				cfg.BaselineVariantName = aggs[0].Name
			}

			exp, err := newExperiment(cmd, name, cfg)
			if err != nil {
				return err
			}
			report, err := exp.RunAggregates(cmd.Context(), aggs)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report, flags.threshold, flags.jsonOut)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringArrayVarP(&variants, "variant", "v", nil, "variant as name:exposures:conversions[:value] (repeatable)")
	cmd.Flags().StringVar(&name, "name", "adhoc", "experiment name shown in the report")
	return cmd
}

// parseVariantFlag reads name:exposures:conversions[:value].
func parseVariantFlag(arg string) (experiment.Aggregate, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return experiment.Aggregate{}, fmt.Errorf("invalid variant %q: want name:exposures:conversions[:value]", arg)
	}

	agg := experiment.Aggregate{Name: strings.TrimSpace(parts[0])}

	var err error
	if agg.Exposures, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return agg, fmt.Errorf("invalid exposures in %q", arg)
	}
	if agg.Conversions, err = strconv.Atoi(strings.TrimSpace(parts[2])); err != nil {
		return agg, fmt.Errorf("invalid conversions in %q", arg)
	}
	if len(parts) == 4 {
		if agg.TotalValue, err = strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err != nil {
			return agg, fmt.Errorf("invalid value in %q", arg)
		}
	}
	return agg, nil
}
