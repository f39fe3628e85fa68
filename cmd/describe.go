package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/feedcurve/internal/curation"
	"github.com/sells-group/feedcurve/internal/model"
)

var describeCmd = &cobra.Command{
	Use:   "describe [run-id]",
	Short: "Describe the distribution of total consumption per bird",
	Long:  "Prints count, mean, std, min, quartiles and max of the aggregate table of a stored run, or of a table curated on the fly from --input.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")

		var aggs []model.AggregateRow
		var err error
		if len(args) == 1 {
			aggs, err = storedAggregates(ctx, args[0])
		} else {
			aggs, err = curatedAggregates(ctx, cmd)
		}
		if err != nil {
			return err
		}

		stats, err := curation.Describe(aggs)
		if err != nil {
			return eris.Wrap(err, "describe")
		}
		return writeStats(os.Stdout, stats, output)
	},
}

func init() {
	describeCmd.Flags().StringP("input", "i", "", "raw record table to curate and describe instead of a stored run")
	describeCmd.Flags().Bool("outliers", false, "apply the IQR outlier filter before describing")
	describeCmd.Flags().String("output", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(describeCmd)
}

func storedAggregates(ctx context.Context, runID string) ([]model.AggregateRow, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	aggs, err := st.ListAggregates(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "describe: load aggregates of %s", runID)
	}
	return aggs, nil
}

func curatedAggregates(ctx context.Context, cmd *cobra.Command) ([]model.AggregateRow, error) {
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		return nil, eris.New("describe: a run id or --input is required")
	}
	req, err := curateRequestFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	raw, err := readInput(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := curation.New(req.Options).Run(ctx, raw)
	if err != nil {
		return nil, eris.Wrap(err, "describe: curate input")
	}
	return res.Aggregates, nil
}

// writeStats renders stats in the requested format.
func writeStats(out io.Writer, s curation.Stats, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(s)
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "count\t%d\n", s.Count)
		_, _ = fmt.Fprintf(w, "mean\t%.4f\n", s.Mean)
		_, _ = fmt.Fprintf(w, "std\t%.4f\n", s.Std)
		_, _ = fmt.Fprintf(w, "min\t%.4f\n", s.Min)
		_, _ = fmt.Fprintf(w, "25%%\t%.4f\n", s.Q1)
		_, _ = fmt.Fprintf(w, "50%%\t%.4f\n", s.Median)
		_, _ = fmt.Fprintf(w, "75%%\t%.4f\n", s.Q3)
		_, _ = fmt.Fprintf(w, "max\t%.4f\n", s.Max)
		return w.Flush()
	default:
		return eris.Errorf("describe: unknown output format %q", format)
	}
}
