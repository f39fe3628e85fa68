package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/curation"
	"github.com/sells-group/feedcurve/internal/export"
	"github.com/sells-group/feedcurve/internal/model"
	"github.com/sells-group/feedcurve/internal/source"
	"github.com/sells-group/feedcurve/internal/store"
)

// Stages reported by curate outside the curation pipeline.
const (
	stageRead    = "read"
	stagePersist = "persist"
	stageExport  = "export"
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Curate a raw feed consumption table",
	Long:  "Reads a flat table of daily lot records, runs every curation stage, writes the processed and aggregate tables, and records the run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := curateRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		var st store.Store
		noPersist, _ := cmd.Flags().GetBool("no-persist")
		if cfg.Store.Persist && !noPersist {
			st, err = openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		out, err := runCurate(ctx, st, req)
		if err != nil {
			return err
		}

		if out.Empty {
			fmt.Fprintf(os.Stderr, "Run %s emptied the dataset at stage %s; no outputs written.\n",
				truncateID(out.RunID), out.Result.StoppedAt)
			return nil
		}
		formatCurateSummary(os.Stdout, out)
		return nil
	},
}

func init() {
	curateCmd.Flags().StringP("input", "i", "", "path to the raw record table (csv, json, xlsx)")
	curateCmd.Flags().String("format", "", "input format: auto, csv, json, xlsx (default from config)")
	curateCmd.Flags().String("sheet", "", "xlsx sheet name (default first sheet)")
	curateCmd.Flags().StringP("out", "o", "", "output directory (default from config)")
	curateCmd.Flags().Bool("outliers", false, "drop lots whose total is an IQR outlier")
	curateCmd.Flags().Bool("xlsx", false, "also write a two-sheet xlsx workbook")
	curateCmd.Flags().Bool("no-persist", false, "skip recording the run in the store")
	_ = curateCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(curateCmd)
}

// curateRequest holds everything one curation run needs.
type curateRequest struct {
	Input   string
	Source  source.Options
	Options curation.Options
	Paths   export.Paths
}

// curateOutcome is the result of a curation run.
type curateOutcome struct {
	RunID  string
	Result *curation.Result
	Paths  export.Paths
	// Empty is set when a stage removed every row.
	Empty bool
}

func curateRequestFromFlags(cmd *cobra.Command) (curateRequest, error) {
	input, _ := cmd.Flags().GetString("input")
	format, _ := cmd.Flags().GetString("format")
	sheet, _ := cmd.Flags().GetString("sheet")
	outDir, _ := cmd.Flags().GetString("out")
	withXLSX, _ := cmd.Flags().GetBool("xlsx")

	if format == "" {
		format = cfg.Input.Format
	}
	if sheet == "" {
		sheet = cfg.Input.Sheet
	}
	if outDir == "" {
		outDir = cfg.Output.Dir
	}

	delim := source.DefaultDelimiter
	if d := []rune(cfg.Input.Delimiter); len(d) == 1 {
		delim = d[0]
	}

	opts := curation.OptionsFromConfig(cfg.Curation)
	if cmd.Flags().Changed("outliers") {
		opts.OutlierFilter, _ = cmd.Flags().GetBool("outliers")
	}

	if input == "" {
		return curateRequest{}, eris.New("curate: --input is required")
	}

	return curateRequest{
		Input:   input,
		Source:  source.Options{Format: source.Format(format), Delimiter: delim, Sheet: sheet},
		Options: opts,
		Paths: export.NewPaths(outDir, cfg.Output.ProcessedFile, cfg.Output.AggregateFile,
			withXLSX || cfg.Output.XLSX, cfg.Output.Manifest),
	}, nil
}

// runCurate reads the input, runs the pipeline, writes outputs, and records
// the run in st. A nil st skips persistence. A dataset emptied by a stage is
// not an error: the run is marked empty and no outputs are written.
func runCurate(ctx context.Context, st store.Store, req curateRequest) (*curateOutcome, error) {
	params := req.Options.Params()
	log := zap.L().With(zap.String("input", req.Input))

	runID := uuid.New().String()
	if st != nil {
		run, err := st.CreateRun(ctx, req.Input, params)
		if err != nil {
			return nil, eris.Wrap(err, "curate: create run")
		}
		runID = run.ID
	}
	log = log.With(zap.String("run_id", runID))

	fail := func(stage string, err error) error {
		if st == nil {
			return err
		}
		if ferr := st.FailRun(ctx, runID, model.RunError{Message: err.Error(), Stage: stage}); ferr != nil {
			log.Warn("curate: record failure", zap.Error(ferr))
		}
		return err
	}
	saveReports := func(res *curation.Result) error {
		if st == nil || res == nil || len(res.Reports) == 0 {
			return nil
		}
		return st.SaveStageReports(ctx, runID, res.Reports)
	}

	raw, err := readInput(ctx, req)
	if err != nil {
		return nil, fail(stageRead, err)
	}

	res, err := curation.New(req.Options).Run(ctx, raw)
	switch {
	case errors.Is(err, curation.ErrEmptyDataset):
		if serr := saveReports(res); serr != nil {
			return nil, fail(stagePersist, serr)
		}
		if st != nil {
			runErr := model.RunError{Message: err.Error(), Stage: res.StoppedAt}
			if err := st.MarkEmpty(ctx, runID, runErr); err != nil {
				return nil, eris.Wrap(err, "curate: mark run empty")
			}
		}
		log.Warn("curate: dataset emptied", zap.String("stage", res.StoppedAt))
		return &curateOutcome{RunID: runID, Result: res, Paths: req.Paths, Empty: true}, nil
	case err != nil:
		stage := ""
		if res != nil {
			stage = res.StoppedAt
			_ = saveReports(res)
		}
		return nil, fail(stage, err)
	}

	if st != nil {
		if err := persistResult(ctx, st, runID, res); err != nil {
			return nil, fail(stagePersist, err)
		}
	}

	manifest := export.Manifest{
		RunID:     runID,
		Input:     req.Input,
		CreatedAt: time.Now().UTC(),
		Params:    params,
		Summary:   res.Summary,
		Stages:    res.Reports,
	}
	if err := export.WriteAll(ctx, req.Paths, res.Records, res.Aggregates, manifest); err != nil {
		return nil, fail(stageExport, err)
	}

	if st != nil {
		if err := st.CompleteRun(ctx, runID, res.Summary); err != nil {
			return nil, eris.Wrap(err, "curate: complete run")
		}
	}

	log.Info("curate: run finished",
		zap.Int("rows_out", res.Summary.RowsOut),
		zap.Int("lots_out", res.Summary.LotsOut),
		zap.Float64("total_feed_sum", res.Summary.TotalFeedSum),
	)
	return &curateOutcome{RunID: runID, Result: res, Paths: req.Paths}, nil
}

func readInput(ctx context.Context, req curateRequest) ([]model.RawRecord, error) {
	raw, err := source.Read(ctx, req.Input, req.Source)
	if err != nil {
		return nil, eris.Wrap(err, "curate: read input")
	}
	return raw, nil
}

func persistResult(ctx context.Context, st store.Store, runID string, res *curation.Result) error {
	if err := st.SaveStageReports(ctx, runID, res.Reports); err != nil {
		return err
	}
	n, err := st.SaveRecords(ctx, runID, res.Records)
	if err != nil {
		return err
	}
	if int(n) != len(res.Records) {
		return eris.Errorf("curate: saved %d of %d records", n, len(res.Records))
	}
	return st.SaveAggregates(ctx, runID, res.Aggregates)
}

// formatCurateSummary writes the per-stage report and run totals to out.
func formatCurateSummary(out io.Writer, o *curateOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", o.RunID)
	_, _ = fmt.Fprintln(w, "STAGE\tROWS_IN\tROWS_OUT\tLOTS_IN\tLOTS_OUT")
	_, _ = fmt.Fprintln(w, "-----\t-------\t--------\t-------\t--------")
	for _, r := range o.Result.Reports {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", r.Name, r.RowsIn, r.RowsOut, r.GroupsIn, r.GroupsOut)
	}
	s := o.Result.Summary
	_, _ = fmt.Fprintf(w, "Rows kept:\t%d / %d (%.1f%%)\n", s.RowsOut, s.RowsIn, s.RowRetention()*100)
	_, _ = fmt.Fprintf(w, "Lots kept:\t%d / %d (%.1f%%)\n", s.LotsOut, s.LotsIn, s.LotRetention()*100)
	_, _ = fmt.Fprintf(w, "Mean R²:\t%.4f\n", s.MeanR2)
	_, _ = fmt.Fprintf(w, "Total feed per bird:\t%.2f\n", s.TotalFeedSum)
	for _, f := range o.Paths.Files() {
		_, _ = fmt.Fprintf(w, "Wrote:\t%s\n", f)
	}
	_ = w.Flush()
}
