// Package export writes curated tables and run manifests to disk.
package export

import (
	"database/sql"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/model"
)

// Delimiter separates fields in every exported CSV table.
const Delimiter = ';'

// ProcessedColumns defines the ordered columns of the processed table.
var ProcessedColumns = []string{
	"environmentId",
	"batchId",
	"lotKey",
	"clientName",
	"batchAge",
	"preBatchFeedDelivery",
	"feedDelivery",
	"feedMeasured",
	"feedManual",
	"feedPerBird",
	"siloEmptyTime",
	"siloNoConsumptionTime",
	"confidenceLevel",
}

// AggregateColumns defines the ordered columns of the aggregate table.
var AggregateColumns = []string{"lotKey", "totalConsumptionPerBird"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNull(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}

func processedRow(r model.Record) []string {
	return []string{
		strconv.Itoa(r.EnvironmentID()),
		strconv.Itoa(r.BatchID()),
		r.Lot.String(),
		r.ClientName,
		strconv.Itoa(r.BatchAge),
		formatFloat(r.Aux.PreBatchFeedDelivery),
		formatFloat(r.Aux.FeedDelivery),
		formatFloat(r.Aux.FeedMeasured),
		formatFloat(r.Aux.FeedManual),
		formatNull(r.FeedPerBird),
		strconv.FormatInt(r.Aux.SiloEmptyTime, 10),
		strconv.FormatInt(r.Aux.SiloNoConsumptionTime, 10),
		formatNull(r.ConfidenceLevel),
	}
}

func aggregateRow(a model.AggregateRow) []string {
	return []string{a.Lot.String(), formatFloat(a.TotalConsumptionPerBird)}
}

// EncodeProcessed writes the processed table to w.
func EncodeProcessed(w io.Writer, recs []model.Record) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(ProcessedColumns); err != nil {
		return eris.Wrap(err, "export: write processed header")
	}
	for _, r := range recs {
		if err := cw.Write(processedRow(r)); err != nil {
			return eris.Wrap(err, "export: write processed row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush processed table")
}

// EncodeAggregates writes the aggregate table to w.
func EncodeAggregates(w io.Writer, aggs []model.AggregateRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(AggregateColumns); err != nil {
		return eris.Wrap(err, "export: write aggregate header")
	}
	for _, a := range aggs {
		if err := cw.Write(aggregateRow(a)); err != nil {
			return eris.Wrap(err, "export: write aggregate row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush aggregate table")
}

// WriteProcessed writes the processed table to path.
func WriteProcessed(path string, recs []model.Record) error {
	return writeFile(path, func(w io.Writer) error { return EncodeProcessed(w, recs) })
}

// WriteAggregates writes the aggregate table to path.
func WriteAggregates(path string, aggs []model.AggregateRow) error {
	return writeFile(path, func(w io.Writer) error { return EncodeAggregates(w, aggs) })
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := encode(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
