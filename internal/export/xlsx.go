package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/feedcurve/internal/model"
)

// Sheet names of the XLSX workbook.
const (
	SheetProcessed  = "processed"
	SheetAggregated = "aggregated"
)

// WriteXLSX writes both curated tables as sheets of one workbook.
func WriteXLSX(path string, recs []model.Record, aggs []model.AggregateRow) error {
	f := xlsx.NewFile()

	processed, err := f.AddSheet(SheetProcessed)
	if err != nil {
		return eris.Wrap(err, "export: add processed sheet")
	}
	addRow(processed, ProcessedColumns)
	for _, r := range recs {
		addRow(processed, processedRow(r))
	}

	aggregated, err := f.AddSheet(SheetAggregated)
	if err != nil {
		return eris.Wrap(err, "export: add aggregated sheet")
	}
	addRow(aggregated, AggregateColumns)
	for _, a := range aggs {
		row := aggregated.AddRow()
		row.AddCell().SetString(a.Lot.String())
		row.AddCell().SetFloat(a.TotalConsumptionPerBird)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
