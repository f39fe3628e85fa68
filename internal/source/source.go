// Package source reads flat feed-consumption tables from CSV, JSON, and XLSX
// files into raw records.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/model"
)

// Format identifies the encoding of an input table.
type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ErrMissingColumn is returned when the input lacks a column the pipeline requires.
var ErrMissingColumn = eris.New("source: missing required column")

// Options configures how an input table is read.
type Options struct {
	Format    Format
	Delimiter rune   // CSV only, default ';'
	Sheet     string // XLSX only, default first sheet
}

// DetectFormat resolves FormatAuto from the file extension.
func DetectFormat(path string, f Format) (Format, error) {
	if f != "" && f != FormatAuto {
		return f, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("source: cannot detect format of %q", path)
	}
}

// Read loads every record of the table at path.
func Read(ctx context.Context, path string, opts Options) ([]model.RawRecord, error) {
	format, err := DetectFormat(path, opts.Format)
	if err != nil {
		return nil, err
	}

	var recs []model.RawRecord
	switch format {
	case FormatXLSX:
		recs, err = ReadXLSX(ctx, path, opts.Sheet)
	case FormatCSV, FormatJSON:
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "source: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		if format == FormatCSV {
			recs, err = ReadCSV(ctx, f, opts.Delimiter)
		} else {
			recs, err = ReadJSON(ctx, f)
		}
	default:
		return nil, eris.Errorf("source: unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("source: read input",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("rows", len(recs)),
	)
	return recs, nil
}
