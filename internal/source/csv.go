package source

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/model"
)

// DefaultDelimiter separates fields in the processed CSV tables.
const DefaultDelimiter = ';'

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ';'
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV rows, header included, and sends them to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.Comma = DefaultDelimiter
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "source: csv context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "source: csv read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "source: csv context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV reads a delimited table with a header row into raw records.
func ReadCSV(ctx context.Context, r io.Reader, delimiter rune) ([]model.RawRecord, error) {
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{Delimiter: delimiter, LazyQuotes: true, TrimSpace: true})
	return collect(rowCh, errCh)
}
