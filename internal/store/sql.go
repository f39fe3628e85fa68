package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/model"
)

// insertSQL builds a positional-placeholder insert for SQLite.
func insertSQL(table string, columns []string, verb string) string {
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, table, strings.Join(columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
	)
}

// decodeRunJSON fills the JSON-encoded columns of a run. Nil summary or
// error bytes leave the corresponding field nil.
func decodeRunJSON(r *model.Run, params, summary, runErr []byte) error {
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return eris.Wrap(err, "store: unmarshal params")
	}
	if summary != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return eris.Wrap(err, "store: unmarshal summary")
		}
	}
	if runErr != nil {
		r.Error = &model.RunError{}
		if err := json.Unmarshal(runErr, r.Error); err != nil {
			return eris.Wrap(err, "store: unmarshal run error")
		}
	}
	return nil
}
