package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using the PostgreSQL COPY protocol.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// CopyBatches splits rows into batches of at most size rows and copies each
// in turn, so one run's records never build a single oversized COPY.
func CopyBatches(ctx context.Context, pool Pool, table string, columns []string, rows [][]any, size int) (int64, error) {
	if size <= 0 {
		size = len(rows)
	}
	var total int64
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		n, err := CopyFrom(ctx, pool, table, columns, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// identifier splits a schema-qualified name like "feedcurve.runs".
func identifier(table string) pgx.Identifier {
	if schema, name, ok := cutTable(table); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
