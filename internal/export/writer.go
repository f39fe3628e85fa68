package export

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/feedcurve/internal/model"
)

// Paths lists the files a run writes. Empty XLSX or Manifest paths are skipped.
type Paths struct {
	Processed  string
	Aggregates string
	XLSX       string
	Manifest   string
}

// NewPaths places output files under dir.
func NewPaths(dir, processed, aggregates string, withXLSX, withManifest bool) Paths {
	p := Paths{
		Processed:  filepath.Join(dir, processed),
		Aggregates: filepath.Join(dir, aggregates),
	}
	if withXLSX {
		p.XLSX = filepath.Join(dir, "curated.xlsx")
	}
	if withManifest {
		p.Manifest = filepath.Join(dir, "manifest.yaml")
	}
	return p
}

// Files returns the non-empty paths in write order.
func (p Paths) Files() []string {
	var out []string
	for _, f := range []string{p.Processed, p.Aggregates, p.XLSX, p.Manifest} {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// WriteAll writes every configured output concurrently. The manifest's
// Outputs field is filled from p.
func WriteAll(ctx context.Context, p Paths, recs []model.Record, aggs []model.AggregateRow, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(p.Processed), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}

	g, gctx := errgroup.WithContext(ctx)
	write := func(name string, fn func() error) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(); err != nil {
				return err
			}
			zap.L().Debug("export: wrote file", zap.String("file", name))
			return nil
		})
	}

	write(p.Processed, func() error { return WriteProcessed(p.Processed, recs) })
	write(p.Aggregates, func() error { return WriteAggregates(p.Aggregates, aggs) })
	if p.XLSX != "" {
		write(p.XLSX, func() error { return WriteXLSX(p.XLSX, recs, aggs) })
	}
	if p.Manifest != "" {
		m.Outputs = p.Files()
		write(p.Manifest, func() error { return WriteManifest(p.Manifest, m) })
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "export: write outputs")
	}
	zap.L().Info("export: outputs written", zap.Strings("files", p.Files()))
	return nil
}
