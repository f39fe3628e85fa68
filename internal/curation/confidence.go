package curation

import (
	"database/sql"

	"github.com/sells-group/feedcurve/internal/model"
)

// Drop reasons reported by FilterConfidence.
const (
	DropLowConfidence       = "low_confidence"
	DropUndefinedConfidence = "undefined_confidence"
)

// FilterConfidence keeps lots whose confidence level is defined and at least
// threshold. Running it on records that were never scored is an ordering bug
// and returns ErrNotScored. Applying it twice gives the same result as once.
func FilterConfidence(recs []model.Record, threshold float64) ([]model.Record, model.StageReport, error) {
	report := newReport(StageConfidence, recs)

	levels := make(map[model.LotKey]sql.NullFloat64)
	sizes := make(map[model.LotKey]int)
	for _, r := range recs {
		if !r.Scored {
			return nil, report, ErrNotScored
		}
		if _, ok := levels[r.Lot]; !ok {
			levels[r.Lot] = r.ConfidenceLevel
		}
		sizes[r.Lot]++
	}

	keep := make(map[model.LotKey]bool, len(levels))
	for lot, level := range levels {
		switch {
		case !level.Valid:
			report.Dropped[DropUndefinedConfidence] += sizes[lot]
		case level.Float64 < threshold:
			report.Dropped[DropLowConfidence] += sizes[lot]
		default:
			keep[lot] = true
		}
	}

	out := keepLots(recs, keep)
	finishReport(&report, out)
	logReport(report)
	return out, report, nil
}
