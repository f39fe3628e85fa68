package source

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/model"
)

type field int

const (
	fieldEnvironment field = iota
	fieldBatch
	fieldAge
	fieldFeedPerBird
	fieldClient
	fieldPreBatchDelivery
	fieldDelivery
	fieldMeasured
	fieldManual
	fieldSiloEmpty
	fieldSiloNoConsumption
	numFields
)

// columnAliases lists accepted header names per field, compared after normalizeCol.
var columnAliases = [numFields][]string{
	fieldEnvironment:       {"environmentName", "environmentId", "environment"},
	fieldBatch:             {"batchName", "batchId", "batch"},
	fieldAge:               {"batchAge", "age"},
	fieldFeedPerBird:       {"feed_measuredPerBird", "feedPerBird"},
	fieldClient:            {"clientName", "client"},
	fieldPreBatchDelivery:  {"preBatch_feedDelivery_measured", "preBatchFeedDelivery"},
	fieldDelivery:          {"feedDelivery_measured", "feedDelivery"},
	fieldMeasured:          {"feed_measured", "feedMeasured"},
	fieldManual:            {"feed_manual_measured", "feedManual"},
	fieldSiloEmpty:         {"siloEmptyTime"},
	fieldSiloNoConsumption: {"siloNoConsumptionTime"},
}

var requiredFields = []field{fieldEnvironment, fieldBatch, fieldAge, fieldFeedPerBird}

// headerSeparators are dropped before headers are compared.
var headerSeparators = strings.NewReplacer("_", "", "-", "", " ", "")

// normalizeCol lowercases a header and drops separators, so "feed_per_bird",
// "Feed Per Bird" and "feedPerBird" all match.
func normalizeCol(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	return strings.ToLower(headerSeparators.Replace(s))
}

var aliasIndex = func() map[string]field {
	m := make(map[string]field)
	for f, aliases := range columnAliases {
		for _, a := range aliases {
			m[normalizeCol(a)] = field(f)
		}
	}
	return m
}()

// columnMap holds the input column position of each field, or -1.
type columnMap [numFields]int

// mapHeader resolves header names to fields. The first column matching a
// field wins.
func mapHeader(header []string) (columnMap, error) {
	var cm columnMap
	for i := range cm {
		cm[i] = -1
	}
	for i, col := range header {
		f, ok := aliasIndex[normalizeCol(col)]
		if ok && cm[f] < 0 {
			cm[f] = i
		}
	}
	var missing []string
	for _, f := range requiredFields {
		if cm[f] < 0 {
			missing = append(missing, columnAliases[f][0])
		}
	}
	if len(missing) > 0 {
		return cm, eris.Wrapf(ErrMissingColumn, "source: %s", strings.Join(missing, ", "))
	}
	return cm, nil
}

func (cm columnMap) get(row []string, f field) string {
	idx := cm[f]
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func (cm columnMap) record(row []string) model.RawRecord {
	return model.RawRecord{
		EnvironmentName:       cm.get(row, fieldEnvironment),
		BatchName:             cm.get(row, fieldBatch),
		BatchAge:              cm.get(row, fieldAge),
		FeedPerBird:           cm.get(row, fieldFeedPerBird),
		ClientName:            cm.get(row, fieldClient),
		PreBatchFeedDelivery:  cm.get(row, fieldPreBatchDelivery),
		FeedDelivery:          cm.get(row, fieldDelivery),
		FeedMeasured:          cm.get(row, fieldMeasured),
		FeedManual:            cm.get(row, fieldManual),
		SiloEmptyTime:         cm.get(row, fieldSiloEmpty),
		SiloNoConsumptionTime: cm.get(row, fieldSiloNoConsumption),
	}
}

// collect drains a row stream, mapping the first row as the header.
func collect(rowCh <-chan []string, errCh <-chan error) ([]model.RawRecord, error) {
	var (
		cm      columnMap
		recs    []model.RawRecord
		seen    bool
		headErr error
	)
	for row := range rowCh {
		if headErr != nil {
			continue
		}
		if !seen {
			seen = true
			cm, headErr = mapHeader(row)
			continue
		}
		if isBlank(row) {
			continue
		}
		recs = append(recs, cm.record(row))
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if headErr != nil {
		return nil, headErr
	}
	if !seen {
		return nil, eris.Wrap(ErrMissingColumn, "source: empty input has no header")
	}
	return recs, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
