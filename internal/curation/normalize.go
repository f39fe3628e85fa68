package curation

import (
	"cmp"
	"database/sql"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/feedcurve/internal/model"
)

// Drop reasons reported by Normalize.
const (
	DropMalformedEnvironment = "malformed_environment"
	DropMalformedBatch       = "malformed_batch"
	DropMalformedAge         = "malformed_age"
)

// labelFolder compares identifier labels ignoring case and accents, so
// "Aviário 7", "AVIARIO 7" and "aviario 7" strip the same prefix.
type labelFolder struct {
	t transform.Transformer
}

func newLabelFolder() *labelFolder {
	return &labelFolder{t: transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
		cases.Fold(),
	)}
}

func (f *labelFolder) fold(s string) string {
	out, _, err := transform.String(f.t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// foldPrefixes folds prefixes and orders them longest first so "ENVIRONMENT"
// wins over "ENV".
func (f *labelFolder) foldPrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, f.fold(p))
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	return out
}

// parseLabel strips the first matching prefix from label and parses the rest
// as a non-negative integer.
func (f *labelFolder) parseLabel(label string, prefixes []string) (int, bool) {
	s := f.fold(strings.TrimSpace(label))
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	n, ok := parseWhole(s)
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

// integralDecimal matches whole numbers written with a zero fraction, such as "12.0".
var integralDecimal = regexp.MustCompile(`^([+-]?\d+)\.0+$`)

// parseWhole parses an integer, also accepting integral decimals such as
// "12.0". Exponent and fractional forms are rejected.
func parseWhole(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	m := integralDecimal.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseMeasurement coerces a numeric field, accepting a decimal comma.
// Missing or non-numeric values come back invalid.
func parseMeasurement(s string) sql.NullFloat64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullFloat64{}
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func parseFloatOr(s string, def float64) float64 {
	if v := parseMeasurement(s); v.Valid {
		return v.Float64
	}
	return def
}

func parseInt64Or(s string, def int64) int64 {
	if n, ok := parseWhole(s); ok {
		return int64(n)
	}
	return def
}

// Normalize cleans identifier labels, derives the lot key, and types the
// numeric fields. Rows with an unparseable environment, batch, or age are
// dropped and counted; they never fail the run.
func Normalize(raw []model.RawRecord, opts NormalizeOptions) ([]model.Record, model.StageReport) {
	report := model.StageReport{
		Name:    StageNormalize,
		RowsIn:  len(raw),
		Dropped: make(map[string]int),
	}

	folder := newLabelFolder()
	envPrefixes := folder.foldPrefixes(opts.EnvironmentPrefixes)
	batchPrefixes := folder.foldPrefixes(opts.BatchPrefixes)

	rawLots := make(map[string]struct{})
	out := make([]model.Record, 0, len(raw))
	for _, r := range raw {
		rawLots[r.EnvironmentName+"\x00"+r.BatchName] = struct{}{}

		env, ok := folder.parseLabel(r.EnvironmentName, envPrefixes)
		if !ok {
			report.Dropped[DropMalformedEnvironment]++
			continue
		}
		batch, ok := folder.parseLabel(r.BatchName, batchPrefixes)
		if !ok {
			report.Dropped[DropMalformedBatch]++
			continue
		}
		age, ok := parseWhole(r.BatchAge)
		if !ok || age < 0 {
			report.Dropped[DropMalformedAge]++
			continue
		}

		out = append(out, model.Record{
			Lot:         model.NewLotKey(env, batch),
			ClientName:  strings.TrimSpace(r.ClientName),
			BatchAge:    age,
			FeedPerBird: parseMeasurement(r.FeedPerBird),
			Aux: model.Aux{
				PreBatchFeedDelivery:  parseFloatOr(r.PreBatchFeedDelivery, 0),
				FeedDelivery:          parseFloatOr(r.FeedDelivery, 0),
				FeedMeasured:          parseFloatOr(r.FeedMeasured, 0),
				FeedManual:            parseFloatOr(r.FeedManual, 0),
				SiloEmptyTime:         parseInt64Or(r.SiloEmptyTime, 0),
				SiloNoConsumptionTime: parseInt64Or(r.SiloNoConsumptionTime, 0),
			},
		})
	}

	report.GroupsIn = len(rawLots)
	finishReport(&report, out)
	logReport(report)

	if dups := countDuplicateAges(out); dups > 0 {
		zap.L().Warn("curation: duplicate ages within lots are kept and summed",
			zap.Int("duplicate_rows", dups),
		)
	}

	return out, report
}

// countDuplicateAges counts rows that repeat an age already seen in their lot.
func countDuplicateAges(recs []model.Record) int {
	type lotAge struct {
		lot model.LotKey
		age int
	}
	seen := make(map[lotAge]struct{}, len(recs))
	dups := 0
	for _, r := range recs {
		k := lotAge{lot: r.Lot, age: r.BatchAge}
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}
