package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/model"
)

const namespace = "feedcurve"

// scrapeTimeout bounds the store query made on each scrape.
const scrapeTimeout = 5 * time.Second

// PromCollector exposes run snapshots as Prometheus metrics. Every scrape
// reads the store, so values never go stale.
type PromCollector struct {
	collector     *Collector
	lookbackHours int

	runs         *prometheus.Desc
	failRate     *prometheus.Desc
	rowRetention *prometheus.Desc
	lotRetention *prometheus.Desc
	lotsOut      *prometheus.Desc
	meanR2       *prometheus.Desc
	rowsCurated  *prometheus.Desc
	up           *prometheus.Desc
}

var _ prometheus.Collector = (*PromCollector)(nil)

// NewPromCollector wraps c for registration with a Prometheus registry.
func NewPromCollector(c *Collector, lookbackHours int) *PromCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &PromCollector{
		collector:     c,
		lookbackHours: lookbackHours,
		runs:          desc("runs", "Curation runs in the lookback window by status.", "status"),
		failRate:      desc("run_fail_rate", "Fraction of finished runs that failed."),
		rowRetention:  desc("row_retention_mean", "Mean fraction of input rows retained by completed runs."),
		lotRetention:  desc("lot_retention_mean", "Mean fraction of input lots retained by completed runs."),
		lotsOut:       desc("lots_out_mean", "Mean number of lots in the aggregate table of completed runs."),
		meanR2:        desc("fit_r2_mean", "Mean curve-fit confidence of retained lots across completed runs."),
		rowsCurated:   desc("rows_curated", "Curated rows produced by completed runs."),
		up:            desc("store_up", "Whether the last scrape could read the run store."),
	}
}

func (p *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		p.runs, p.failRate, p.rowRetention, p.lotRetention,
		p.lotsOut, p.meanR2, p.rowsCurated, p.up,
	} {
		ch <- d
	}
}

func (p *PromCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	snap, err := p.collector.Collect(ctx, p.lookbackHours)
	if err != nil {
		zap.L().Warn("monitoring: scrape failed", zap.Error(err))
		ch <- prometheus.MustNewConstMetric(p.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(p.up, prometheus.GaugeValue, 1)

	for status, n := range map[model.RunStatus]int{
		model.RunStatusComplete: snap.RunsComplete,
		model.RunStatusFailed:   snap.RunsFailed,
		model.RunStatusEmpty:    snap.RunsEmpty,
		model.RunStatusRunning:  snap.RunsRunning,
	} {
		ch <- prometheus.MustNewConstMetric(p.runs, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(p.failRate, prometheus.GaugeValue, snap.FailRate)
	ch <- prometheus.MustNewConstMetric(p.rowRetention, prometheus.GaugeValue, snap.MeanRowRetention)
	ch <- prometheus.MustNewConstMetric(p.lotRetention, prometheus.GaugeValue, snap.MeanLotRetention)
	ch <- prometheus.MustNewConstMetric(p.lotsOut, prometheus.GaugeValue, snap.MeanLotsOut)
	ch <- prometheus.MustNewConstMetric(p.meanR2, prometheus.GaugeValue, snap.MeanR2)
	ch <- prometheus.MustNewConstMetric(p.rowsCurated, prometheus.GaugeValue, float64(snap.RowsCurated))
}
