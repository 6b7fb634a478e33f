package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vesaa/pagepulse/internal/metrics"
)

var (
	currentDesc = prometheus.NewDesc("pagepulse_metric_current",
		"Most recent sample of a performance metric.", []string{"metric", "unit"}, nil)
	averageDesc = prometheus.NewDesc("pagepulse_metric_average",
		"Mean over the retained window of a performance metric.", []string{"metric", "unit"}, nil)
	minDesc = prometheus.NewDesc("pagepulse_metric_min",
		"Minimum over the retained window of a performance metric.", []string{"metric", "unit"}, nil)
	maxDesc = prometheus.NewDesc("pagepulse_metric_max",
		"Maximum over the retained window of a performance metric.", []string{"metric", "unit"}, nil)
	samplesDesc = prometheus.NewDesc("pagepulse_metric_samples",
		"Retained sample count of a performance metric.", []string{"metric"}, nil)
)

// storeCollector publishes a fresh snapshot on every scrape.
type storeCollector struct {
	store *metrics.Store
}

// Collector returns a prometheus collector over the engine's store.
func (e *Engine) Collector() prometheus.Collector {
	return &storeCollector{store: e.store}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- currentDesc
	ch <- averageDesc
	ch <- minDesc
	ch <- maxDesc
	ch <- samplesDesc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.store.Snapshot()
	for _, name := range snap.Names() {
		st := snap[name]
		ch <- prometheus.MustNewConstMetric(currentDesc, prometheus.GaugeValue, st.Current, name, st.Unit)
		ch <- prometheus.MustNewConstMetric(averageDesc, prometheus.GaugeValue, st.Average, name, st.Unit)
		ch <- prometheus.MustNewConstMetric(minDesc, prometheus.GaugeValue, st.Min, name, st.Unit)
		ch <- prometheus.MustNewConstMetric(maxDesc, prometheus.GaugeValue, st.Max, name, st.Unit)
		ch <- prometheus.MustNewConstMetric(samplesDesc, prometheus.GaugeValue, float64(st.SampleCount), name)
	}
}
