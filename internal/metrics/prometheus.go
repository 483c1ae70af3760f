package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const promNamespace = "pulsebench"

// PrometheusCollector exposes a Registry to a Prometheus scrape. Metric
// names are only known at run time, so it registers as an unchecked
// collector.
type PrometheusCollector struct {
	reg *Registry
}

// NewPrometheusCollector wraps reg.
func NewPrometheusCollector(reg *Registry) *PrometheusCollector {
	return &PrometheusCollector{reg: reg}
}

// Describe sends nothing, marking the collector as unchecked.
func (c *PrometheusCollector) Describe(chan<- *prometheus.Desc) {}

// Collect emits one sample per registered metric. Trends become summaries
// built from the live histograms.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	c.reg.Each(func(m Metric) {
		name := prometheus.BuildFQName(promNamespace, "", m.Name())
		switch v := m.(type) {
		case *Counter:
			desc := prometheus.NewDesc(name+"_total", "Counter "+m.Name(), nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v.Value()))
		case *Rate:
			hits, total := v.Value()
			ratio := 0.0
			if total > 0 {
				ratio = float64(hits) / float64(total)
			}
			desc := prometheus.NewDesc(name+"_ratio", "Rate "+m.Name(), nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, ratio)
		case *Gauge:
			cur, _ := v.Value()
			desc := prometheus.NewDesc(name, "Gauge "+m.Name(), nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(cur))
		case *Trend:
			live := v.Live()
			desc := prometheus.NewDesc(name+"_milliseconds", "Trend "+m.Name(), nil, nil)
			quantiles := map[float64]float64{
				0.5:  live.P50,
				0.9:  live.P90,
				0.95: live.P95,
				0.99: live.P99,
			}
			ch <- prometheus.MustNewConstSummary(desc, uint64(live.Count), live.Mean*float64(live.Count), quantiles)
		}
	})
}
