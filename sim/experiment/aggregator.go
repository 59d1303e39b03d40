package experiment

import (
	"math"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Aggregator accumulates per-metric samples from many runs. It is the only
// state shared between workers and is safe for concurrent use.
//
// It implements prometheus.Collector: each metric is exported as the
// experiment_metric gauge with one series per statistic.
type Aggregator struct {
	mu      sync.Mutex
	samples map[string][]float64
	desc    *prometheus.Desc
}

// NewAggregator creates an empty aggregator. labels are attached to every
// exported series, typically the experiment row.
func NewAggregator(labels prometheus.Labels) *Aggregator {
	return &Aggregator{
		samples: make(map[string][]float64),
		desc: prometheus.NewDesc(
			"gossip_sim_experiment_metric",
			"Aggregated per-run experiment metric.",
			[]string{"metric", "stat"},
			labels,
		),
	}
}

// Add records one sample of metric name. NaN samples are dropped.
func (a *Aggregator) Add(name string, v float64) {
	if math.IsNaN(v) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples[name] = append(a.samples[name], v)
}

// Count returns how many samples name has.
func (a *Aggregator) Count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples[name])
}

// Mean returns the sample mean of name, NaN without samples.
func (a *Aggregator) Mean(name string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	xs := a.samples[name]
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample standard deviation of name, zero with fewer
// than two samples.
func (a *Aggregator) StdDev(name string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return stdDev(a.samples[name])
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// HalfWidth returns the half width of the Student-t confidence interval of
// the mean of name. +Inf with fewer than two samples.
func (a *Aggregator) HalfWidth(name string, confidence float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return halfWidth(a.samples[name], confidence)
}

func halfWidth(xs []float64, confidence float64) float64 {
	n := len(xs)
	if n < 2 {
		return math.Inf(1)
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	q := t.Quantile(1 - (1-confidence)/2)
	return q * stdDev(xs) / math.Sqrt(float64(n))
}

// Names returns the sorted metric names.
func (a *Aggregator) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.samples))
	for n := range a.samples {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe implements prometheus.Collector.
func (a *Aggregator) Describe(ch chan<- *prometheus.Desc) { ch <- a.desc }

// Collect implements prometheus.Collector.
func (a *Aggregator) Collect(ch chan<- prometheus.Metric) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, xs := range a.samples {
		if len(xs) == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(a.desc, prometheus.GaugeValue, stat.Mean(xs, nil), name, "mean")
		ch <- prometheus.MustNewConstMetric(a.desc, prometheus.GaugeValue, stdDev(xs), name, "stddev")
		ch <- prometheus.MustNewConstMetric(a.desc, prometheus.GaugeValue, float64(len(xs)), name, "count")
	}
}
