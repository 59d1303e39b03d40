package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PrecisionRule keeps adding trials to a row until the confidence interval
// of Metric is narrow enough relative to its mean.
type PrecisionRule struct {
	Metric string `yaml:"metric"`
	// MinSamples is the number of samples required before checking.
	MinSamples int `yaml:"min_samples"`
	// Confidence level of the interval, e.g. 0.95.
	Confidence float64 `yaml:"confidence"`
	// Precision is the target half width relative to |mean|.
	Precision float64 `yaml:"precision"`
	// MaxTrials caps the trials of one row.
	MaxTrials int `yaml:"max_trials"`
}

// DefaultPrecisionRule returns the rule with 100 samples minimum, 95%
// confidence and 5% relative precision.
func DefaultPrecisionRule(metric string) PrecisionRule {
	return PrecisionRule{Metric: metric, MinSamples: 100, Confidence: 0.95, Precision: 0.05, MaxTrials: 10000}
}

// fillDefaults sets every zero field from DefaultPrecisionRule.
func (p *PrecisionRule) fillDefaults() {
	def := DefaultPrecisionRule(p.Metric)
	if p.MinSamples == 0 {
		p.MinSamples = def.MinSamples
	}
	if p.Confidence == 0 {
		p.Confidence = def.Confidence
	}
	if p.Precision == 0 {
		p.Precision = def.Precision
	}
	if p.MaxTrials == 0 {
		p.MaxTrials = max(def.MaxTrials, p.MinSamples)
	}
}

// Validate checks the rule.
func (p *PrecisionRule) Validate() error {
	if p.Metric == "" {
		return fmt.Errorf("precision: metric is required")
	}
	if p.MinSamples < 2 {
		return fmt.Errorf("precision: min_samples must be >= 2, got %d", p.MinSamples)
	}
	if p.Confidence <= 0 || p.Confidence >= 1 || math.IsNaN(p.Confidence) {
		return fmt.Errorf("precision: confidence must be in (0, 1), got %v", p.Confidence)
	}
	if err := validateFinitePositive("precision.precision", p.Precision); err != nil {
		return err
	}
	if p.MaxTrials < p.MinSamples {
		return fmt.Errorf("precision: max_trials (%d) must be >= min_samples (%d)", p.MaxTrials, p.MinSamples)
	}
	return nil
}

// Satisfied reports whether agg meets the rule.
func (p *PrecisionRule) Satisfied(agg *Aggregator) bool {
	if agg.Count(p.Metric) < p.MinSamples {
		return false
	}
	mean := agg.Mean(p.Metric)
	hw := agg.HalfWidth(p.Metric, p.Confidence)
	if mean == 0 {
		return hw == 0
	}
	return hw <= p.Precision*math.Abs(mean)
}

// Pool runs the trials of each row on a bounded number of goroutines.
type Pool struct {
	// Workers bounds concurrent tasks; values below 1 mean 1.
	Workers int
	// Trials is the batch size per row.
	Trials int
	// Precision, when set, keeps scheduling batches until it is satisfied
	// or MaxTrials is reached.
	Precision *PrecisionRule
}

// RunExperiment processes rows until Load reports ErrNoRows. The first task
// error cancels the remaining tasks of the row and is returned.
func RunExperiment[D, R any](ctx context.Context, p *Pool, d Driver[D, R]) (int, error) {
	if p.Trials < 1 {
		return 0, fmt.Errorf("pool: trials must be >= 1, got %d", p.Trials)
	}
	rows := 0
	for row := 0; ; row++ {
		data, err := d.Load(row)
		if errors.Is(err, ErrNoRows) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("loading row %d: %w", row, err)
		}
		agg := NewAggregator(prometheus.Labels{"row": strconv.Itoa(row)})
		trials, err := runRow(ctx, p, d, data, agg)
		if err != nil {
			return rows, fmt.Errorf("row %d: %w", row, err)
		}
		logrus.Infof("row %d done after %d trials", row, trials)
		if err := d.Output(row, agg); err != nil {
			return rows, fmt.Errorf("output of row %d: %w", row, err)
		}
		rows++
	}
}

// runRow runs batches of trials for one row and returns how many ran.
func runRow[D, R any](ctx context.Context, p *Pool, d Driver[D, R], data D, agg *Aggregator) (int, error) {
	limit := p.Trials
	if p.Precision != nil {
		limit = max(p.Precision.MaxTrials, p.Trials)
	}
	done := 0
	for done < limit {
		batch := min(p.Trials, limit-done)
		if err := runBatch(ctx, p.Workers, d, data, agg, done, batch); err != nil {
			return done, err
		}
		done += batch
		if p.Precision == nil || p.Precision.Satisfied(agg) {
			return done, nil
		}
	}
	logrus.Warnf("precision target for %q not reached after %d trials (half width %.4g, mean %.4g)",
		p.Precision.Metric, done, agg.HalfWidth(p.Precision.Metric, p.Precision.Confidence), agg.Mean(p.Precision.Metric))
	return done, nil
}

func runBatch[D, R any](ctx context.Context, workers int, d Driver[D, R], data D, agg *Aggregator, first, n int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for id := first; id < first+n; id++ {
		task := d.CreateTask(id, data)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := task.Run(ctx)
			if err != nil {
				return fmt.Errorf("trial %d: %w", id, err)
			}
			d.Aggregate(agg, result)
			return nil
		})
	}
	return g.Wait()
}
