package experiment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver has rows rows; trial id yields value(id).
type fakeDriver struct {
	rows    int
	value   func(id int) float64
	failID  int
	loadErr error
	created map[int][]int
	outputs map[int]int
}

var errTrial = errors.New("trial failed")

func newFakeDriver(rows int, value func(int) float64) *fakeDriver {
	return &fakeDriver{rows: rows, value: value, failID: -1, created: map[int][]int{}, outputs: map[int]int{}}
}

func (f *fakeDriver) Load(row int) (int, error) {
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	if row >= f.rows {
		return 0, ErrNoRows
	}
	return row, nil
}

func (f *fakeDriver) CreateTask(id int, row int) Task[float64] {
	f.created[row] = append(f.created[row], id)
	return TaskFunc[float64](func(ctx context.Context) (float64, error) {
		if id == f.failID {
			return 0, errTrial
		}
		return f.value(id), nil
	})
}

func (f *fakeDriver) Aggregate(agg *Aggregator, v float64) { agg.Add("v", v) }

func (f *fakeDriver) Output(row int, agg *Aggregator) error {
	f.outputs[row] = agg.Count("v")
	return nil
}

func constant(v float64) func(int) float64 { return func(int) float64 { return v } }

func TestRunExperiment_FixedTrialsPerRow(t *testing.T) {
	// GIVEN 3 rows and 7 trials each
	d := newFakeDriver(3, constant(1))
	p := &Pool{Workers: 4, Trials: 7}

	// WHEN the experiment runs
	rows, err := RunExperiment[int, float64](context.Background(), p, d)

	// THEN every row ran trial ids 0..6 and output 7 samples
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	for row := 0; row < 3; row++ {
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, d.created[row])
		assert.Equal(t, 7, d.outputs[row])
	}
}

func TestRunExperiment_NoRows(t *testing.T) {
	rows, err := RunExperiment[int, float64](context.Background(), &Pool{Trials: 1}, newFakeDriver(0, constant(1)))
	require.NoError(t, err)
	assert.Equal(t, 0, rows)
}

func TestRunExperiment_InvalidTrials(t *testing.T) {
	_, err := RunExperiment[int, float64](context.Background(), &Pool{Trials: 0}, newFakeDriver(1, constant(1)))
	assert.Error(t, err)
}

func TestRunExperiment_TaskErrorStopsTheRow(t *testing.T) {
	// GIVEN trial 3 of every row fails
	d := newFakeDriver(2, constant(1))
	d.failID = 3

	// WHEN the experiment runs
	rows, err := RunExperiment[int, float64](context.Background(), &Pool{Workers: 2, Trials: 5}, d)

	// THEN the error surfaces before any row is output
	require.Error(t, err)
	assert.ErrorIs(t, err, errTrial)
	assert.Contains(t, err.Error(), "trial 3")
	assert.Equal(t, 0, rows)
	assert.Empty(t, d.outputs)
}

func TestRunExperiment_LoadErrorIsWrapped(t *testing.T) {
	d := newFakeDriver(2, constant(1))
	d.loadErr = fmt.Errorf("bad row")
	_, err := RunExperiment[int, float64](context.Background(), &Pool{Trials: 1}, d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading row 0")
}

func TestRunExperiment_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunExperiment[int, float64](ctx, &Pool{Workers: 1, Trials: 3}, newFakeDriver(1, constant(1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunExperiment_PrecisionStopsOnceSatisfied(t *testing.T) {
	// GIVEN a constant metric, so the interval collapses as soon as enough
	// samples exist
	d := newFakeDriver(1, constant(1))
	rule := &PrecisionRule{Metric: "v", MinSamples: 20, Confidence: 0.95, Precision: 0.05, MaxTrials: 100}
	p := &Pool{Workers: 3, Trials: 10, Precision: rule}

	// WHEN the row runs
	_, err := RunExperiment[int, float64](context.Background(), p, d)

	// THEN it stops after the second batch
	require.NoError(t, err)
	assert.Equal(t, 20, d.outputs[0])
}

func TestRunExperiment_PrecisionCappedByMaxTrials(t *testing.T) {
	// GIVEN a metric alternating 0 and 1, far too noisy for 5% precision
	d := newFakeDriver(1, func(id int) float64 { return float64(id % 2) })
	rule := &PrecisionRule{Metric: "v", MinSamples: 10, Confidence: 0.95, Precision: 0.05, MaxTrials: 100}
	p := &Pool{Workers: 3, Trials: 30, Precision: rule}

	// WHEN the row runs
	_, err := RunExperiment[int, float64](context.Background(), p, d)

	// THEN it stops at MaxTrials with a short last batch
	require.NoError(t, err)
	assert.Equal(t, 100, d.outputs[0])
	assert.Len(t, d.created[0], 100)
	assert.Equal(t, 99, d.created[0][99])
}

func TestPrecisionRule_Validate(t *testing.T) {
	def := DefaultPrecisionRule("e2e_delay")
	assert.NoError(t, def.Validate())

	tests := []struct {
		name   string
		mutate func(*PrecisionRule)
	}{
		{"no metric", func(r *PrecisionRule) { r.Metric = "" }},
		{"one sample", func(r *PrecisionRule) { r.MinSamples = 1 }},
		{"confidence 1", func(r *PrecisionRule) { r.Confidence = 1 }},
		{"zero precision", func(r *PrecisionRule) { r.Precision = 0 }},
		{"max below min", func(r *PrecisionRule) { r.MaxTrials = 50 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := DefaultPrecisionRule("x")
			tc.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestPrecisionRule_ZeroMeanNeedsZeroWidth(t *testing.T) {
	rule := &PrecisionRule{Metric: "v", MinSamples: 2, Confidence: 0.95, Precision: 0.05, MaxTrials: 10}
	agg := NewAggregator(nil)
	agg.Add("v", 0)
	agg.Add("v", 0)
	assert.True(t, rule.Satisfied(agg))

	agg.Add("v", 1)
	agg.Add("v", -1)
	assert.False(t, rule.Satisfied(agg))
}
