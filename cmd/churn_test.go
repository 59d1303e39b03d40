package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunChurn_YaoModeAvailabilityInRange(t *testing.T) {
	// GIVEN 50 nodes under the heavy-tailed Yao mode
	o := churnOptions{Nodes: 50, Mode: "H", Horizon: 200, BurnIn: 20, SamplePeriod: 1, Seed: 9}

	// WHEN the churn model runs alone
	r, err := runChurn(o)
	require.NoError(t, err)

	// THEN availabilities are fractions and nodes did churn
	assert.Equal(t, 50, r.Nodes)
	for name, v := range map[string]float64{"sampled": r.Sampled, "expected": r.Expected, "empirical": r.Empirical} {
		assert.Greater(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	assert.Greater(t, r.Transitions, 0)
}

func TestRunChurn_SameSeedSameReport(t *testing.T) {
	o := churnOptions{Nodes: 20, Mode: "E", Horizon: 100, SamplePeriod: 1, Seed: 5}
	r1, err := runChurn(o)
	require.NoError(t, err)
	r2, err := runChurn(o)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestRunChurn_TraceReplay(t *testing.T) {
	// GIVEN node a up during [0, 10) and node b up during [0, 5)
	path := filepath.Join(t.TempDir(), "nodes.avt")
	require.NoError(t, os.WriteFile(path, []byte("a 1 0 9\nb 1 0 4\n"), 0o644))

	// WHEN replayed until 20 with one sample per time unit
	r, err := runChurn(churnOptions{AVTFile: path, Horizon: 20, SamplePeriod: 1})
	require.NoError(t, err)

	// THEN samples at 0..20 see 2 live nodes five times, 1 five times, then 0
	assert.Equal(t, 2, r.Nodes)
	assert.InDelta(t, 7.5/21, r.Sampled, 1e-12)
	assert.InDelta(t, (0.5+0.25)/2, r.Empirical, 1e-12)
	assert.Equal(t, 0.0, r.Expected)
}

func TestRunChurn_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		o    churnOptions
	}{
		{"horizon before burn-in", churnOptions{Nodes: 5, Mode: "H", Horizon: 10, BurnIn: 10, SamplePeriod: 1}},
		{"zero sample period", churnOptions{Nodes: 5, Mode: "H", Horizon: 10}},
		{"no nodes", churnOptions{Mode: "H", Horizon: 10, SamplePeriod: 1}},
		{"unknown mode", churnOptions{Nodes: 5, Mode: "XX", Horizon: 10, SamplePeriod: 1}},
		{"missing trace", churnOptions{AVTFile: "/nonexistent.avt", Horizon: 10, SamplePeriod: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runChurn(tc.o)
			assert.Error(t, err)
		})
	}
}

func TestPrintChurnReport(t *testing.T) {
	var buf bytes.Buffer
	printChurnReport(&buf, churnReport{Nodes: 3, Sampled: 0.5, Transitions: 7})
	out := buf.String()
	assert.Contains(t, out, "=== Churn Results ===")
	assert.Contains(t, out, "sampled_availability:  0.5000")
	assert.Contains(t, out, "transitions:           7")
}
