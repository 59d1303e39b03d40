package churn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/gossip-sim/sim"
)

func TestYaoMode_CaseInsensitiveLookup(t *testing.T) {
	for _, name := range []string{"h", "VH", "e", "Te", "lte"} {
		m, err := YaoMode(name)
		require.NoError(t, err, name)
		assert.NotNil(t, m.Uptime)
		assert.NotNil(t, m.Downtime)
	}
	assert.Equal(t, []string{"E", "H", "LTE", "TE", "VH"}, YaoModeNames())
}

func TestYaoMode_UnknownIsConfigurationError(t *testing.T) {
	_, err := YaoMode("XX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XX")

	_, err = NewYaoSet(10, "XX", newRNG(1))
	assert.Error(t, err)
}

func TestYaoMode_MeansScaleWithNodeAverages(t *testing.T) {
	// Heavy-tailed mode uses beta = 2*li with alpha = 3, so E[up] = li.
	h, err := YaoMode("H")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, h.Uptime(0.7).Mean(), 1e-12)
	assert.InDelta(t, 1.3, h.Downtime(1.3).Mean(), 1e-12)

	te, err := YaoMode("TE")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, te.Uptime(2.0).Mean(), 1e-12)

	lte, err := YaoMode("LTE")
	require.NoError(t, err)
	assert.InDelta(t, 1.0+5.0/3600, lte.Uptime(1.0).Mean(), 1e-12)
}

func TestYaoAverages_MeansMatchShiftedPareto(t *testing.T) {
	gen := YaoAverages()
	rng := newRNG(17)
	n := 200000
	sumLi, sumDi := 0.0, 0.0
	for i := 0; i < n; i++ {
		li, di := gen.Next(rng)
		sumLi += li
		sumDi += di
	}
	// shifted Pareto(alpha=3, beta) has mean beta/2
	assert.InDelta(t, 0.5, sumLi/float64(n), 0.02)
	assert.InDelta(t, 1.0, sumDi/float64(n), 0.04)
	assert.Equal(t, "yao", gen.Name())
}

func TestNewYaoSet_ProcessesStartUpAndChurn(t *testing.T) {
	// GIVEN a yao TE system of 50 nodes
	ps, err := NewYaoSet(50, "TE", newRNG(23))
	require.NoError(t, err)
	s := sim.NewSimulator(sim.Config{Horizon: 50})

	// WHEN it starts
	ps.Start(s)

	// THEN every node starts up and transitions happen afterwards
	assert.Equal(t, 50, ps.Live())
	s.Run()
	assert.Greater(t, s.Dispatched(), uint64(50))
	assert.Less(t, ps.Live(), 50)
}

func TestNewHomogeneousSet(t *testing.T) {
	ps := NewHomogeneousSet(3, NewConstant(1), NewConstant(2), Down, nil)
	s := sim.NewSimulator(sim.Config{})
	ps.Start(s)
	assert.Equal(t, 0, ps.Live())
	s.Step(3)
	assert.Equal(t, 3, ps.Live())
}
