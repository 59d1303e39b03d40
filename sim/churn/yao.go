package churn

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
)

// Yao et al. heterogeneous churn presets. Each node gets its own mean uptime
// li and mean downtime di, drawn once from shifted Pareto distributions, and a
// system mode turns (li, di) into the node's sojourn distributions.

const (
	yaoAlpha        = 3.0
	yaoBetaUptime   = 1.0
	yaoBetaDowntime = 2.0

	// ltFloor is the LTE truncation point: five seconds expressed in hours.
	ltFloor = 5.0 / 3600
)

// AverageGenerator draws per-node mean uptimes and downtimes.
type AverageGenerator struct {
	name     string
	uptime   Distribution
	downtime Distribution
}

// YaoAverages returns the "yao" average generator.
func YaoAverages() *AverageGenerator {
	return &AverageGenerator{
		name:     "yao",
		uptime:   NewGeneralizedPareto(yaoAlpha, yaoBetaUptime, 0),
		downtime: NewGeneralizedPareto(yaoAlpha, yaoBetaDowntime, 0),
	}
}

// Name returns the generator identifier.
func (g *AverageGenerator) Name() string { return g.name }

// Next draws one (li, di) pair.
func (g *AverageGenerator) Next(rng *rand.Rand) (li, di float64) {
	return g.uptime.Sample(rng), g.downtime.Sample(rng)
}

// Mode maps per-node averages to sojourn distributions.
type Mode struct {
	Name     string
	Uptime   func(li float64) Distribution
	Downtime func(di float64) Distribution
}

// dualPareto scales both Pareto distributions by beta times the node average.
func dualPareto(name string, alphaUp, alphaDown, betaUp, betaDown float64) Mode {
	return Mode{
		Name:     name,
		Uptime:   func(li float64) Distribution { return NewGeneralizedPareto(alphaUp, betaUp*li, 0) },
		Downtime: func(di float64) Distribution { return NewGeneralizedPareto(alphaDown, betaDown*di, 0) },
	}
}

var yaoModes = map[string]Mode{
	"H":  dualPareto("H", 3.0, 3.0, 2.0, 2.0),
	"VH": dualPareto("VH", 1.5, 1.5, 2.0, 2.0),
	"E": {
		Name:     "E",
		Uptime:   func(li float64) Distribution { return NewExponential(1 / li) },
		Downtime: func(di float64) Distribution { return NewGeneralizedPareto(3.0, 2.0*di, 0) },
	},
	"TE": {
		Name:     "TE",
		Uptime:   func(li float64) Distribution { return NewExponential(1 / li) },
		Downtime: func(di float64) Distribution { return NewExponential(1 / di) },
	},
	"LTE": {
		Name:     "LTE",
		Uptime:   func(li float64) Distribution { return NewLowerTruncatedExponential(1/li, ltFloor) },
		Downtime: func(di float64) Distribution { return NewLowerTruncatedExponential(1/di, ltFloor) },
	},
}

// YaoModeNames lists the known modes in sorted order.
func YaoModeNames() []string {
	names := make([]string, 0, len(yaoModes))
	for n := range yaoModes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// YaoMode looks up a mode by case-insensitive name.
func YaoMode(name string) (Mode, error) {
	m, ok := yaoModes[strings.ToUpper(name)]
	if !ok {
		return Mode{}, fmt.Errorf("unknown churn mode %q; valid: %s", name, strings.Join(YaoModeNames(), ", "))
	}
	return m, nil
}

// NewYaoSet builds n renewal processes with per-node averages drawn from the
// yao generator. Every process starts up.
func NewYaoSet(n int, mode string, rng *rand.Rand) (*ProcessSet, error) {
	m, err := YaoMode(mode)
	if err != nil {
		return nil, err
	}
	gen := YaoAverages()
	procs := make([]Process, n)
	for i := range procs {
		li, di := gen.Next(rng)
		procs[i] = NewRenewalProcess(i, m.Uptime(li), m.Downtime(di), Up, rng)
	}
	return NewProcessSet(procs), nil
}

// NewHomogeneousSet builds n renewal processes sharing the same distributions.
func NewHomogeneousSet(n int, up, down Distribution, initial State, rng *rand.Rand) *ProcessSet {
	procs := make([]Process, n)
	for i := range procs {
		procs[i] = NewRenewalProcess(i, up, down, initial, rng)
	}
	return NewProcessSet(procs)
}
