package churn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution produces sojourn times for a renewal process.
type Distribution interface {
	// Sample returns a duration drawn with rng as the randomness source.
	Sample(rng *rand.Rand) float64
	// Mean returns the expectation, +Inf when it does not exist.
	Mean() float64
}

// Exponential is the memoryless sojourn distribution.
type Exponential struct {
	rate float64
}

// NewExponential creates an exponential distribution with the given rate.
func NewExponential(rate float64) *Exponential { return &Exponential{rate: rate} }

func (d *Exponential) Sample(rng *rand.Rand) float64 {
	return distuv.Exponential{Rate: d.rate, Src: rng}.Rand()
}

func (d *Exponential) Mean() float64 { return 1 / d.rate }

// Pareto is the classic Pareto distribution with support [xm, +Inf).
type Pareto struct {
	xm, alpha float64
}

// NewPareto creates a Pareto distribution with scale xm and shape alpha.
func NewPareto(xm, alpha float64) *Pareto { return &Pareto{xm: xm, alpha: alpha} }

func (d *Pareto) Sample(rng *rand.Rand) float64 {
	return distuv.Pareto{Xm: d.xm, Alpha: d.alpha, Src: rng}.Rand()
}

func (d *Pareto) Mean() float64 {
	return distuv.Pareto{Xm: d.xm, Alpha: d.alpha}.Mean()
}

// GeneralizedPareto is the shifted (Lomax) Pareto distribution with support
// [mu, +Inf): X = beta*(U^(-1/alpha) - 1) + mu.
type GeneralizedPareto struct {
	alpha, beta, mu float64
}

// NewGeneralizedPareto creates a shifted Pareto distribution.
func NewGeneralizedPareto(alpha, beta, mu float64) *GeneralizedPareto {
	return &GeneralizedPareto{alpha: alpha, beta: beta, mu: mu}
}

func (d *GeneralizedPareto) Sample(rng *rand.Rand) float64 {
	return distuv.Pareto{Xm: d.beta, Alpha: d.alpha, Src: rng}.Rand() - d.beta + d.mu
}

func (d *GeneralizedPareto) Mean() float64 {
	if d.alpha <= 1 {
		return math.Inf(1)
	}
	return d.beta/(d.alpha-1) + d.mu
}

// Uniform draws from [min, max).
type Uniform struct {
	min, max float64
}

// NewUniform creates a uniform distribution over [min, max).
func NewUniform(min, max float64) *Uniform { return &Uniform{min: min, max: max} }

func (d *Uniform) Sample(rng *rand.Rand) float64 {
	return distuv.Uniform{Min: d.min, Max: d.max, Src: rng}.Rand()
}

func (d *Uniform) Mean() float64 { return (d.min + d.max) / 2 }

// Constant always returns the same duration.
type Constant struct {
	value float64
}

// NewConstant creates a degenerate distribution.
func NewConstant(value float64) *Constant { return &Constant{value: value} }

func (d *Constant) Sample(_ *rand.Rand) float64 { return d.value }

func (d *Constant) Mean() float64 { return d.value }

// Infinite never ends the current sojourn. Processes whose up distribution
// is Infinite stay up forever once they come up.
type Infinite struct{}

func (Infinite) Sample(_ *rand.Rand) float64 { return math.Inf(1) }

func (Infinite) Mean() float64 { return math.Inf(1) }

// LowerTruncatedExponential is an exponential distribution conditioned on
// being at least floor.
type LowerTruncatedExponential struct {
	rate, floor float64
}

// NewLowerTruncatedExponential creates a lower-truncated exponential.
func NewLowerTruncatedExponential(rate, floor float64) *LowerTruncatedExponential {
	return &LowerTruncatedExponential{rate: rate, floor: floor}
}

// Sample uses memorylessness: X | X >= floor has the law of floor + X.
func (d *LowerTruncatedExponential) Sample(rng *rand.Rand) float64 {
	return d.floor + distuv.Exponential{Rate: d.rate, Src: rng}.Rand()
}

func (d *LowerTruncatedExponential) Mean() float64 { return d.floor + 1/d.rate }

// Empirical samples from a value table using inverse CDF via binary search.
type Empirical struct {
	values []float64 // sorted
	cdf    []float64
	mean   float64
}

// NewEmpirical creates a distribution from a PDF map (value -> weight).
// Weights are normalized; non-positive weights are skipped.
func NewEmpirical(pdf map[float64]float64) *Empirical {
	keys := make([]float64, 0, len(pdf))
	for k := range pdf {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	total := 0.0
	for _, k := range keys {
		if pdf[k] > 0 {
			total += pdf[k]
		}
	}

	e := &Empirical{}
	cumulative := 0.0
	for _, k := range keys {
		p := pdf[k]
		if p <= 0 {
			continue
		}
		cumulative += p / total
		e.values = append(e.values, k)
		e.cdf = append(e.cdf, cumulative)
		e.mean += k * p / total
	}
	if len(e.cdf) > 0 {
		e.cdf[len(e.cdf)-1] = 1.0
	}
	return e
}

// NewEmpiricalFromSamples weights every observed sample equally.
func NewEmpiricalFromSamples(samples []float64) *Empirical {
	pdf := make(map[float64]float64, len(samples))
	for _, s := range samples {
		pdf[s]++
	}
	return NewEmpirical(pdf)
}

func (d *Empirical) Sample(rng *rand.Rand) float64 {
	if len(d.values) == 0 {
		return 0
	}
	if len(d.values) == 1 {
		return d.values[0]
	}
	idx := sort.SearchFloat64s(d.cdf, rng.Float64())
	if idx >= len(d.values) {
		idx = len(d.values) - 1
	}
	return d.values[idx]
}

func (d *Empirical) Mean() float64 { return d.mean }

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// rateOf accepts either "rate" or "mean" for exponential families.
func rateOf(params map[string]float64) (float64, error) {
	if r, ok := params["rate"]; ok {
		return r, validateFinitePositive("rate", r)
	}
	if m, ok := params["mean"]; ok {
		if err := validateFinitePositive("mean", m); err != nil {
			return 0, err
		}
		return 1 / m, nil
	}
	return 0, fmt.Errorf("distribution requires parameter %q or %q", "rate", "mean")
}

// NewDistribution creates a Distribution from a DistSpec.
func NewDistribution(spec DistSpec) (Distribution, error) {
	p := spec.Params
	switch spec.Type {
	case "exponential":
		rate, err := rateOf(p)
		if err != nil {
			return nil, err
		}
		return NewExponential(rate), nil

	case "lt_exponential":
		rate, err := rateOf(p)
		if err != nil {
			return nil, err
		}
		if err := requireParam(p, "floor"); err != nil {
			return nil, err
		}
		if p["floor"] < 0 {
			return nil, fmt.Errorf("floor must be non-negative, got %f", p["floor"])
		}
		return NewLowerTruncatedExponential(rate, p["floor"]), nil

	case "pareto":
		if err := requireParam(p, "xm", "alpha"); err != nil {
			return nil, err
		}
		if err := validateFinitePositive("xm", p["xm"]); err != nil {
			return nil, err
		}
		if err := validateFinitePositive("alpha", p["alpha"]); err != nil {
			return nil, err
		}
		return NewPareto(p["xm"], p["alpha"]), nil

	case "generalized_pareto":
		if err := requireParam(p, "alpha", "beta"); err != nil {
			return nil, err
		}
		if err := validateFinitePositive("alpha", p["alpha"]); err != nil {
			return nil, err
		}
		if err := validateFinitePositive("beta", p["beta"]); err != nil {
			return nil, err
		}
		if p["mu"] < 0 {
			return nil, fmt.Errorf("mu must be non-negative, got %f", p["mu"])
		}
		return NewGeneralizedPareto(p["alpha"], p["beta"], p["mu"]), nil

	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["min"] <= 0 || p["max"] <= p["min"] {
			return nil, fmt.Errorf("uniform requires 0 < min < max, got [%f, %f)", p["min"], p["max"])
		}
		return NewUniform(p["min"], p["max"]), nil

	case "constant":
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		if err := validateFinitePositive("value", p["value"]); err != nil {
			return nil, err
		}
		return NewConstant(p["value"]), nil

	case "infinite":
		return Infinite{}, nil

	case "empirical":
		if spec.File == "" {
			return nil, fmt.Errorf("empirical distribution requires a file")
		}
		samples, err := LoadSamples(spec.File)
		if err != nil {
			return nil, err
		}
		return NewEmpiricalFromSamples(samples), nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
