package churn

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// DistSpec parameterizes a sojourn-time distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
	File   string             `yaml:"file,omitempty"`
}

// Valid value registries.
var (
	validDistTypes = map[string]bool{
		"exponential": true, "lt_exponential": true, "pareto": true, "generalized_pareto": true,
		"uniform": true, "constant": true, "infinite": true, "empirical": true,
	}
)

// IsValidDistType reports whether name is a recognized distribution type.
func IsValidDistType(name string) bool {
	return validDistTypes[name]
}

// Validate checks the type and that every parameter is finite. Parameter
// presence is checked by NewDistribution.
func (d *DistSpec) Validate(prefix string) error {
	if !validDistTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: exponential, lt_exponential, pareto, generalized_pareto, uniform, constant, infinite, empirical", prefix, d.Type)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	return nil
}

// LoadSamples reads one non-negative sample per line. Blank lines and lines
// starting with '#' are skipped.
func LoadSamples(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	defer f.Close()

	var samples []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: parsing sample: %w", path, line, err)
		}
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s:%d: sample must be finite and positive, got %v", path, line, v)
		}
		samples = append(samples, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading samples %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: no samples", path)
	}
	return samples, nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
