package churn

import (
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/gossip-sim/sim"
)

// EventTypeAvailabilitySample tags availability measurements.
const EventTypeAvailabilitySample sim.EventType = "availability_sample"

// AvailabilitySampler periodically records the fraction of live processes.
// It runs at control priority, so every transition scheduled for the same
// instant has already been applied when it samples.
type AvailabilitySampler struct {
	set     *ProcessSet
	period  float64
	next    float64
	samples []float64
}

// NewAvailabilitySampler creates a sampler that fires every period once started.
func NewAvailabilitySampler(set *ProcessSet, period float64) *AvailabilitySampler {
	return &AvailabilitySampler{set: set, period: period}
}

// Start schedules the first sample.
func (a *AvailabilitySampler) Start(s *sim.Simulator) {
	a.next = s.RawClock()
	s.Schedule(a)
}

func (a *AvailabilitySampler) Timestamp() float64     { return a.next }
func (a *AvailabilitySampler) Type() sim.EventType    { return EventTypeAvailabilitySample }
func (a *AvailabilitySampler) Priority() sim.Priority { return sim.PriorityControl }

func (a *AvailabilitySampler) Execute(s *sim.Simulator) {
	if !s.IsBurningIn() && a.set.Size() > 0 {
		a.samples = append(a.samples, float64(a.set.Live())/float64(a.set.Size()))
	}
	a.next += a.period
	s.Schedule(a)
}

// Samples returns the recorded availability fractions.
func (a *AvailabilitySampler) Samples() []float64 { return a.samples }

// Mean returns the average availability over the recorded samples.
func (a *AvailabilitySampler) Mean() float64 {
	if len(a.samples) == 0 {
		return 0
	}
	return stat.Mean(a.samples, nil)
}
