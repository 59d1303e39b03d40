// Package churn models per-node availability as alternating renewal processes
// driven by the simulator.
package churn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/gossip-sim/sim"
)

// EventTypeChurn tags process state transitions.
const EventTypeChurn sim.EventType = "churn"

// State is the availability state of a process.
type State int

const (
	Down State = iota
	Up
)

func (s State) String() string {
	if s == Up {
		return "up"
	}
	return "down"
}

func (s State) flip() State {
	if s == Up {
		return Down
	}
	return Up
}

// Process is the per-node availability model seen by protocols and metrics.
type Process interface {
	ID() int
	State() State
	IsUp() bool
	// Uptime returns the total time spent up in [0, now].
	Uptime(now float64) float64
	// Downtime returns the total time spent down in [0, now].
	Downtime(now float64) float64
	// Start schedules the first transition. Starting twice panics.
	Start(s *sim.Simulator)
	// Subscribe registers a listener for every transition of this process.
	Subscribe(l Listener)
}

// Listener is told about every transition, whether or not the simulator is
// burning in.
type Listener interface {
	ProcessChanged(s *sim.Simulator, p Process)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(s *sim.Simulator, p Process)

func (f ListenerFunc) ProcessChanged(s *sim.Simulator, p Process) { f(s, p) }

// RenewalProcess alternates between Up and Down, drawing the length of each
// sojourn from the distribution of the state being entered.
type RenewalProcess struct {
	id        int
	up, down  Distribution
	rng       *rand.Rand
	state     State
	started   bool
	nextEvent float64

	lastTransition float64
	cumulativeUp   float64
	cumulativeDown float64
	transitions    int

	listeners []Listener
}

// NewRenewalProcess creates a process that is in state initial at the time
// it is started.
func NewRenewalProcess(id int, up, down Distribution, initial State, rng *rand.Rand) *RenewalProcess {
	return &RenewalProcess{
		id:    id,
		up:    up,
		down:  down,
		rng:   rng,
		state: initial,
	}
}

// NewFixedProcess creates a process that is up forever.
func NewFixedProcess(id int) *RenewalProcess {
	return NewRenewalProcess(id, Infinite{}, Infinite{}, Up, nil)
}

func (p *RenewalProcess) ID() int      { return p.id }
func (p *RenewalProcess) State() State { return p.state }
func (p *RenewalProcess) IsUp() bool   { return p.state == Up }

// NextEventTime returns the raw time of the next transition, +Inf when the
// current sojourn never ends.
func (p *RenewalProcess) NextEventTime() float64 { return p.nextEvent }

// LastTransitionTime returns the raw time of the most recent transition.
func (p *RenewalProcess) LastTransitionTime() float64 { return p.lastTransition }

// Transitions returns how many state flips happened so far.
func (p *RenewalProcess) Transitions() int { return p.transitions }

func (p *RenewalProcess) Subscribe(l Listener) {
	p.listeners = append(p.listeners, l)
}

func (p *RenewalProcess) Start(s *sim.Simulator) {
	if p.started {
		panic(fmt.Sprintf("RenewalProcess %d: started twice", p.id))
	}
	p.started = true
	p.lastTransition = s.RawClock()
	p.scheduleNext(s)
}

// Timestamp returns the time of the next transition.
func (p *RenewalProcess) Timestamp() float64  { return p.nextEvent }
func (p *RenewalProcess) Type() sim.EventType { return EventTypeChurn }
func (p *RenewalProcess) Priority() sim.Priority {
	return sim.PriorityProtocol
}

// Execute performs one transition: it closes the current sojourn, flips the
// state, samples the next sojourn and re-inserts itself into the simulator.
func (p *RenewalProcess) Execute(s *sim.Simulator) {
	now := p.nextEvent
	elapsed := now - p.lastTransition
	if elapsed < 0 {
		panic(fmt.Sprintf("RenewalProcess %d: negative sojourn %v", p.id, elapsed))
	}
	if p.state == Up {
		p.cumulativeUp += elapsed
	} else {
		p.cumulativeDown += elapsed
	}
	p.lastTransition = now
	p.state = p.state.flip()
	p.transitions++
	logrus.Debugf("[t=%.4f] process %d is %s", now, p.id, p.state)

	p.scheduleNext(s)
	for _, l := range p.listeners {
		l.ProcessChanged(s, p)
	}
}

func (p *RenewalProcess) scheduleNext(s *sim.Simulator) {
	d := p.distribution().Sample(p.rng)
	if d <= 0 || math.IsNaN(d) {
		panic(fmt.Sprintf("RenewalProcess %d: %s distribution sampled invalid duration %v", p.id, p.state, d))
	}
	p.nextEvent = p.lastTransition + d
	if math.IsInf(p.nextEvent, 1) {
		return
	}
	s.Schedule(p)
}

func (p *RenewalProcess) distribution() Distribution {
	if p.state == Up {
		return p.up
	}
	return p.down
}

func (p *RenewalProcess) Uptime(now float64) float64 {
	up := p.cumulativeUp
	if p.state == Up {
		up += p.openSojourn(now)
	}
	return up
}

func (p *RenewalProcess) Downtime(now float64) float64 {
	down := p.cumulativeDown
	if p.state == Down {
		down += p.openSojourn(now)
	}
	return down
}

func (p *RenewalProcess) openSojourn(now float64) float64 {
	if !p.started {
		return 0
	}
	if now < p.lastTransition {
		panic(fmt.Sprintf("RenewalProcess %d: query at %v precedes last transition %v", p.id, now, p.lastTransition))
	}
	return now - p.lastTransition
}

// AsymptoticAvailability returns E[up] / (E[up] + E[down]). A process that
// can never leave its current state is fully up or fully down.
func (p *RenewalProcess) AsymptoticAvailability() float64 {
	up, down := p.up.Mean(), p.down.Mean()
	upForever, downForever := math.IsInf(up, 1), math.IsInf(down, 1)
	switch {
	case upForever && downForever:
		if p.state == Up {
			return 1
		}
		return 0
	case upForever:
		return 1
	case downForever:
		return 0
	}
	return up / (up + down)
}

// EmpiricalAvailability returns the fraction of [0, now] spent up.
func (p *RenewalProcess) EmpiricalAvailability(now float64) float64 {
	if now <= 0 {
		return 0
	}
	return p.Uptime(now) / now
}
