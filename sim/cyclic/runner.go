// Package cyclic multiplexes periodic protocol execution onto the event
// engine.
//
// One tick event per period visits every up node in index order. When a tick
// leaves no up node Active, the runner stops rescheduling itself and waits
// for WakeUp, which the process set triggers whenever a node comes up.
package cyclic

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/gossip-sim/sim"
	"github.com/inference-sim/gossip-sim/sim/churn"
)

// EventTypeTick tags runner ticks.
const EventTypeTick sim.EventType = "cyclic-tick"

// State is what a protocol instance reports after a tick.
type State int

const (
	// Idle protocols have nothing to do.
	Idle State = iota
	// Active protocols want another tick.
	Active
	// Waiting protocols have work but are blocked on peers that are down.
	Waiting
	// Done protocols will never act again.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Waiting:
		return "waiting"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Protocol is one node's cyclic protocol instance.
type Protocol interface {
	NextCycle(now float64, node int)
	State() State
}

// Runner drives a slice of protocols, one per node of a process set.
type Runner struct {
	period    float64
	protocols []Protocol
	network   *churn.ProcessSet

	next    float64
	ticket  *sim.Ticket
	paused  bool
	started bool
	rounds  int
	wakeups int
}

// NewRunner panics if period is not positive or if protocols and network
// disagree on the node count.
func NewRunner(period float64, protocols []Protocol, network *churn.ProcessSet) *Runner {
	if period <= 0 || math.IsNaN(period) || math.IsInf(period, 0) {
		panic(fmt.Sprintf("cyclic.NewRunner: period must be finite and > 0, got %v", period))
	}
	if len(protocols) != network.Size() {
		panic(fmt.Sprintf("cyclic.NewRunner: %d protocols for %d nodes", len(protocols), network.Size()))
	}
	r := &Runner{period: period, protocols: protocols, network: network}
	network.Subscribe(churn.ListenerFunc(func(s *sim.Simulator, p churn.Process) {
		if p.IsUp() {
			r.WakeUp(s)
		}
	}))
	return r
}

// Start schedules the first tick at the current time.
func (r *Runner) Start(s *sim.Simulator) {
	if r.started {
		panic("cyclic.Runner: started twice")
	}
	r.started = true
	r.schedule(s, s.RawClock())
}

func (r *Runner) schedule(s *sim.Simulator, at float64) {
	r.next = at
	r.ticket = s.Schedule(r)
}

func (r *Runner) Timestamp() float64     { return r.next }
func (r *Runner) Type() sim.EventType    { return EventTypeTick }
func (r *Runner) Priority() sim.Priority { return sim.PriorityProtocol }

// Execute runs one round.
func (r *Runner) Execute(s *sim.Simulator) {
	r.ticket = nil
	r.rounds++
	now := s.RawClock()
	active := false
	for i, p := range r.protocols {
		if !r.network.IsUp(i) {
			continue
		}
		p.NextCycle(now, i)
	}
	for i, p := range r.protocols {
		if r.network.IsUp(i) && p.State() == Active {
			active = true
			break
		}
	}
	if !active {
		r.paused = true
		logrus.Debugf("[t=%.4f] cyclic runner paused after round %d", now, r.rounds)
		return
	}
	r.schedule(s, now+r.period)
}

// WakeUp resumes a paused runner at the next period boundary. No-op while
// the runner is ticking.
func (r *Runner) WakeUp(s *sim.Simulator) {
	if !r.started || !r.paused {
		return
	}
	r.paused = false
	r.wakeups++
	now := s.RawClock()
	at := math.Max(now, math.Ceil(now/r.period)*r.period)
	logrus.Debugf("[t=%.4f] cyclic runner resumes at %.4f", now, at)
	r.schedule(s, at)
}

// Stop cancels the pending tick. The runner can be resumed with WakeUp.
func (r *Runner) Stop(s *sim.Simulator) {
	if r.ticket != nil {
		s.Cancel(r.ticket)
		r.ticket = nil
	}
	r.paused = true
}

// Rounds returns how many ticks have run.
func (r *Runner) Rounds() int { return r.rounds }

// Paused reports whether the runner is waiting for WakeUp.
func (r *Runner) Paused() bool { return r.paused }

// Wakeups returns how many times a paused runner was resumed.
func (r *Runner) Wakeups() int { return r.wakeups }

// Period returns the tick period.
func (r *Runner) Period() float64 { return r.period }
