package churn

import (
	"fmt"

	"github.com/inference-sim/gossip-sim/sim"
)

// ProcessSet owns one Process per node and exposes the network state to
// protocols. Process i must have ID i.
type ProcessSet struct {
	procs     []Process
	live      int
	listeners []Listener
}

// NewProcessSet wraps procs. Panics if IDs are not 0..n-1 in order.
func NewProcessSet(procs []Process) *ProcessSet {
	ps := &ProcessSet{procs: procs}
	for i, p := range procs {
		if p.ID() != i {
			panic(fmt.Sprintf("NewProcessSet: process at index %d has id %d", i, p.ID()))
		}
		p.Subscribe(ListenerFunc(ps.processChanged))
	}
	return ps
}

// Fixed returns a set of n processes that are always up.
func Fixed(n int) *ProcessSet {
	procs := make([]Process, n)
	for i := range procs {
		procs[i] = NewFixedProcess(i)
	}
	return NewProcessSet(procs)
}

// Start starts every process and counts the ones initially up.
func (ps *ProcessSet) Start(s *sim.Simulator) {
	ps.live = 0
	for _, p := range ps.procs {
		p.Start(s)
		if p.IsUp() {
			ps.live++
		}
	}
}

// Subscribe registers a listener for transitions of any process.
func (ps *ProcessSet) Subscribe(l Listener) {
	ps.listeners = append(ps.listeners, l)
}

func (ps *ProcessSet) processChanged(s *sim.Simulator, p Process) {
	if p.IsUp() {
		ps.live++
	} else {
		ps.live--
	}
	for _, l := range ps.listeners {
		l.ProcessChanged(s, p)
	}
}

// Size returns the number of processes.
func (ps *ProcessSet) Size() int { return len(ps.procs) }

// Process returns process i.
func (ps *ProcessSet) Process(i int) Process { return ps.procs[i] }

// IsUp reports whether node i is currently up.
func (ps *ProcessSet) IsUp(i int) bool { return ps.procs[i].IsUp() }

// Live returns how many processes are up.
func (ps *ProcessSet) Live() int { return ps.live }
