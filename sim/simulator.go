// sim/simulator.go
package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Config holds the run-wide parameters of a Simulator.
type Config struct {
	// BurnIn is the raw time before which observers are not notified.
	BurnIn float64
	// Horizon is the last raw time that gets dispatched. Zero means unbounded.
	Horizon float64
}

// Simulator is the discrete-event engine: a clock, an event queue and the
// observers attached to event types. It is strictly single-threaded.
type Simulator struct {
	queue    EventQueue
	rawClock float64
	burnIn   float64
	horizon  float64
	nextSeq  uint64

	observers map[EventType][]Observer
	bound     int
	stopped   bool

	dispatched uint64
}

// NewSimulator creates an empty simulator.
// Panics if the burn-in or horizon are negative or not finite.
func NewSimulator(cfg Config) *Simulator {
	if cfg.BurnIn < 0 || math.IsNaN(cfg.BurnIn) || math.IsInf(cfg.BurnIn, 0) {
		panic(fmt.Sprintf("NewSimulator: invalid burn-in %v", cfg.BurnIn))
	}
	if cfg.Horizon < 0 || math.IsNaN(cfg.Horizon) || math.IsInf(cfg.Horizon, 0) {
		panic(fmt.Sprintf("NewSimulator: invalid horizon %v", cfg.Horizon))
	}
	return &Simulator{
		queue:     make(EventQueue, 0),
		burnIn:    cfg.BurnIn,
		horizon:   cfg.Horizon,
		observers: make(map[EventType][]Observer),
	}
}

// Schedule pushes an event into the queue and returns its ticket.
// Scheduling an event in the past is a modeling bug and panics.
func (s *Simulator) Schedule(ev Event) *Ticket {
	t := ev.Timestamp()
	if math.IsNaN(t) || math.IsInf(t, 0) {
		panic(fmt.Sprintf("Schedule: %T has non-finite timestamp %v", ev, t))
	}
	if t < s.rawClock {
		panic(fmt.Sprintf("Schedule: %T at %v is in the past (clock %v)", ev, t, s.rawClock))
	}
	ticket := &Ticket{event: ev, time: t, seqID: s.nextSeq}
	s.nextSeq++
	heap.Push(&s.queue, ticket)
	return ticket
}

// Cancel marks a ticket as expired. The entry stays in the queue and is
// dropped when popped.
func (s *Simulator) Cancel(t *Ticket) {
	if t != nil {
		t.cancelled = true
	}
}

// Observe registers an observer for events of type et.
func (s *Simulator) Observe(et EventType, o Observer) {
	s.observers[et] = append(s.observers[et], o)
}

// Binding keeps the simulator running. Once every binding obtained from Bind
// has been released, the simulator stops.
type Binding struct {
	s        *Simulator
	released bool
}

// Bind registers a binding observer.
func (s *Simulator) Bind() *Binding {
	s.bound++
	return &Binding{s: s}
}

// Unbind releases the binding. Releasing twice is a no-op.
func (b *Binding) Unbind() {
	if b.released {
		return
	}
	b.released = true
	b.s.bound--
	if b.s.bound == 0 {
		logrus.Debugf("[t=%.4f] all binding observers released", b.s.rawClock)
		b.s.Stop()
	}
}

// Stop makes Run return after the event currently being dispatched.
func (s *Simulator) Stop() { s.stopped = true }

// Stopped reports whether Stop was called.
func (s *Simulator) Stopped() bool { return s.stopped }

// Run dispatches events until the queue drains, the horizon is passed, Stop
// is called or every binding observer has unbound.
func (s *Simulator) Run() {
	for !s.stopped && s.next() {
	}
	logrus.Debugf("[t=%.4f] simulation ended after %d events", s.rawClock, s.dispatched)
}

// Step dispatches at most n events and returns how many were dispatched.
func (s *Simulator) Step(n int) int {
	done := 0
	for done < n && !s.stopped && s.next() {
		done++
	}
	return done
}

// next pops and dispatches one live event. It returns false when nothing
// more can be dispatched.
func (s *Simulator) next() bool {
	for len(s.queue) > 0 {
		t := heap.Pop(&s.queue).(*Ticket)
		if t.cancelled {
			continue
		}
		if s.horizon > 0 && t.time > s.horizon {
			heap.Push(&s.queue, t)
			s.rawClock = s.horizon
			return false
		}
		if t.time < s.rawClock {
			panic(fmt.Sprintf("Simulator: clock went backwards from %v to %v (%T)", s.rawClock, t.time, t.event))
		}
		s.rawClock = t.time
		logrus.Tracef("[t=%.4f] executing %T", s.rawClock, t.event)
		t.event.Execute(s)
		s.dispatched++
		if !s.IsBurningIn() {
			for _, o := range s.observers[t.event.Type()] {
				o.ObserveEvent(s, t.event)
			}
		}
		return true
	}
	return false
}

// RawClock returns the absolute simulation time, burn-in included.
func (s *Simulator) RawClock() float64 { return s.rawClock }

// Clock returns the time elapsed since the end of burn-in, floored at zero.
func (s *Simulator) Clock() float64 { return math.Max(0, s.rawClock-s.burnIn) }

// BurnIn returns the configured burn-in time.
func (s *Simulator) BurnIn() float64 { return s.burnIn }

// IsBurningIn reports whether statistics should still be discarded.
func (s *Simulator) IsBurningIn() bool { return s.rawClock < s.burnIn }

// Pending returns the number of queued entries, cancelled ones included.
func (s *Simulator) Pending() int { return len(s.queue) }

// Dispatched returns the number of events executed so far.
func (s *Simulator) Dispatched() uint64 { return s.dispatched }
