package sim

// EventType tags an event for observer routing. Packages that define events
// declare their own EventType constants.
type EventType string

// Priority orders events that share a timestamp.
// Lower values are dispatched first.
type Priority int

const (
	// PriorityProtocol is used by churn transitions, protocol ticks and
	// anything else that mutates network state.
	PriorityProtocol Priority = 0

	// PriorityControl is used by housekeeping and measurement events. They run
	// after every protocol event scheduled for the same instant, so they
	// observe a settled network state.
	PriorityControl Priority = 1
)

func (p Priority) String() string {
	switch p {
	case PriorityProtocol:
		return "protocol"
	case PriorityControl:
		return "control"
	default:
		return "unknown"
	}
}

// Event defines the interface for all simulation events.
// Timestamp is absolute raw simulation time, burn-in included.
type Event interface {
	Timestamp() float64
	Type() EventType
	Priority() Priority
	Execute(*Simulator)
}

// Observer receives a callback after each dispatched event of the types it
// registered for. Observers are not called while the simulator is burning in.
type Observer interface {
	ObserveEvent(s *Simulator, ev Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(s *Simulator, ev Event)

func (f ObserverFunc) ObserveEvent(s *Simulator, ev Event) { f(s, ev) }

// Ticket is the handle returned by Schedule. Cancelling a ticket is O(1); the
// entry is discarded when it reaches the head of the queue.
type Ticket struct {
	event     Event
	time      float64
	seqID     uint64
	cancelled bool
}

// Event returns the scheduled event.
func (t *Ticket) Event() Event { return t.event }

// Time returns the timestamp captured when the event was scheduled.
func (t *Ticket) Time() float64 { return t.time }

// Cancelled reports whether Cancel was called on this ticket.
func (t *Ticket) Cancelled() bool { return t.cancelled }
