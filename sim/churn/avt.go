package churn

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/gossip-sim/sim"
)

// AVTNode is one row of an availability trace: alternating up/down
// boundaries, where the node is up during [Events[2k], Events[2k+1]).
type AVTNode struct {
	ID     string
	Events []float64
}

// AVTTrace is a decoded availability trace, rows kept in file order.
type AVTTrace struct {
	Nodes   []AVTNode
	MaxTime float64
}

// LoadAVT decodes an availability trace file. See DecodeAVT.
func LoadAVT(path string, cut float64) (*AVTTrace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading availability trace: %w", err)
	}
	defer f.Close()
	return DecodeAVT(f, path, cut)
}

// DecodeAVT parses rows of the form "id n s1 e1 s2 e2 ...". Each interval is
// inclusive of its end tick, so the node goes down at e+1. Intervals starting
// at or after cut are dropped and the ones crossing it are clipped. Lines
// starting with '#' are skipped.
func DecodeAVT(r io.Reader, name string, cut float64) (*AVTTrace, error) {
	trace := &AVTTrace{MaxTime: math.Inf(-1)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected id and interval count", name, line)
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: parsing interval count: %w", name, line, err)
		}
		bounds := fields[2:]
		if len(bounds)%2 != 0 {
			return nil, fmt.Errorf("%s:%d: odd number of interval bounds (%d)", name, line, len(bounds))
		}
		if n != len(bounds)/2 {
			return nil, fmt.Errorf("%s:%d: declared %d intervals, found %d", name, line, n, len(bounds)/2)
		}
		if n == 0 {
			logrus.Warnf("%s:%d: node %s has zero intervals", name, line, fields[0])
		}

		node := AVTNode{ID: fields[0]}
		for i := 0; i < len(bounds); i += 2 {
			start, err := strconv.ParseFloat(bounds[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: parsing interval start: %w", name, line, err)
			}
			end, err := strconv.ParseFloat(bounds[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: parsing interval end: %w", name, line, err)
			}
			if start >= cut {
				break
			}
			for _, v := range []float64{start, math.Min(cut, end+1)} {
				if k := len(node.Events); k > 0 && v < node.Events[k-1] {
					return nil, fmt.Errorf("%s:%d: interval sequence for node %s is decreasing (%v > %v)",
						name, line, node.ID, node.Events[k-1], v)
				}
				node.Events = append(node.Events, v)
			}
			trace.MaxTime = math.Max(trace.MaxTime, end+1)
		}
		trace.Nodes = append(trace.Nodes, node)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading availability trace %s: %w", name, err)
	}
	return trace, nil
}

// ProcessSet builds one TraceProcess per row, in file order.
func (t *AVTTrace) ProcessSet() *ProcessSet {
	procs := make([]Process, len(t.Nodes))
	for i, n := range t.Nodes {
		procs[i] = NewTraceProcess(i, n.Events)
	}
	return NewProcessSet(procs)
}

// TraceProcess replays recorded availability intervals.
type TraceProcess struct {
	id      int
	events  []float64
	next    int
	state   State
	started bool

	lastTransition float64
	cumulativeUp   float64
	cumulativeDown float64

	listeners []Listener
}

// NewTraceProcess creates a process that is up during [events[2k], events[2k+1]).
func NewTraceProcess(id int, events []float64) *TraceProcess {
	return &TraceProcess{id: id, events: events, state: Down}
}

func (p *TraceProcess) ID() int      { return p.id }
func (p *TraceProcess) State() State { return p.state }
func (p *TraceProcess) IsUp() bool   { return p.state == Up }

func (p *TraceProcess) Subscribe(l Listener) {
	p.listeners = append(p.listeners, l)
}

func (p *TraceProcess) Start(s *sim.Simulator) {
	if p.started {
		panic(fmt.Sprintf("TraceProcess %d: started twice", p.id))
	}
	p.started = true
	p.lastTransition = s.RawClock()
	// Skip zero-length intervals and boundaries already in the past.
	for p.next < len(p.events) && p.events[p.next] < s.RawClock() {
		p.next++
		p.state = p.state.flip()
	}
	if p.next < len(p.events) {
		s.Schedule(p)
	}
}

func (p *TraceProcess) Timestamp() float64     { return p.events[p.next] }
func (p *TraceProcess) Type() sim.EventType    { return EventTypeChurn }
func (p *TraceProcess) Priority() sim.Priority { return sim.PriorityProtocol }

func (p *TraceProcess) Execute(s *sim.Simulator) {
	now := p.events[p.next]
	if p.state == Up {
		p.cumulativeUp += now - p.lastTransition
	} else {
		p.cumulativeDown += now - p.lastTransition
	}
	p.lastTransition = now
	p.state = p.state.flip()
	p.next++
	if p.next < len(p.events) {
		s.Schedule(p)
	}
	for _, l := range p.listeners {
		l.ProcessChanged(s, p)
	}
}

func (p *TraceProcess) Uptime(now float64) float64 {
	if p.state == Up && p.started {
		return p.cumulativeUp + now - p.lastTransition
	}
	return p.cumulativeUp
}

func (p *TraceProcess) Downtime(now float64) float64 {
	if p.state == Down && p.started {
		return p.cumulativeDown + now - p.lastTransition
	}
	return p.cumulativeDown
}
