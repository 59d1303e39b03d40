package experiment

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/gossip-sim/sim"
	"github.com/inference-sim/gossip-sim/sim/churn"
	"github.com/inference-sim/gossip-sim/sim/dissemination"
	"github.com/inference-sim/gossip-sim/sim/topology"
	"github.com/inference-sim/gossip-sim/sim/trace"
)

// EventTypePost tags scheduled posts of the experiment source.
const EventTypePost sim.EventType = "post"

// stepBatch is how many events a task dispatches between context checks.
const stepBatch = 4096

// Row is one experiment row: a source node.
type Row struct {
	Index  int
	Source int
	rng    *sim.PartitionedRNG
}

// Result is the outcome of one dissemination run.
type Result struct {
	Summary dissemination.Summary
	Rounds  int
	Wakeups int
	// Availability is the sampled mean fraction of live nodes, NaN when not
	// sampled.
	Availability float64
	// NodeMeans maps a per-node metric to its mean over all nodes.
	NodeMeans map[string]float64
	// Trace is nil unless tracing is enabled.
	Trace *trace.TraceSummary
	// End is the raw time at which the run stopped.
	End float64
}

// RowOutput is the published aggregate of one row.
type RowOutput struct {
	Row    int
	Source int
	Agg    *Aggregator
}

// DisseminationDriver runs posts from every configured source over a
// topology built once per experiment.
type DisseminationDriver struct {
	cfg      *Config
	graph    *topology.Adjacency
	avt      *churn.AVTTrace
	up, down churn.Distribution
	protocol dissemination.ProtocolKind
	audience dissemination.Audience
	root     *sim.PartitionedRNG
	sources  []int
	registry prometheus.Registerer
	rows     []RowOutput
}

// NewDisseminationDriver validates cfg and builds the shared read-only
// inputs: the graph, the availability trace and the sojourn distributions.
// registry may be nil.
func NewDisseminationDriver(cfg *Config, registry prometheus.Registerer) (*DisseminationDriver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &DisseminationDriver{
		cfg:      cfg,
		root:     sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)),
		registry: registry,
	}
	d.protocol, _ = dissemination.ParseProtocol(cfg.Protocol.Type)
	d.audience = dissemination.Broadcast
	if cfg.Protocol.Audience != "" {
		d.audience, _ = dissemination.ParseAudience(cfg.Protocol.Audience)
	}

	g, err := cfg.Topology.Build(d.root.ForSubsystem(sim.SubsystemTopology))
	if err != nil {
		return nil, fmt.Errorf("building topology: %w", err)
	}
	d.graph = g

	switch cfg.Churn.Mode {
	case "avt":
		cut := cfg.Churn.AVTCut
		if cut == 0 {
			cut = math.Inf(1)
		}
		avt, err := churn.LoadAVT(cfg.Churn.AVTFile, cut)
		if err != nil {
			return nil, err
		}
		if len(avt.Nodes) != g.Size() {
			return nil, fmt.Errorf("availability trace has %d nodes, topology %d", len(avt.Nodes), g.Size())
		}
		d.avt = avt
	case "homogeneous":
		if d.up, err = churn.NewDistribution(*cfg.Churn.Up); err != nil {
			return nil, fmt.Errorf("up: %w", err)
		}
		if d.down, err = churn.NewDistribution(*cfg.Churn.Down); err != nil {
			return nil, fmt.Errorf("down: %w", err)
		}
	}

	d.sources = cfg.Sources
	if len(d.sources) == 0 {
		d.sources = make([]int, g.Size())
		for i := range d.sources {
			d.sources[i] = i
		}
	}
	for _, s := range d.sources {
		if s < 0 || s >= g.Size() {
			return nil, fmt.Errorf("source %d out of range [0, %d)", s, g.Size())
		}
	}
	logrus.Infof("topology %s: %d nodes, %d edges; %d source rows", cfg.Topology.Type, g.Size(), g.Edges(), len(d.sources))
	return d, nil
}

// Graph returns the shared topology.
func (d *DisseminationDriver) Graph() *topology.Adjacency { return d.graph }

// Rows returns the outputs published so far, in row order.
func (d *DisseminationDriver) Rows() []RowOutput { return d.rows }

// Load implements Driver.
func (d *DisseminationDriver) Load(row int) (Row, error) {
	if row >= len(d.sources) {
		return Row{}, ErrNoRows
	}
	key := d.root.Derive("row_" + strconv.Itoa(row))
	return Row{Index: row, Source: d.sources[row], rng: sim.NewPartitionedRNG(key)}, nil
}

// CreateTask implements Driver. The trial key is derived here so every
// trial is reproducible regardless of which worker runs it.
func (d *DisseminationDriver) CreateTask(id int, row Row) Task[Result] {
	key := row.rng.Derive(sim.SubsystemTrial(id))
	source := row.Source
	return TaskFunc[Result](func(ctx context.Context) (Result, error) {
		return d.run(ctx, key, source)
	})
}

// processes builds the process set of one run.
func (d *DisseminationDriver) processes(rng *sim.PartitionedRNG) (*churn.ProcessSet, error) {
	n := d.graph.Size()
	c := d.cfg.Churn
	switch c.Mode {
	case "yao":
		return churn.NewYaoSet(n, c.YaoMode, rng.ForSubsystem(sim.SubsystemChurn))
	case "homogeneous":
		initial := churn.Up
		if c.Initial == "down" {
			initial = churn.Down
		}
		return churn.NewHomogeneousSet(n, d.up, d.down, initial, rng.ForSubsystem(sim.SubsystemChurn)), nil
	case "avt":
		return d.avt.ProcessSet(), nil
	default:
		return churn.Fixed(n), nil
	}
}

func (d *DisseminationDriver) run(ctx context.Context, key sim.SimulationKey, source int) (Result, error) {
	cfg := d.cfg
	rng := sim.NewPartitionedRNG(key)
	s := sim.NewSimulator(sim.Config{BurnIn: cfg.BurnIn, Horizon: cfg.Horizon})

	ps, err := d.processes(rng)
	if err != nil {
		return Result{}, err
	}
	selector, err := cfg.Protocol.Selector.Build(d.graph, ps, rng.ForSubsystem(sim.SubsystemProtocol))
	if err != nil {
		return Result{}, err
	}
	hist, err := cfg.Protocol.History.config(d.graph.Size())
	if err != nil {
		return Result{}, err
	}
	monitor := dissemination.NewMonitor(d.graph)
	et := trace.NewExchangeTrace(trace.TraceLevel(cfg.TraceLevel))
	net := dissemination.NewNetwork(&dissemination.Config{
		Graph:     d.graph,
		Processes: ps,
		Protocol:  d.protocol,
		History:   hist,
		Selector:  selector,
		Monitor:   monitor,
		Trace:     et,
		RNG:       rng,
		ChunkSize: cfg.Protocol.ChunkSize,
		GiveUp:    cfg.Protocol.GiveUp,
		MaxRumors: cfg.Protocol.MaxRumors,
		Audience:  d.audience,
	})
	runner := net.Runner(cfg.Period)

	ps.Start(s)
	runner.Start(s)
	var sampler *churn.AvailabilitySampler
	if cfg.Churn.SamplePeriod > 0 {
		sampler = churn.NewAvailabilitySampler(ps, cfg.Churn.SamplePeriod)
		sampler.Start(s)
	}

	post := &postEvent{net: net, source: source, at: cfg.BurnIn, period: cfg.Period, left: max(cfg.Posts, 1)}
	monitor.OnComplete(func() {
		if post.left == 0 {
			s.Stop()
		}
	})
	s.Schedule(post)

	for !s.Stopped() {
		if s.Step(stepBatch) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
	}

	res := Result{
		Summary:      monitor.Summary(),
		Rounds:       runner.Rounds(),
		Wakeups:      runner.Wakeups(),
		Availability: math.NaN(),
		NodeMeans:    make(map[string]float64),
		End:          s.RawClock(),
	}
	if sampler != nil && len(sampler.Samples()) > 0 {
		res.Availability = sampler.Mean()
	}
	values := make([]float64, net.Size())
	for _, m := range net.Metrics() {
		for i := range values {
			values[i] = m.Value(i)
		}
		res.NodeMeans[m.ID()] = stat.Mean(values, nil)
	}
	if et != nil {
		res.Trace = trace.Summarize(et)
	}
	return res, nil
}

// Aggregate implements Driver.
func (d *DisseminationDriver) Aggregate(agg *Aggregator, r Result) {
	sum := r.Summary
	if sum.Posts > 0 {
		agg.Add("completed", float64(sum.Completed)/float64(sum.Posts))
	}
	if sum.Completed > 0 {
		agg.Add("e2e_delay", sum.E2EDelay)
	}
	agg.Add("undelivered", float64(sum.Undelivered))
	agg.Add("delivered", float64(sum.Delivered))
	agg.Add("sent", float64(sum.Sent))
	agg.Add("duplicates", float64(sum.Duplicates))
	agg.Add("suppressed", float64(sum.Suppressed))
	agg.Add("rounds", float64(r.Rounds))
	agg.Add("wakeups", float64(r.Wakeups))
	agg.Add("availability", r.Availability)
	for id, v := range r.NodeMeans {
		agg.Add("node_"+id, v)
	}
	if r.Trace != nil {
		agg.Add("duplicate_ratio", r.Trace.DuplicateRatio)
	}
}

// Output implements Driver. It logs the row and registers its aggregate.
func (d *DisseminationDriver) Output(row int, agg *Aggregator) error {
	source := d.sources[row]
	for _, name := range agg.Names() {
		logrus.Infof("row %d (source %d) %s: mean %.4g sd %.4g n %d",
			row, source, name, agg.Mean(name), agg.StdDev(name), agg.Count(name))
	}
	if d.registry != nil {
		if err := d.registry.Register(agg); err != nil {
			return fmt.Errorf("registering row %d: %w", row, err)
		}
	}
	d.rows = append(d.rows, RowOutput{Row: row, Source: source, Agg: agg})
	return nil
}

// postEvent makes the source post one message per period.
type postEvent struct {
	net    *dissemination.Network
	source int
	at     float64
	period float64
	left   int
}

func (p *postEvent) Timestamp() float64     { return p.at }
func (p *postEvent) Type() sim.EventType    { return EventTypePost }
func (p *postEvent) Priority() sim.Priority { return sim.PriorityProtocol }

func (p *postEvent) Execute(s *sim.Simulator) {
	p.left--
	p.net.Post(s, p.source)
	if p.left > 0 {
		p.at += p.period
		s.Schedule(p)
	}
}
