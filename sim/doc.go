// Package sim provides the discrete-event engine of the gossip simulator.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - event.go: the Event contract, priority classes and tickets
//   - event_queue.go: the (time, priority, sequence) ordered heap
//   - simulator.go: the dispatch loop, horizon, burn-in clock and binding observers
//
// rng.go derives one isolated random stream per subsystem so that runs with
// the same key replay exactly.
//
// # Architecture
//
// The sim package only knows about events; the models live in sub-packages:
//   - sim/churn/: value distributions, renewal processes, process sets, trace replay
//   - sim/cyclic/: the pausing runner that ticks node protocols every period
//   - sim/topology/: neighbor graphs, generators, components and centrality
//   - sim/history/: per-message delivery records under an LRU window
//   - sim/dissemination/: messages, history forwarding, rumor mongering, selectors, monitor
//   - sim/trace/: optional exchange-level decision trace
//   - sim/experiment/: drivers, the parallel worker pool and result aggregation
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Event: anything the engine can schedule
//   - churn.Process and churn.Distribution: availability models
//   - cyclic.Protocol: one node's per-round behavior
//   - dissemination.Selector: peer choice for an exchange
//   - experiment.Driver: rows, tasks and aggregation of an experiment
package sim
