package history

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Kind selects a history strategy for a whole run.
type Kind int

const (
	None Kind = iota
	Bitset
	Bloom
)

var kindNames = map[string]Kind{
	"none":   None,
	"bitset": Bitset,
	"bloom":  Bloom,
}

func (k Kind) String() string {
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	k, ok := kindNames[strings.ToLower(name)]
	if !ok {
		return None, fmt.Errorf("unknown history strategy %q; valid: %s", name, strings.Join(KindNames(), ", "))
	}
	return k, nil
}

// KindNames returns the sorted strategy names.
func KindNames() []string {
	names := make([]string, 0, len(kindNames))
	for n := range kindNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config is shared read-only by every node's Strategy.
type Config struct {
	Kind Kind
	// Window bounds how many message records a node keeps.
	Window int
	// Nodes is the network size; bitset records are sized to it.
	Nodes int
	// FalsePositive is the target Bloom false positive rate.
	FalsePositive float64
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Kind == None {
		return nil
	}
	if c.Window < 1 {
		return fmt.Errorf("history window must be >= 1, got %d", c.Window)
	}
	if c.Kind == Bitset && c.Nodes < 1 {
		return fmt.Errorf("bitset history needs the network size, got %d", c.Nodes)
	}
	if c.Kind == Bloom && (c.FalsePositive <= 0 || c.FalsePositive >= 1 || math.IsNaN(c.FalsePositive)) {
		return fmt.Errorf("bloom false positive rate must be in (0, 1), got %v", c.FalsePositive)
	}
	return nil
}

// Stats are the cache counters reported per node.
type Stats struct {
	Accesses  uint64
	Hits      uint64
	Evictions uint64
	Size      int
}

// HitRate returns hits/accesses, 1.0 when there were no accesses.
func (s Stats) HitRate() float64 {
	if s.Accesses == 0 {
		return 1.0
	}
	return float64(s.Hits) / float64(s.Accesses)
}

// Strategy is one node's bounded history cache. Records of evicted messages
// are gone; lookups for them miss, which callers treat as "unknown".
type Strategy struct {
	cfg   *Config
	cache *simplelru.LRU[Key, Record]
	stats Stats
}

// New creates a node's strategy. Panics on an invalid configuration, which
// must be validated before the run starts.
func New(cfg *Config) *Strategy {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("history.New: %v", err))
	}
	s := &Strategy{cfg: cfg}
	if cfg.Kind == None {
		return s
	}
	cache, err := simplelru.NewLRU[Key, Record](cfg.Window, func(Key, Record) {
		s.stats.Evictions++
	})
	if err != nil {
		panic(fmt.Sprintf("history.New: %v", err))
	}
	s.cache = cache
	return s
}

// Kind returns the configured strategy.
func (s *Strategy) Kind() Kind { return s.cfg.Kind }

// Get returns the record for k and refreshes its recency. Counts one access.
func (s *Strategy) Get(k Key) (Record, bool) {
	if s.cache == nil {
		return nil, false
	}
	s.stats.Accesses++
	r, ok := s.cache.Get(k)
	if ok {
		s.stats.Hits++
	}
	return r, ok
}

// Peek returns the record for k without touching recency or counters.
func (s *Strategy) Peek(k Key) (Record, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Peek(k)
}

// Create makes an empty record for k, sized for expected destinations.
// Panics if k already has a record.
func (s *Strategy) Create(k Key, expected int) Record {
	if s.cache == nil {
		return nil
	}
	var r Record
	switch s.cfg.Kind {
	case Bitset:
		r = newBitsetRecord(s.cfg.Nodes)
	case Bloom:
		r = newBloomRecord(expected+1, s.cfg.FalsePositive)
	}
	s.store(k, r)
	return r
}

// Adopt stores a private copy of a record received from a peer, or a fresh
// one when the peer sent none. Panics if k already has a record.
func (s *Strategy) Adopt(k Key, from Record, expected int) Record {
	if s.cache == nil {
		return nil
	}
	if from == nil {
		return s.Create(k, expected)
	}
	r := from.Clone()
	s.store(k, r)
	return r
}

func (s *Strategy) store(k Key, r Record) {
	if s.cache.Contains(k) {
		panic(fmt.Sprintf("history: duplicate record for message %s", k))
	}
	s.cache.Add(k, r)
}

// GetOrCreate returns the record for k, creating it on a miss.
func (s *Strategy) GetOrCreate(k Key, expected int) Record {
	if r, ok := s.Get(k); ok {
		return r
	}
	return s.Create(k, expected)
}

// Add inserts node into r. No-op for a nil record.
func Add(r Record, node int) {
	if r != nil {
		r.Add(node)
	}
}

// Contains reports whether r holds node. A nil record holds nothing.
func Contains(r Record, node int) bool {
	return r != nil && r.Contains(node)
}

// Merge unions from into into. No-op if either is nil.
func Merge(into, from Record) {
	if into != nil && from != nil {
		into.Merge(from)
	}
}

// Clone copies r for forwarding. Nil stays nil.
func Clone(r Record) Record {
	if r == nil {
		return nil
	}
	return r.Clone()
}

// Stats returns a snapshot of the cache counters.
func (s *Strategy) Stats() Stats {
	st := s.stats
	if s.cache != nil {
		st.Size = s.cache.Len()
	}
	return st
}

// Clear drops every record and resets the counters.
func (s *Strategy) Clear() {
	if s.cache != nil {
		s.cache.Purge()
	}
	s.stats = Stats{}
}
