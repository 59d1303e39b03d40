package experiment

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/gossip-sim/sim/churn"
	"github.com/inference-sim/gossip-sim/sim/dissemination"
	"github.com/inference-sim/gossip-sim/sim/history"
	"github.com/inference-sim/gossip-sim/sim/topology"
	"github.com/inference-sim/gossip-sim/sim/trace"
)

// Config is a dissemination experiment. Loaded from YAML via LoadConfig.
type Config struct {
	Seed    int64 `yaml:"seed"`
	Workers int   `yaml:"workers"`
	// Trials is the number of runs per row, or the batch size when a
	// precision rule is set.
	Trials    int            `yaml:"trials"`
	Precision *PrecisionRule `yaml:"precision,omitempty"`
	// Horizon is the last simulated time of a run.
	Horizon float64 `yaml:"horizon"`
	BurnIn  float64 `yaml:"burn_in,omitempty"`
	// Period of the cyclic protocol runner.
	Period float64 `yaml:"period"`

	Topology topology.Spec `yaml:"topology"`
	Churn    ChurnSpec     `yaml:"churn"`
	Protocol ProtocolSpec  `yaml:"protocol"`

	// Sources lists the posting node of each row; empty means every node.
	Sources []int `yaml:"sources,omitempty"`
	// Posts is how many messages the source posts, one per period.
	Posts      int    `yaml:"posts,omitempty"`
	TraceLevel string `yaml:"trace_level,omitempty"`
}

// ChurnSpec selects how node availability evolves.
type ChurnSpec struct {
	// Mode is fixed, homogeneous, yao or avt.
	Mode string `yaml:"mode"`
	// YaoMode is one of churn.YaoModeNames for mode yao.
	YaoMode string `yaml:"yao_mode,omitempty"`
	// Up and Down are the sojourn distributions for mode homogeneous.
	Up   *churn.DistSpec `yaml:"up,omitempty"`
	Down *churn.DistSpec `yaml:"down,omitempty"`
	// Initial is up or down; defaults to up.
	Initial string `yaml:"initial,omitempty"`
	// AVTFile and AVTCut configure trace replay for mode avt. A zero cut
	// keeps the whole trace.
	AVTFile string  `yaml:"avt_file,omitempty"`
	AVTCut  float64 `yaml:"avt_cut,omitempty"`
	// SamplePeriod enables the availability sampler when positive.
	SamplePeriod float64 `yaml:"sample_period,omitempty"`
}

// ProtocolSpec configures the dissemination protocol of every node.
type ProtocolSpec struct {
	// Type is forwarding or demers.
	Type      string                      `yaml:"type"`
	History   HistorySpec                 `yaml:"history,omitempty"`
	ChunkSize int                         `yaml:"chunk_size"`
	GiveUp    float64                     `yaml:"give_up,omitempty"`
	MaxRumors int                         `yaml:"max_rumors,omitempty"`
	Audience  string                      `yaml:"audience,omitempty"`
	Selector  dissemination.SelectorSpec `yaml:"selector"`
}

// HistorySpec configures the history strategy.
type HistorySpec struct {
	Kind          string  `yaml:"kind"`
	Window        int     `yaml:"window,omitempty"`
	FalsePositive float64 `yaml:"false_positive,omitempty"`
}

// Valid value registries.
var (
	validChurnModes = map[string]bool{"fixed": true, "homogeneous": true, "yao": true, "avt": true}
	validInitial    = map[string]bool{"": true, "up": true, "down": true}
)

// LoadConfig reads and parses a YAML experiment file. Unknown keys are
// rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing experiment config %s: %w", path, err)
	}
	if cfg.Precision != nil {
		cfg.Precision.fillDefaults()
	}
	return &cfg, nil
}

// Validate checks every section. It runs before any event is scheduled.
func (c *Config) Validate() error {
	if c.Trials < 1 {
		return fmt.Errorf("trials must be >= 1, got %d", c.Trials)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Precision != nil {
		if err := c.Precision.Validate(); err != nil {
			return err
		}
	}
	if err := validateFinitePositive("horizon", c.Horizon); err != nil {
		return err
	}
	if c.BurnIn < 0 || math.IsNaN(c.BurnIn) || c.BurnIn >= c.Horizon {
		return fmt.Errorf("burn_in must be in [0, horizon), got %v", c.BurnIn)
	}
	if err := validateFinitePositive("period", c.Period); err != nil {
		return err
	}
	if c.Posts < 0 {
		return fmt.Errorf("posts must be >= 0, got %d", c.Posts)
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		return fmt.Errorf("unknown trace_level %q; valid: none, exchanges, selections", c.TraceLevel)
	}
	if err := c.Topology.Validate(); err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	if c.Topology.Type != "file" {
		for i, s := range c.Sources {
			if s < 0 || s >= c.Topology.Nodes {
				return fmt.Errorf("sources[%d]: node %d out of range [0, %d)", i, s, c.Topology.Nodes)
			}
		}
	}
	if err := c.Churn.Validate(); err != nil {
		return fmt.Errorf("churn: %w", err)
	}
	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	return nil
}

// Validate checks the churn section.
func (c *ChurnSpec) Validate() error {
	if !validChurnModes[c.Mode] {
		return fmt.Errorf("unknown mode %q; valid: avt, fixed, homogeneous, yao", c.Mode)
	}
	if !validInitial[c.Initial] {
		return fmt.Errorf("initial must be up or down, got %q", c.Initial)
	}
	if c.SamplePeriod < 0 || math.IsNaN(c.SamplePeriod) || math.IsInf(c.SamplePeriod, 0) {
		return fmt.Errorf("sample_period must be finite and >= 0, got %v", c.SamplePeriod)
	}
	switch c.Mode {
	case "yao":
		if _, err := churn.YaoMode(c.YaoMode); err != nil {
			return err
		}
	case "homogeneous":
		if c.Up == nil || c.Down == nil {
			return fmt.Errorf("homogeneous mode needs up and down distributions")
		}
		if err := c.Up.Validate("up"); err != nil {
			return err
		}
		if err := c.Down.Validate("down"); err != nil {
			return err
		}
		if _, err := churn.NewDistribution(*c.Up); err != nil {
			return fmt.Errorf("up: %w", err)
		}
		if _, err := churn.NewDistribution(*c.Down); err != nil {
			return fmt.Errorf("down: %w", err)
		}
	case "avt":
		if c.AVTFile == "" {
			return fmt.Errorf("avt mode needs avt_file")
		}
		if c.AVTCut < 0 || math.IsNaN(c.AVTCut) {
			return fmt.Errorf("avt_cut must be >= 0, got %v", c.AVTCut)
		}
	}
	return nil
}

// Validate checks the protocol section.
func (p *ProtocolSpec) Validate() error {
	kind, err := dissemination.ParseProtocol(p.Type)
	if err != nil {
		return err
	}
	if p.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be >= 1, got %d", p.ChunkSize)
	}
	if p.GiveUp < 0 || p.GiveUp > 1 || math.IsNaN(p.GiveUp) {
		return fmt.Errorf("give_up must be in [0, 1], got %v", p.GiveUp)
	}
	if kind == dissemination.RumorMongering && p.GiveUp == 0 {
		return fmt.Errorf("demers needs give_up > 0")
	}
	if p.MaxRumors < 0 {
		return fmt.Errorf("max_rumors must be >= 0, got %d", p.MaxRumors)
	}
	if p.Audience != "" {
		if _, err := dissemination.ParseAudience(p.Audience); err != nil {
			return err
		}
	}
	if kind == dissemination.HistoryForwarding {
		hc, err := p.History.config(1)
		if err != nil {
			return err
		}
		if err := hc.Validate(); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	if err := p.Selector.Validate(); err != nil {
		return fmt.Errorf("selector: %w", err)
	}
	return nil
}

// config turns the section into a history.Config for a network of nodes.
func (h *HistorySpec) config(nodes int) (history.Config, error) {
	kind := history.None
	if h.Kind != "" {
		k, err := history.ParseKind(h.Kind)
		if err != nil {
			return history.Config{}, err
		}
		kind = k
	}
	return history.Config{Kind: kind, Window: h.Window, Nodes: nodes, FalsePositive: h.FalsePositive}, nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
