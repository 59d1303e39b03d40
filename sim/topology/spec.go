package topology

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Spec describes how to build a topology. Decoded from YAML.
type Spec struct {
	Type  string  `yaml:"type"`
	Nodes int     `yaml:"nodes"`
	P     float64 `yaml:"p,omitempty"`
	M     int     `yaml:"m,omitempty"`
	File  string  `yaml:"file,omitempty"`
}

var validTopologies = map[string]bool{
	"ring":       true,
	"complete":   true,
	"gnp":        true,
	"scale_free": true,
	"file":       true,
}

// IsValidTopology reports whether name is a known topology type.
func IsValidTopology(name string) bool { return validTopologies[name] }

// ValidTopologyNames returns the sorted list of topology types.
func ValidTopologyNames() []string {
	names := make([]string, 0, len(validTopologies))
	for n := range validTopologies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks the spec without building it.
func (s *Spec) Validate() error {
	if !IsValidTopology(s.Type) {
		return fmt.Errorf("unknown topology %q; valid: %s", s.Type, strings.Join(ValidTopologyNames(), ", "))
	}
	if s.Type == "file" {
		if s.File == "" {
			return fmt.Errorf("topology %q requires a file", s.Type)
		}
		return nil
	}
	if s.Nodes < 2 {
		return fmt.Errorf("topology nodes must be >= 2, got %d", s.Nodes)
	}
	switch s.Type {
	case "gnp":
		if s.P <= 0 || s.P > 1 {
			return fmt.Errorf("gnp p must be in (0, 1], got %v", s.P)
		}
	case "scale_free":
		if s.M < 1 || s.M >= s.Nodes {
			return fmt.Errorf("scale_free m must be in [1, nodes), got %d", s.M)
		}
		if s.P < 0 || s.P > 1 {
			return fmt.Errorf("scale_free p must be in [0, 1], got %v", s.P)
		}
	}
	return nil
}

// Build constructs the graph. rng is used by the random generators only.
func (s *Spec) Build(rng *rand.Rand) (*Adjacency, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Type {
	case "ring":
		return Ring(s.Nodes), nil
	case "complete":
		return Complete(s.Nodes), nil
	case "gnp":
		return Gnp(s.Nodes, s.P, rng)
	case "scale_free":
		return ScaleFree(s.Nodes, s.M, s.P, rng)
	default:
		return LoadEdgeList(s.File)
	}
}

// LoadEdgeList reads a graph file. See DecodeEdgeList.
func LoadEdgeList(path string) (*Adjacency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading edge list: %w", err)
	}
	defer f.Close()
	return DecodeEdgeList(f, path)
}

// DecodeEdgeList parses one "u v" pair per line. The node count is one more
// than the largest endpoint. Lines starting with '#' are skipped.
func DecodeEdgeList(r io.Reader, name string) (*Adjacency, error) {
	var edges [][2]int
	maxNode := -1
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected two node ids, got %d fields", name, line, len(fields))
		}
		var e [2]int
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: parsing node id: %w", name, line, err)
			}
			if v < 0 {
				return nil, fmt.Errorf("%s:%d: negative node id %d", name, line, v)
			}
			e[i] = v
			maxNode = max(maxNode, v)
		}
		edges = append(edges, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading edge list %s: %w", name, err)
	}
	a, err := FromEdges(maxNode+1, edges)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}
