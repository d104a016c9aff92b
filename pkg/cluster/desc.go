package cluster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// NodeDesc describes one node and the file systems it can access.
type NodeDesc struct {
	Name        string   `toml:"name" yaml:"name"`
	FileSystems []string `toml:"file_systems" yaml:"file_systems"`
}

// HasFileSystem reports whether the node can access fs.
func (n NodeDesc) HasFileSystem(fs string) bool {
	for _, f := range n.FileSystems {
		if f == fs {
			return true
		}
	}
	return false
}

// ClusterDesc describes the nodes of a cluster.
type ClusterDesc struct {
	Name  string     `toml:"name" yaml:"name"`
	Nodes []NodeDesc `toml:"nodes" yaml:"nodes"`
}

// Validate checks that node names are present and unique.
func (c ClusterDesc) Validate() error {
	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.Name == "" {
			return fmt.Errorf("cluster %q: node %d has no name", c.Name, i)
		}
		if seen[n.Name] {
			return fmt.Errorf("cluster %q: duplicate node %q", c.Name, n.Name)
		}
		seen[n.Name] = true
	}
	return nil
}

// Node returns the description of the named node.
func (c ClusterDesc) Node(name string) (NodeDesc, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeDesc{}, false
}

// FileSystemsOf returns the file systems reachable from host.
// Unknown hosts reach none.
func (c ClusterDesc) FileSystemsOf(host string) []string {
	n, ok := c.Node(host)
	if !ok {
		return nil
	}
	return n.FileSystems
}

// FileSystems returns every file system named in the description, sorted.
func (c ClusterDesc) FileSystems() []string {
	set := make(map[string]struct{})
	for _, n := range c.Nodes {
		for _, fs := range n.FileSystems {
			set[fs] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for fs := range set {
		out = append(out, fs)
	}
	sort.Strings(out)
	return out
}

// ErrUnknownFormat is returned for description files that are neither TOML nor YAML.
var ErrUnknownFormat = errors.New("unknown description format")

// LoadClusterDesc reads a cluster description from a .toml, .yaml or .yml file.
func LoadClusterDesc(path string) (ClusterDesc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClusterDesc{}, fmt.Errorf("failed to read cluster description: %w", err)
	}
	var desc ClusterDesc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &desc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &desc)
	default:
		return ClusterDesc{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return ClusterDesc{}, fmt.Errorf("failed to parse cluster description %s: %w", path, err)
	}
	if err := desc.Validate(); err != nil {
		return ClusterDesc{}, err
	}
	return desc, nil
}
