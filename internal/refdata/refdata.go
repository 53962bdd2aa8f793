// Package refdata loads the canonical transfer-agent reference table.
//
// The table is a YAML mapping from stable canonical identifier to display
// name plus known aliases. It is loaded once per run and injected read-only
// into the canonicalizer; a missing or invalid table is fatal to the run.
package refdata

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Agent is one canonical transfer agent identity. Brand optionally names the
// parent brand the agent rolls up to in market-share reporting; subsidiaries
// and acquired registrars share a brand while keeping distinct ids.
type Agent struct {
	ID      string   `yaml:"-" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Brand   string   `yaml:"brand,omitempty" json:"brand,omitempty"`
	Aliases []string `yaml:"aliases" json:"aliases,omitempty"`
}

// BrandID returns the market-share rollup key: the brand when set, otherwise
// the agent's own id.
func (a Agent) BrandID() string {
	if a.Brand != "" {
		return a.Brand
	}
	return a.ID
}

// Table is the immutable canonical agent reference table.
type Table struct {
	agents []Agent
	byID   map[string]Agent
}

// Load reads the reference table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read %s", path)
	}
	return Parse(data)
}

// Parse builds a Table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var raw map[string]Agent
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "refdata: parse yaml")
	}

	agents := make([]Agent, 0, len(raw))
	for id, a := range raw {
		a.ID = id
		agents = append(agents, a)
	}
	return New(agents)
}

// New builds a Table from a slice of agents. Used by tests to substitute
// fixtures for the file-backed table.
func New(agents []Agent) (*Table, error) {
	byID := make(map[string]Agent, len(agents))
	for _, a := range agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, eris.New("refdata: agent with empty id")
		}
		if strings.TrimSpace(a.Name) == "" {
			return nil, eris.Errorf("refdata: agent %s has empty name", id)
		}
		if _, dup := byID[id]; dup {
			return nil, eris.Errorf("refdata: duplicate agent id %s", id)
		}
		a.ID = id
		byID[id] = a
	}

	sorted := make([]Agent, 0, len(byID))
	for _, a := range byID {
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return &Table{agents: sorted, byID: byID}, nil
}

// Agents returns all agents ordered by canonical id.
func (t *Table) Agents() []Agent {
	out := make([]Agent, len(t.agents))
	copy(out, t.agents)
	return out
}

// Get returns the agent with the given canonical id.
func (t *Table) Get(id string) (Agent, bool) {
	a, ok := t.byID[id]
	return a, ok
}

// Len returns the number of canonical agents.
func (t *Table) Len() int { return len(t.agents) }
