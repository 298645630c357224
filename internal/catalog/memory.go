package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/metascaler/internal/core"
)

// Fixture is the YAML document a Memory catalog is loaded from.
//
//	assets:
//	  - id: col-1
//	    name: customer_id
//	    type: Column
//	custom_metadata:
//	  Data Governance: [Business Owner, Steward]
type Fixture struct {
	Assets         []FixtureAsset      `yaml:"assets"`
	CustomMetadata map[string][]string `yaml:"custom_metadata"`
}

// FixtureAsset is one asset in a fixture. Status defaults to ACTIVE.
type FixtureAsset struct {
	ID          string                       `yaml:"id"`
	Name        string                       `yaml:"name"`
	Type        string                       `yaml:"type"`
	Status      string                       `yaml:"status,omitempty"`
	Description string                       `yaml:"description,omitempty"`
	UserOwners  []string                     `yaml:"user_owners,omitempty"`
	GroupOwners []string                     `yaml:"group_owners,omitempty"`
	Certificate string                       `yaml:"certificate,omitempty"`
	Custom      map[string]map[string]string `yaml:"custom_metadata,omitempty"`
}

// Memory is a thread-safe in-memory catalog. Mutations are applied to its
// assets and recorded in submission order.
type Memory struct {
	mu      sync.RWMutex
	assets  map[string]*FixtureAsset
	order   []string
	schema  map[string]map[string]bool
	applied []core.ChangeSet
}

var _ core.Catalog = (*Memory)(nil)

// LoadFixture reads a YAML fixture file into a Memory catalog.
func LoadFixture(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog fixture: %w", err)
	}
	m, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("catalog fixture %s: %w", path, err)
	}
	return m, nil
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Memory, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return NewMemory(f)
}

// NewMemory builds a catalog from a fixture. Asset IDs must be unique.
func NewMemory(f Fixture) (*Memory, error) {
	m := &Memory{
		assets: make(map[string]*FixtureAsset, len(f.Assets)),
		schema: make(map[string]map[string]bool, len(f.CustomMetadata)),
	}
	for set, fields := range f.CustomMetadata {
		m.schema[set] = make(map[string]bool, len(fields))
		for _, field := range fields {
			m.schema[set][field] = true
		}
	}
	for _, a := range f.Assets {
		if err := m.AddAsset(a); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddAsset registers an asset.
func (m *Memory) AddAsset(a FixtureAsset) error {
	if a.ID == "" {
		return fmt.Errorf("asset %q has no id", a.Name)
	}
	if a.Status == "" {
		a.Status = StatusActive
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[a.ID]; ok {
		return fmt.Errorf("duplicate asset id %q", a.ID)
	}
	m.assets[a.ID] = &a
	m.order = append(m.order, a.ID)
	return nil
}

func (m *Memory) FindByExactName(ctx context.Context, name string, types []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, id := range m.order {
		a := m.assets[id]
		if a.Name != name || !strings.EqualFold(a.Status, StatusActive) {
			continue
		}
		if len(types) > 0 && !containsFold(types, a.Type) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ApplyChangeSet merges a change-set into the target asset. Unknown assets
// and custom-metadata sets or fields the schema does not define are
// rejected without changing anything.
func (m *Memory) ApplyChangeSet(ctx context.Context, cs *core.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[cs.AssetID]
	if !ok {
		return m.reject(cs, "asset not found")
	}
	for set, fields := range cs.Custom {
		known, ok := m.schema[set]
		if !ok {
			return m.reject(cs, fmt.Sprintf("unknown custom metadata set %q", set))
		}
		for field := range fields {
			if !known[field] {
				return m.reject(cs, fmt.Sprintf("unknown field %q in custom metadata set %q", field, set))
			}
		}
	}

	u := cs.Standard
	if u.Description != "" {
		a.Description = u.Description
	}
	if len(u.UserOwners) > 0 {
		a.UserOwners = append([]string(nil), u.UserOwners...)
	}
	if len(u.GroupOwners) > 0 {
		a.GroupOwners = append([]string(nil), u.GroupOwners...)
	}
	if u.Certificate != "" {
		a.Certificate = string(u.Certificate)
	}
	for set, fields := range cs.Custom {
		if a.Custom == nil {
			a.Custom = make(map[string]map[string]string)
		}
		if a.Custom[set] == nil {
			a.Custom[set] = make(map[string]string)
		}
		for field, v := range fields {
			a.Custom[set][field] = v
		}
	}

	m.applied = append(m.applied, *cs)
	return nil
}

func (m *Memory) reject(cs *core.ChangeSet, msg string) error {
	return &core.MutationError{AssetID: cs.AssetID, Kind: core.MutationRejected, Err: errors.New(msg)}
}

// Asset returns a copy of an asset's current state.
func (m *Memory) Asset(id string) (FixtureAsset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return FixtureAsset{}, false
	}
	return *a, true
}

// Applied returns the change-sets accepted so far, in submission order.
func (m *Memory) Applied() []core.ChangeSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.ChangeSet(nil), m.applied...)
}

// Sets lists the custom-metadata sets the schema defines.
func (m *Memory) Sets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sets := make([]string, 0, len(m.schema))
	for s := range m.schema {
		sets = append(sets, s)
	}
	sort.Strings(sets)
	return sets
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
