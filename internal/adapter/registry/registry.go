package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// DriverFactory builds a code-backed provider from a compiled spec slot.
// The spec is nil when the driver has no YAML counterpart.
type DriverFactory func(spec *Spec) domain.Provider

type codeDriver struct {
	name    string
	factory DriverFactory
}

// snapshot is one immutable view of the provider set. Readers in flight
// keep the snapshot they started with; Reload swaps the whole value.
type snapshot struct {
	byName  map[string]domain.Provider
	ordered []domain.Provider
}

// Registry exposes a stable ordered provider list: code drivers first in
// registration order, then YAML providers in file+document order. A code
// driver replaces a YAML descriptor of the same name.
type Registry struct {
	yamlPaths []string
	drivers   []codeDriver
	buildData func(*Spec) domain.Provider
	log       *slog.Logger

	snap atomic.Pointer[snapshot]
}

// New constructs a Registry. buildData turns a compiled YAML spec into the
// generic data-driven provider; it is injected so the registry stays free
// of driver dependencies.
func New(yamlPaths []string, buildData func(*Spec) domain.Provider, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{yamlPaths: yamlPaths, buildData: buildData, log: log}
}

// Register adds a code driver constructor. Registration order fixes the
// driver's position in the provider list. Must be called before Load.
func (r *Registry) Register(name string, f DriverFactory) {
	r.drivers = append(r.drivers, codeDriver{name: name, factory: f})
}

// Load reads all YAML inputs, compiles descriptors, merges code drivers
// and installs the first snapshot.
func (r *Registry) Load() error {
	return r.Reload()
}

// Reload re-reads all inputs and atomically replaces the provider set.
// Two successive reloads with unchanged inputs yield the same ordered list.
func (r *Registry) Reload() error {
	specs, order, err := r.loadYAML()
	if err != nil {
		return err
	}

	s := &snapshot{byName: make(map[string]domain.Provider)}

	// Code drivers first, by registration order. A driver with a YAML
	// counterpart consumes that spec and overrides the data provider.
	overridden := make(map[string]bool)
	for _, d := range r.drivers {
		spec := specs[d.name]
		if spec != nil {
			overridden[d.name] = true
			r.log.Info("code driver overrides yaml provider", slog.String("provider", d.name))
		}
		p := d.factory(spec)
		s.byName[d.name] = p
		s.ordered = append(s.ordered, p)
	}

	// YAML providers in file+document order.
	for _, name := range order {
		if overridden[name] {
			continue
		}
		p := r.buildData(specs[name])
		s.byName[name] = p
		s.ordered = append(s.ordered, p)
	}

	r.snap.Store(s)
	return nil
}

func (r *Registry) loadYAML() (map[string]*Spec, []string, error) {
	specs := make(map[string]*Spec)
	var order []string
	for _, path := range r.yamlPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				r.log.Warn("providers yaml missing, skipping", slog.String("path", path))
				continue
			}
			return nil, nil, fmt.Errorf("read providers yaml %s: %w", path, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, nil, fmt.Errorf("parse providers yaml %s: %w", path, err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, nil, fmt.Errorf("%w: providers yaml %s: top level must be a map", domain.ErrInvalidArgument, path)
		}
		// Walk pairs in document order so the provider order is stable.
		for i := 0; i+1 < len(root.Content); i += 2 {
			name := root.Content[i].Value
			var d Descriptor
			if err := root.Content[i+1].Decode(&d); err != nil {
				r.log.Warn("provider excluded: bad descriptor",
					slog.String("provider", name), slog.Any("error", err))
				continue
			}
			spec, err := d.Compile(name)
			if err != nil {
				r.log.Warn("provider excluded at load",
					slog.String("provider", name), slog.Any("error", err))
				continue
			}
			if _, dup := specs[name]; !dup {
				order = append(order, name)
			}
			specs[name] = spec
		}
	}
	return specs, order, nil
}

func (r *Registry) snapshot() *snapshot {
	s := r.snap.Load()
	if s == nil {
		return &snapshot{byName: map[string]domain.Provider{}}
	}
	return s
}

// Providers returns the stable ordered provider list.
func (r *Registry) Providers() []domain.Provider {
	return r.snapshot().ordered
}

// Names returns provider names in registry order.
func (r *Registry) Names() []string {
	s := r.snapshot()
	out := make([]string, 0, len(s.ordered))
	for _, p := range s.ordered {
		out = append(out, p.Name())
	}
	return out
}

// Select resolves a subset by name, silently dropping unknown names.
// An empty subset selects every provider, in registry order.
func (r *Registry) Select(names []string) []domain.Provider {
	s := r.snapshot()
	if len(names) == 0 {
		return s.ordered
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]domain.Provider, 0, len(names))
	for _, p := range s.ordered {
		if want[p.Name()] {
			out = append(out, p)
		}
	}
	return out
}
