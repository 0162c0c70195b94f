package deps

import (
	"sort"
	"sync"

	"github.com/coreos/go-semver/semver"

	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
)

// Registry holds the IR of every module known to a build session, keyed by
// "org/name" with one entry per version.
type Registry struct {
	modules map[string][]registered
	mu      sync.RWMutex
}

type registered struct {
	version *semver.Version
	module  *ir.Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string][]registered)}
}

// Register adds a module. Registering the same org/name/version again
// replaces the earlier IR.
func (r *Registry) Register(m *ir.Module) error {
	if m == nil || m.ID.IsZero() {
		return errors.InvalidInput(errors.PhaseClosure, "module without a name")
	}
	v, err := m.ID.SemVer()
	if err != nil {
		return errors.Wrap(errors.PhaseClosure, errors.KindInvalidInput, err, "invalid module version")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := m.ID.Key()
	list := r.modules[key]
	for i := range list {
		if list[i].version.Equal(*v) {
			list[i].module = m
			return nil
		}
	}
	list = append(list, registered{version: v, module: m})
	sort.Slice(list, func(i, j int) bool { return list[j].version.LessThan(*list[i].version) })
	r.modules[key] = list
	return nil
}

// Resolve finds the module an import refers to. A versioned import matches
// the exact version, or else the highest registered version with the same
// major that is not older. An unversioned import matches the highest
// version.
func (r *Registry) Resolve(id ir.ModuleID) (*ir.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.modules[id.Key()]
	if len(list) == 0 {
		return nil, false
	}
	if id.Version == "" {
		return list[0].module, true
	}
	want, err := semver.NewVersion(id.Version)
	if err != nil {
		return nil, false
	}
	for _, e := range list {
		if e.version.Equal(*want) {
			return e.module, true
		}
	}
	// list is sorted highest first
	for _, e := range list {
		if e.version.Major == want.Major && !e.version.LessThan(*want) {
			return e.module, true
		}
	}
	return nil, false
}

// Versions returns the registered versions of org/name, highest first.
func (r *Registry) Versions(id ir.ModuleID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, e := range r.modules[id.Key()] {
		out = append(out, e.module.ID.Version)
	}
	return out
}

// Len returns the number of registered module versions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.modules {
		n += len(list)
	}
	return n
}

// Clear drops every registered module.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = make(map[string][]registered)
}
