package deps

import (
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
)

// Builder computes dependency closures against a registry and memoizes
// them per module. It is not safe for concurrent use; planning runs
// sequentially.
type Builder struct {
	registry *Registry
	cache    map[string][]ir.ModuleID
}

// NewBuilder returns a builder resolving imports through r.
func NewBuilder(r *Registry) *Builder {
	return &Builder{registry: r, cache: make(map[string][]ir.ModuleID)}
}

// Closure returns the modules whose lifecycle must run before m's, in
// initialization order: m's builtin imports, then every explicit import
// after its own transitive imports. Each module appears once, at its first
// discovery.
func (b *Builder) Closure(m *ir.Module) ([]ir.ModuleID, error) {
	if list, ok := b.cache[m.ID.String()]; ok {
		return append([]ir.ModuleID(nil), list...), nil
	}

	w := &walk{
		builder: b,
		seen:    map[string]bool{m.ID.Key(): true},
	}
	for _, id := range BuiltinImports(m.ID) {
		w.add(id)
	}
	for _, imp := range m.Imports {
		if err := w.visit(m.ID, imp); err != nil {
			return nil, err
		}
	}

	b.cache[m.ID.String()] = w.out
	return append([]ir.ModuleID(nil), w.out...), nil
}

// Clear drops memoized closures.
func (b *Builder) Clear() {
	b.cache = make(map[string][]ir.ModuleID)
}

type walk struct {
	builder *Builder
	seen    map[string]bool
	out     []ir.ModuleID
}

func (w *walk) add(id ir.ModuleID) {
	if w.seen[id.Key()] {
		return
	}
	w.seen[id.Key()] = true
	w.out = append(w.out, id)
}

func (w *walk) visit(from, imp ir.ModuleID) error {
	if w.seen[imp.Key()] {
		return nil
	}
	dep, ok := w.builder.registry.Resolve(imp)
	if !ok {
		if IsBuiltin(imp) {
			w.add(imp)
			return nil
		}
		return errors.UnresolvedModule(from.String(), imp.String())
	}
	// mark before descending so import cycles terminate
	w.seen[imp.Key()] = true
	for _, next := range dep.Imports {
		if err := w.visit(dep.ID, next); err != nil {
			return err
		}
	}
	w.out = append(w.out, dep.ID)
	return nil
}
