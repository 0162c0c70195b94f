package natives

import (
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/wasm"
)

// Binding is a host implementation that extern functions can bind to.
// Units import it as Namespace.Name.
type Binding struct {
	Namespace string
	Name      string
	Params    []wit.Type
	Result    wit.Type

	// Internal bindings are reserved for the runtime's own modules and may
	// not be bound by the entry module.
	Internal bool

	// Handler implements the binding when units are loaded by the engine.
	// Bindings without one must be provided by another loaded unit.
	Handler api.GoModuleFunc
}

// Key returns "namespace#name".
func (b *Binding) Key() string {
	return b.Namespace + "#" + b.Name
}

// CoreType returns the flattened core signature of the binding.
func (b *Binding) CoreType() wasm.FuncType {
	return abi.DescribeTypes(b.Params, b.Result).Type
}

// Registry holds host bindings by namespace and name.
type Registry struct {
	funcs map[string]map[string]*Binding
	mu    sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]map[string]*Binding),
	}
}

// Register adds b, replacing a binding with the same key.
func (r *Registry) Register(b *Binding) error {
	if b.Namespace == "" {
		return errors.InvalidInput(errors.PhaseLink, "namespace cannot be empty")
	}
	if b.Name == "" {
		return errors.InvalidInput(errors.PhaseLink, "function name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[b.Namespace] == nil {
		r.funcs[b.Namespace] = make(map[string]*Binding)
	}
	r.funcs[b.Namespace][b.Name] = b
	return nil
}

// RegisterFunc registers a handler with the given wit signature.
func (r *Registry) RegisterFunc(namespace, name string, params []wit.Type, result wit.Type, fn api.GoModuleFunc) error {
	return r.Register(&Binding{
		Namespace: namespace,
		Name:      name,
		Params:    params,
		Result:    result,
		Handler:   fn,
	})
}

// Lookup returns the binding namespace.name.
func (r *Registry) Lookup(namespace, name string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.funcs[namespace][name]
	return b, ok
}

// Namespaces returns the registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Bindings returns the bindings of namespace sorted by name.
func (r *Registry) Bindings(namespace string) []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Binding, 0, len(r.funcs[namespace]))
	for _, b := range r.funcs[namespace] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
