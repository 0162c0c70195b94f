package natives

import (
	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
)

// InteropValidator checks interop declarations against the registry.
type InteropValidator struct {
	registry *Registry
	entry    bool
}

// NewInteropValidator returns a validator over r.
func NewInteropValidator(r *Registry) *InteropValidator {
	return &InteropValidator{registry: r}
}

// SetEntryModuleValidation switches between the rules for the entry module
// (true) and for dependencies compiled along with it (false).
func (v *InteropValidator) SetEntryModuleValidation(entry bool) {
	v.entry = entry
}

// EntryModuleValidation reports the current mode.
func (v *InteropValidator) EntryModuleValidation() bool {
	return v.entry
}

// Validate resolves fn's interop declaration. It returns a not_found error
// when the registry has no such binding, so callers can fall back to the
// name-based cache.
func (v *InteropValidator) Validate(fn *ir.Function) (*Binding, error) {
	decl := fn.Interop
	if decl == nil {
		return nil, errors.InvalidInput(errors.PhaseLink, "function "+fn.Name+" has no interop declaration")
	}
	b, ok := v.registry.Lookup(decl.Namespace, decl.Name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLink, "binding", decl.Namespace+"#"+decl.Name)
	}
	if b.Internal && v.entry {
		return nil, errors.New(errors.PhaseLink, errors.KindPermission).
			Path(fn.Name).
			Value(b.Key()).
			Detail("binding %s is internal to the runtime", b.Key()).
			Build()
	}
	want := abi.Describe(fn.Sig).Type
	if got := b.CoreType(); !got.Equal(want) {
		return nil, errors.New(errors.PhaseLink, errors.KindSignature).
			Path(fn.Name).
			Value(b.Key()).
			Detail("binding %s has type %s, function declares %s", b.Key(), got, want).
			Build()
	}
	return b, nil
}
