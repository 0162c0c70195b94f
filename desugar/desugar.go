package desugar

import (
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
)

// Module runs every pass over m in order: defaultable flags, record
// attached function lifting, default initializers, then call sites.
// resolve may be nil, in which case callees outside m are trusted to take
// the flags their call sites provide.
func Module(m *ir.Module, resolve Resolver) error {
	for _, node := range m.Nodes() {
		for _, fn := range node.OwnedFunctions() {
			AddDefaultableFlags(fn)
		}
	}
	if err := RewriteRecordInits(m); err != nil {
		return err
	}

	local := func(id ir.ModuleID, name string) *ir.Function {
		if id.IsZero() || id.Key() == m.ID.Key() {
			if fn := m.Function(name); fn != nil {
				return fn
			}
			for _, td := range m.TypeDefs {
				for _, fn := range td.Functions {
					if symbols.AttachedName(td.Name, fn.Name) == name {
						return fn
					}
				}
			}
		}
		if resolve != nil {
			return resolve(id, name)
		}
		return nil
	}

	var errs []error
	for _, node := range m.Nodes() {
		for _, fn := range node.OwnedFunctions() {
			InjectDefaultParamInits(fn)
			if err := RewriteCalls(fn, local); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, g := range m.Globals {
		holder := &ir.Function{Name: g.Name, Body: g.Init}
		if err := RewriteCalls(holder, local); err != nil {
			errs = append(errs, err)
		}
		g.Init = holder.Body
	}
	return errors.Combine(errs...)
}
