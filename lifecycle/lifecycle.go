// Package lifecycle synthesizes the init, start and stop functions of a
// module.
//
// init runs the init function of every dependency in closure order, then
// the module's variable initializers, type registration and the user's
// __init hook. start does the same for start functions and finally calls
// main. stop only runs the module's own __stop hook: each dependency stops
// through its own shutdown listener.
package lifecycle

import (
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
)

// Synthesize fills the bodies of m's lifecycle functions. m must already
// be partitioned, so that Functions[0..2] are init, start and stop.
func Synthesize(m *ir.Module, deps []ir.ModuleID) error {
	if len(m.Functions) < len(symbols.Lifecycle) {
		return errors.IllegalState(errors.PhaseLifecycle, "module "+m.ID.String()+" has no lifecycle functions")
	}
	for i, name := range symbols.Lifecycle {
		if m.Functions[i].Name != name {
			return errors.New(errors.PhaseLifecycle, errors.KindIllegalState).
				Module(m.ID.String()).
				Detail("function %d is %q, want %q", i, m.Functions[i].Name, name).
				Build()
		}
	}

	initBody, err := Init(m, deps)
	if err != nil {
		return err
	}
	startBody, err := Start(m, deps)
	if err != nil {
		return err
	}
	stopBody, err := Stop(m)
	if err != nil {
		return err
	}
	bodies := [][]ir.Instruction{initBody, startBody, stopBody}
	for i, body := range bodies {
		fn := m.Functions[i]
		fn.Sig = ir.Signature{}
		fn.Locals = nil
		fn.Body = body
	}
	return nil
}

// Init returns the body of m's init function.
func Init(m *ir.Module, deps []ir.ModuleID) ([]ir.Instruction, error) {
	var body []ir.Instruction
	for _, dep := range deps {
		body = append(body, ir.Call{Module: dep, Name: symbols.InitName})
	}
	for _, g := range m.Globals {
		if len(g.Init) == 0 {
			continue
		}
		body = append(body, g.Init...)
		body = append(body, ir.StoreGlobal{Name: g.Name, Type: g.Type})
	}
	if len(m.TypeDefs) > 0 {
		body = append(body, ir.Call{Name: symbols.CreateTypesName})
	}
	hook, err := hookCall(m, symbols.UserInitName)
	if err != nil {
		return nil, err
	}
	return append(body, hook...), nil
}

// Start returns the body of m's start function.
func Start(m *ir.Module, deps []ir.ModuleID) ([]ir.Instruction, error) {
	var body []ir.Instruction
	for _, dep := range deps {
		body = append(body, ir.Call{Module: dep, Name: symbols.StartName})
	}
	main, err := hookCall(m, symbols.MainName)
	if err != nil {
		return nil, err
	}
	return append(body, main...), nil
}

// Stop returns the body of m's stop function.
func Stop(m *ir.Module) ([]ir.Instruction, error) {
	return hookCall(m, symbols.UserStopName)
}

func hookCall(m *ir.Module, name string) ([]ir.Instruction, error) {
	fn := m.Function(name)
	if fn == nil {
		return nil, nil
	}
	if fn.NumParams() > 0 {
		return nil, errors.New(errors.PhaseLifecycle, errors.KindSignature).
			Module(m.ID.String()).
			Path(name).
			Detail("%s must not take parameters", name).
			Build()
	}
	out := []ir.Instruction{ir.Call{Name: name}}
	if fn.Sig.Result != nil {
		out = append(out, ir.Drop{Type: fn.Sig.Result})
	}
	return out, nil
}
