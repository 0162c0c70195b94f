package desugar

import (
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
)

// Resolver finds a callee anywhere in the build. A zero module id means
// the module being rewritten.
type Resolver func(module ir.ModuleID, name string) *ir.Function

// RewriteCalls appends the provided flags of every call to a function
// with defaultable parameters. Calls to extern functions pass no flags.
func RewriteCalls(fn *ir.Function, resolve Resolver) error {
	var err error
	fn.Body = ir.Rewrite(fn.Body, func(ins ir.Instruction) []ir.Instruction {
		call, ok := ins.(ir.Call)
		if !ok || len(call.Provided) == 0 {
			return []ir.Instruction{ins}
		}
		if resolve != nil {
			callee := resolve(call.Module, call.Name)
			if callee != nil && callee.Extern() {
				call.Provided = nil
				return []ir.Instruction{call}
			}
			if callee != nil {
				want := Flags(callee)
				if want == 0 {
					want = defaultables(callee)
				}
				if want != len(call.Provided) && err == nil {
					err = errors.New(errors.PhaseDesugar, errors.KindSignature).
						Path(fn.Name).
						Detail("call to %s passes %d provided flags, callee takes %d", call.Name, len(call.Provided), want).
						Build()
				}
			}
		}
		out := make([]ir.Instruction, 0, len(call.Provided)+1)
		for _, p := range call.Provided {
			out = append(out, ir.Bool(p))
		}
		call.Provided = nil
		return append(out, call)
	})
	return err
}

func defaultables(fn *ir.Function) int {
	n := 0
	for _, p := range fn.Sig.Params {
		if p.Defaultable {
			n++
		}
	}
	return n
}

// RewriteRecordInits moves the attached functions of record types to
// module level under "<Type>.<func>", the record value becoming the first
// parameter. Records get no value unit of their own.
func RewriteRecordInits(m *ir.Module) error {
	for _, td := range m.TypeDefs {
		if td.Kind != ir.TypeRecord || len(td.Functions) == 0 {
			continue
		}
		for _, fn := range td.Functions {
			name := symbols.AttachedName(td.Name, fn.Name)
			if m.Function(name) != nil {
				return errors.NameCollision(m.ID.String(), name, td.Name+"."+fn.Name, name)
			}
			if fn.Sig.Receiver == nil {
				fn.Sig.Receiver = ir.ReceiverType(td)
			}
			fn.Name = name
			if fn.Pos == nil {
				fn.Pos = td.Pos
			}
			m.Functions = append(m.Functions, fn)
		}
		td.Functions = nil
	}
	return nil
}
