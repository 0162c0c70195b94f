package desugar

import (
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/ir"
)

// FlagPrefix starts the name of every synthesized "argument provided"
// parameter.
const FlagPrefix = "$provided$"

// FlagName returns the name of the flag parameter for param.
func FlagName(param string) string {
	return FlagPrefix + param
}

// IsFlag reports whether p is a synthesized flag parameter.
func IsFlag(p ir.Param) bool {
	return strings.HasPrefix(p.Name, FlagPrefix)
}

// Flags returns the number of flag parameters fn carries.
func Flags(fn *ir.Function) int {
	n := 0
	for _, p := range fn.Sig.Params {
		if IsFlag(p) {
			n++
		}
	}
	return n
}

// AddDefaultableFlags appends one bool parameter per defaultable parameter
// of fn and shifts the indices of its non-parameter locals past them.
// Extern functions keep the signature of their host binding. Running the
// pass twice is a no-op.
func AddDefaultableFlags(fn *ir.Function) int {
	if fn.Extern() || Flags(fn) > 0 {
		return 0
	}
	var flags []ir.Param
	for _, p := range fn.Sig.Params {
		if p.Defaultable {
			flags = append(flags, ir.Param{Name: FlagName(p.Name), Type: wit.Bool{}})
		}
	}
	if len(flags) == 0 {
		return 0
	}

	firstLocal := uint32(fn.NumParams())
	shift := uint32(len(flags))
	shiftLocal := func(ins ir.Instruction) []ir.Instruction {
		switch v := ins.(type) {
		case ir.LoadLocal:
			if v.Index >= firstLocal {
				v.Index += shift
			}
			return []ir.Instruction{v}
		case ir.StoreLocal:
			if v.Index >= firstLocal {
				v.Index += shift
			}
			return []ir.Instruction{v}
		}
		return []ir.Instruction{ins}
	}
	fn.Body = ir.Rewrite(fn.Body, shiftLocal)
	for i := range fn.Sig.Params {
		if fn.Sig.Params[i].Default != nil {
			fn.Sig.Params[i].Default = ir.Rewrite(fn.Sig.Params[i].Default, shiftLocal)
		}
	}
	fn.Sig.Params = append(fn.Sig.Params, flags...)
	return len(flags)
}

// InjectDefaultParamInits prepends, for every defaultable parameter with a
// default, code that computes the default and stores it into the parameter
// when its flag is false. The parameters stop being defaultable afterwards.
func InjectDefaultParamInits(fn *ir.Function) {
	flagIndex := make(map[string]uint32)
	for i, p := range fn.Sig.Params {
		if IsFlag(p) {
			flagIndex[strings.TrimPrefix(p.Name, FlagPrefix)] = paramLocal(fn, i)
		}
	}

	var prologue []ir.Instruction
	for i := range fn.Sig.Params {
		p := &fn.Sig.Params[i]
		if !p.Defaultable {
			continue
		}
		flag, ok := flagIndex[p.Name]
		if !ok {
			continue
		}
		if len(p.Default) > 0 {
			assign := append(append([]ir.Instruction(nil), p.Default...), ir.StoreLocal{Index: paramLocal(fn, i)})
			prologue = append(prologue,
				ir.LoadLocal{Index: flag},
				ir.Unary{Op: ir.OpNot, Type: wit.Bool{}},
				ir.If{Then: assign},
			)
		}
		p.Defaultable = false
		p.Default = nil
	}
	if len(prologue) > 0 {
		fn.Body = append(prologue, fn.Body...)
	}
}

func paramLocal(fn *ir.Function, i int) uint32 {
	if fn.Sig.Receiver != nil {
		return uint32(i + 1)
	}
	return uint32(i)
}
