package emit

import (
	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/symbols"
	"github.com/wippyai/wasm-backend/wasm"
)

const donePrefix = "$done$"

func doneGuardName(lifecycle string) string {
	return donePrefix + lifecycle
}

// initExtras lists the synthesized functions of the init unit in index
// order. They follow the unit's IR functions.
func (b *builder) initExtras() []string {
	var out []string
	if len(b.plan.Module.TypeDefs) > 0 {
		out = append(out, symbols.CreateTypesName)
	}
	out = append(out, symbols.ClinitName)
	if b.plan.Module.Function(symbols.MainName) != nil {
		out = append(out, symbols.MainWrapperName)
	}
	return out
}

// defineInitState declares the module's variables, their locks, the
// service flag, the type descriptors and the lifecycle done-guards.
func (b *builder) defineInitState() error {
	m := b.plan.Module
	define := func(name string, vt wasm.ValType, exported bool) error {
		idx := uint32(b.mod.NumImportedGlobals() + len(b.mod.Globals))
		b.mod.Globals = append(b.mod.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: vt, Mutable: true},
			Init: wasm.ConstExpr(vt),
		})
		b.globals[globalKey(b.id, name)] = idx
		if !exported {
			return nil
		}
		return b.export(name, wasm.KindGlobal, idx)
	}

	for _, g := range m.Globals {
		vt, ok := abi.Scalar(g.Type)
		if !ok {
			return b.fail(errors.KindUnsupported, "variable %q has non-scalar type %s", g.Name, abi.TypeName(g.Type))
		}
		if err := define(symbols.CleanupName(g.Name), vt, true); err != nil {
			return err
		}
	}
	for _, g := range m.Globals {
		if err := define(symbols.LockName(g.Name), wasm.ValI32, true); err != nil {
			return err
		}
	}
	if err := define(symbols.ServiceFlagName, wasm.ValI32, true); err != nil {
		return err
	}
	for _, td := range m.TypeDefs {
		if err := define(symbols.TypePrefix+symbols.CleanupName(td.Name), wasm.ValI32, true); err != nil {
			return err
		}
	}
	for _, name := range symbols.Lifecycle {
		if err := define(doneGuardName(name), wasm.ValI32, false); err != nil {
			return err
		}
	}
	return nil
}

// addTrampolines reserves the first lambda slots for the lifecycle and
// main trampolines.
func (b *builder) addTrampolines() error {
	for _, target := range b.unit.Trampolines {
		entry, ok := b.symbols.Lookup(b.id, target)
		if !ok {
			return b.fail(errors.KindNotFound, "trampoline target %s", target)
		}
		if _, err := b.lambdas.add(Lambda{
			Name:       symbols.TrampolineName(target),
			Module:     b.id,
			Target:     target,
			TargetUnit: entry.Unit,
			TargetSlot: entry.Slot,
			Descriptor: entry.Descriptor,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) emitInitExtras() error {
	m := b.plan.Module
	void := b.mod.AddType(wasm.FuncType{})
	for _, name := range b.initExtras() {
		idx := b.extras[name]
		code := wasm.NewCode()
		switch name {
		case symbols.CreateTypesName:
			for i, td := range m.TypeDefs {
				g, err := b.global(b.id, symbols.TypePrefix+symbols.CleanupName(td.Name))
				if err != nil {
					return err
				}
				code.I32Const(int32(i + 1)).GlobalSet(g)
			}
		case symbols.ClinitName:
			for _, g := range m.Globals {
				lock, err := b.global(b.id, symbols.LockName(g.Name))
				if err != nil {
					return err
				}
				code.I32Const(0).GlobalSet(lock)
			}
			flag, err := b.global(b.id, symbols.ServiceFlagName)
			if err != nil {
				return err
			}
			available := int32(0)
			if m.HasServices() {
				available = 1
			}
			code.I32Const(available).GlobalSet(flag)
			start := idx
			b.mod.Start = &start
		case symbols.MainWrapperName:
			code.Call(b.local[symbols.InitName]).Call(b.local[symbols.StartName])
			if err := b.export(symbols.MainWrapperName, wasm.KindFunc, idx); err != nil {
				return err
			}
		}
		code.End()
		b.mod.Funcs = append(b.mod.Funcs, void)
		b.mod.Code = append(b.mod.Code, wasm.FuncBody{Code: code.Bytes()})
		b.names[idx] = name
	}
	return nil
}
