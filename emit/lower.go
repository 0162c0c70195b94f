package emit

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
	"github.com/wippyai/wasm-backend/wasm"
)

// lowering translates the body of one function.
type lowering struct {
	b      *builder
	fn     *ir.Function
	name   string
	locals *abi.LocalMap
	code   *wasm.Code
}

func newLowering(b *builder, fn *ir.Function, name string) *lowering {
	return &lowering{
		b:      b,
		fn:     fn,
		name:   name,
		locals: abi.MapLocals(fn),
		code:   wasm.NewCode(),
	}
}

func (l *lowering) fail(kind errors.Kind, format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseEmit, kind).
		Module(l.b.id.String()).
		Path(l.b.unit.Name, l.name).
		Detail(format, args...).
		Build()
}

// doneGuard makes a lifecycle function return early on every call after
// the first.
func (l *lowering) doneGuard(name string) error {
	idx, err := l.b.global(l.b.id, doneGuardName(name))
	if err != nil {
		return err
	}
	l.code.GlobalGet(idx).If(wasm.BlockTypeVoid).Op(wasm.OpReturn).End()
	l.code.I32Const(1).GlobalSet(idx)
	return nil
}

func (l *lowering) lower(body []ir.Instruction) error {
	for _, ins := range body {
		if err := l.instruction(ins); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowering) instruction(ins ir.Instruction) error {
	c := l.code
	switch v := ins.(type) {
	case ir.Const:
		return l.constant(v)
	case ir.LoadLocal:
		start, types, ok := l.locals.Flat(v.Index)
		if !ok {
			return l.fail(errors.KindInvalidInput, "local %d out of range", v.Index)
		}
		for i := range types {
			c.LocalGet(start + uint32(i))
		}
	case ir.StoreLocal:
		start, types, ok := l.locals.Flat(v.Index)
		if !ok {
			return l.fail(errors.KindInvalidInput, "local %d out of range", v.Index)
		}
		for i := len(types) - 1; i >= 0; i-- {
			c.LocalSet(start + uint32(i))
		}
	case ir.LoadGlobal:
		idx, err := l.b.global(v.Module, symbols.CleanupName(v.Name))
		if err != nil {
			return err
		}
		c.GlobalGet(idx)
	case ir.StoreGlobal:
		idx, err := l.b.global(v.Module, symbols.CleanupName(v.Name))
		if err != nil {
			return err
		}
		c.GlobalSet(idx)
	case ir.Lock:
		return l.lock(v.Global, wasm.OpI32Add)
	case ir.Unlock:
		return l.lock(v.Global, wasm.OpI32Sub)
	case ir.Binary:
		op, err := l.binary(v)
		if err != nil {
			return err
		}
		c.Op(op)
	case ir.Unary:
		return l.unary(v)
	case ir.Convert:
		return l.convert(v)
	case ir.Call:
		return l.call(v)
	case ir.FPLoad:
		return l.fpLoad(v)
	case ir.FPCall:
		desc := abi.DescribeTypes(v.Params, v.Result)
		c.CallIndirect(l.b.mod.AddType(desc.Type), l.b.ownTable)
	case ir.TypeDesc:
		idx, err := l.b.global(l.b.id, symbols.TypePrefix+symbols.CleanupName(v.Type))
		if err != nil {
			return err
		}
		c.GlobalGet(idx)
	case ir.If:
		c.If(l.blockType(v.Result))
		if err := l.lower(v.Then); err != nil {
			return err
		}
		if len(v.Else) > 0 {
			c.Else()
			if err := l.lower(v.Else); err != nil {
				return err
			}
		}
		c.End()
	case ir.Loop:
		c.Block(wasm.BlockTypeVoid).Loop(wasm.BlockTypeVoid)
		if err := l.lower(v.Cond); err != nil {
			return err
		}
		c.Op(wasm.OpI32Eqz).BrIf(1)
		if err := l.lower(v.Body); err != nil {
			return err
		}
		c.Br(0).End().End()
	case ir.Return:
		c.Op(wasm.OpReturn)
	case ir.Drop:
		n := 1
		if v.Type != nil {
			n = len(abi.ValTypes(v.Type))
		}
		for range n {
			c.Op(wasm.OpDrop)
		}
	case ir.Trap:
		c.Op(wasm.OpUnreachable)
	default:
		return l.fail(errors.KindUnsupported, "instruction %T", ins)
	}
	return nil
}

func (l *lowering) blockType(t wit.Type) int32 {
	flat := abi.ValTypes(t)
	switch len(flat) {
	case 0:
		return wasm.BlockTypeVoid
	case 1:
		return flat[0].BlockType()
	default:
		return int32(l.b.mod.AddType(wasm.FuncType{Results: flat}))
	}
}

func (l *lowering) lock(global string, op byte) error {
	idx, err := l.b.global(l.b.id, symbols.LockName(global))
	if err != nil {
		return err
	}
	l.code.GlobalGet(idx).I32Const(1).Op(op).GlobalSet(idx)
	return nil
}

func (l *lowering) constant(k ir.Const) error {
	vt, ok := abi.Scalar(k.Type)
	if !ok {
		return l.fail(errors.KindUnsupported, "constant of type %s", abi.TypeName(k.Type))
	}
	switch vt {
	case wasm.ValI32, wasm.ValI64:
		v, ok := intValue(k.Value)
		if !ok {
			return l.fail(errors.KindInvalidInput, "%s constant holds %T", abi.TypeName(k.Type), k.Value)
		}
		if vt == wasm.ValI32 {
			l.code.I32Const(int32(v))
		} else {
			l.code.I64Const(v)
		}
	case wasm.ValF32, wasm.ValF64:
		v, ok := floatValue(k.Value)
		if !ok {
			return l.fail(errors.KindInvalidInput, "%s constant holds %T", abi.TypeName(k.Type), k.Value)
		}
		if vt == wasm.ValF32 {
			l.code.F32Const(float32(v))
		} else {
			l.code.F64Const(v)
		}
	}
	return nil
}

func intValue(v any) (int64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}

func floatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

// Opcode rows indexed by ir.BinaryOp. Zero marks an operator the type does
// not support. Integer rows hold the signed variant, followed by the
// unsigned one where they differ.
var (
	i32Ops = [...][2]byte{
		{wasm.OpI32Add, wasm.OpI32Add}, {wasm.OpI32Sub, wasm.OpI32Sub}, {wasm.OpI32Mul, wasm.OpI32Mul},
		{wasm.OpI32DivS, wasm.OpI32DivU}, {wasm.OpI32RemS, wasm.OpI32RemU},
		{wasm.OpI32And, wasm.OpI32And}, {wasm.OpI32Or, wasm.OpI32Or}, {wasm.OpI32Xor, wasm.OpI32Xor},
		{wasm.OpI32Shl, wasm.OpI32Shl}, {wasm.OpI32ShrS, wasm.OpI32ShrU},
		{wasm.OpI32Eq, wasm.OpI32Eq}, {wasm.OpI32Ne, wasm.OpI32Ne},
		{wasm.OpI32LtS, wasm.OpI32LtU}, {wasm.OpI32LeS, wasm.OpI32LeU},
		{wasm.OpI32GtS, wasm.OpI32GtU}, {wasm.OpI32GeS, wasm.OpI32GeU},
	}
	i64Ops = [...][2]byte{
		{wasm.OpI64Add, wasm.OpI64Add}, {wasm.OpI64Sub, wasm.OpI64Sub}, {wasm.OpI64Mul, wasm.OpI64Mul},
		{wasm.OpI64DivS, wasm.OpI64DivU}, {wasm.OpI64RemS, wasm.OpI64RemU},
		{wasm.OpI64And, wasm.OpI64And}, {wasm.OpI64Or, wasm.OpI64Or}, {wasm.OpI64Xor, wasm.OpI64Xor},
		{wasm.OpI64Shl, wasm.OpI64Shl}, {wasm.OpI64ShrS, wasm.OpI64ShrU},
		{wasm.OpI64Eq, wasm.OpI64Eq}, {wasm.OpI64Ne, wasm.OpI64Ne},
		{wasm.OpI64LtS, wasm.OpI64LtU}, {wasm.OpI64LeS, wasm.OpI64LeU},
		{wasm.OpI64GtS, wasm.OpI64GtU}, {wasm.OpI64GeS, wasm.OpI64GeU},
	}
	f32Ops = [...]byte{
		wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div, 0,
		0, 0, 0, 0, 0,
		wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Le, wasm.OpF32Gt, wasm.OpF32Ge,
	}
	f64Ops = [...]byte{
		wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div, 0,
		0, 0, 0, 0, 0,
		wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Le, wasm.OpF64Gt, wasm.OpF64Ge,
	}
)

func (l *lowering) binary(v ir.Binary) (byte, error) {
	vt, ok := abi.Scalar(v.Type)
	if !ok || int(v.Op) >= len(i32Ops) {
		return 0, l.fail(errors.KindUnsupported, "%s on %s", v.Op, abi.TypeName(v.Type))
	}
	variant := 0
	if !abi.Signed(v.Type) {
		variant = 1
	}
	var op byte
	switch vt {
	case wasm.ValI32:
		op = i32Ops[v.Op][variant]
	case wasm.ValI64:
		op = i64Ops[v.Op][variant]
	case wasm.ValF32:
		op = f32Ops[v.Op]
	case wasm.ValF64:
		op = f64Ops[v.Op]
	}
	if op == 0 {
		return 0, l.fail(errors.KindUnsupported, "%s on %s", v.Op, abi.TypeName(v.Type))
	}
	return op, nil
}

func (l *lowering) unary(v ir.Unary) error {
	vt, ok := abi.Scalar(v.Type)
	if !ok {
		return l.fail(errors.KindUnsupported, "%s on %s", v.Op, abi.TypeName(v.Type))
	}
	c := l.code
	switch v.Op {
	case ir.OpNeg:
		switch vt {
		case wasm.ValI32:
			c.I32Const(-1).Op(wasm.OpI32Mul)
		case wasm.ValI64:
			c.I64Const(-1).Op(wasm.OpI64Mul)
		case wasm.ValF32:
			c.Op(wasm.OpF32Neg)
		case wasm.ValF64:
			c.Op(wasm.OpF64Neg)
		}
	case ir.OpNot:
		if _, ok := v.Type.(wit.Bool); ok {
			c.Op(wasm.OpI32Eqz)
			return nil
		}
		switch vt {
		case wasm.ValI32:
			c.I32Const(-1).Op(wasm.OpI32Xor)
		case wasm.ValI64:
			c.I64Const(-1).Op(wasm.OpI64Xor)
		default:
			return l.fail(errors.KindUnsupported, "not on %s", abi.TypeName(v.Type))
		}
	default:
		return l.fail(errors.KindUnsupported, "unary operator %d", v.Op)
	}
	return nil
}

func (l *lowering) convert(v ir.Convert) error {
	from, ok1 := abi.Scalar(v.From)
	to, ok2 := abi.Scalar(v.To)
	if !ok1 || !ok2 {
		return l.fail(errors.KindUnsupported, "conversion %s to %s", abi.TypeName(v.From), abi.TypeName(v.To))
	}
	c := l.code
	pick := func(signed bool, s, u byte) {
		if signed {
			c.Op(s)
		} else {
			c.Op(u)
		}
	}
	pickSat := func(signed bool, s, u uint32) {
		if signed {
			c.Misc(s)
		} else {
			c.Misc(u)
		}
	}
	src, dst := abi.Signed(v.From), abi.Signed(v.To)

	switch {
	case from == to:
		// Same core type: narrowing between small integers is not masked.
	case from == wasm.ValI32 && to == wasm.ValI64:
		pick(src, wasm.OpI64ExtendI32S, wasm.OpI64ExtendI32U)
	case from == wasm.ValI64 && to == wasm.ValI32:
		c.Op(wasm.OpI32WrapI64)
	case from == wasm.ValI32 && to == wasm.ValF32:
		pick(src, wasm.OpF32ConvertI32S, wasm.OpF32ConvertI32U)
	case from == wasm.ValI32 && to == wasm.ValF64:
		pick(src, wasm.OpF64ConvertI32S, wasm.OpF64ConvertI32U)
	case from == wasm.ValI64 && to == wasm.ValF32:
		pick(src, wasm.OpF32ConvertI64S, wasm.OpF32ConvertI64U)
	case from == wasm.ValI64 && to == wasm.ValF64:
		pick(src, wasm.OpF64ConvertI64S, wasm.OpF64ConvertI64U)
	case from == wasm.ValF32 && to == wasm.ValI32:
		pickSat(dst, wasm.MiscI32TruncSatF32S, wasm.MiscI32TruncSatF32U)
	case from == wasm.ValF64 && to == wasm.ValI32:
		pickSat(dst, wasm.MiscI32TruncSatF64S, wasm.MiscI32TruncSatF64U)
	case from == wasm.ValF32 && to == wasm.ValI64:
		pickSat(dst, wasm.MiscI64TruncSatF32S, wasm.MiscI64TruncSatF32U)
	case from == wasm.ValF64 && to == wasm.ValI64:
		pickSat(dst, wasm.MiscI64TruncSatF64S, wasm.MiscI64TruncSatF64U)
	case from == wasm.ValF32 && to == wasm.ValF64:
		c.Op(wasm.OpF64PromoteF32)
	case from == wasm.ValF64 && to == wasm.ValF32:
		c.Op(wasm.OpF32DemoteF64)
	default:
		return l.fail(errors.KindUnsupported, "conversion %s to %s", abi.TypeName(v.From), abi.TypeName(v.To))
	}
	return nil
}

func (l *lowering) call(v ir.Call) error {
	b := l.b
	if b.samePackage(v.Module) && v.Name == symbols.CreateTypesName {
		idx, ok := b.extras[symbols.CreateTypesName]
		if !ok {
			return l.fail(errors.KindIllegalState, "%s is only callable from the init unit of a module with types", v.Name)
		}
		l.code.Call(idx)
		return nil
	}
	id := b.resolve(v.Module)
	entry, ok := b.symbols.Lookup(id, v.Name)
	if !ok {
		return l.fail(errors.KindNotFound, "call to unknown function %s in %s", v.Name, id)
	}
	return b.callEntry(l.code, id, entry.Name, entry.Unit, entry.Slot, entry.Descriptor)
}

// fpLoad extracts a lambda over the target and pushes its table slot.
func (l *lowering) fpLoad(v ir.FPLoad) error {
	b := l.b
	id := b.resolve(v.Module)
	entry, ok := b.symbols.Lookup(id, v.Name)
	if !ok {
		return l.fail(errors.KindNotFound, "function pointer to unknown function %s in %s", v.Name, id)
	}
	lambda, err := b.lambdas.add(Lambda{
		Name:       symbols.LambdaName(entry.Name, b.lambdas.extracted),
		Module:     id,
		Target:     entry.Name,
		TargetUnit: entry.Unit,
		TargetSlot: entry.Slot,
		Descriptor: entry.Descriptor,
	})
	if err != nil {
		return err
	}
	b.lambdas.extracted++
	l.code.I32Const(int32(lambda.Slot))
	return nil
}
