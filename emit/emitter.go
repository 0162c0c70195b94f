package emit

import (
	"strings"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/partition"
	"github.com/wippyai/wasm-backend/symbols"
	"github.com/wippyai/wasm-backend/wasm"
)

// Emitter lowers partitioned units to core modules. It only reads the
// symbol table, so one Emitter serves concurrent calls for distinct units.
type Emitter struct {
	symbols *symbols.Table
}

// New returns an emitter resolving calls through t.
func New(t *symbols.Table) *Emitter {
	return &Emitter{symbols: t}
}

// Result is one emitted unit.
type Result struct {
	Unit    *partition.Unit
	Module  *wasm.Module
	Lambdas *LambdaMetadata
}

// Emit lowers unit u of plan.
func (e *Emitter) Emit(plan *partition.Plan, u *partition.Unit) (*Result, error) {
	b := &builder{
		symbols: e.symbols,
		plan:    plan,
		unit:    u,
		id:      plan.Module.ID,
		mod:     &wasm.Module{},
		tables:  make(map[string]uint32),
		globals: make(map[string]uint32),
		local:   make(map[string]uint32),
		extras:  make(map[string]uint32),
		exports: make(map[string]bool),
		names:   make(map[uint32]string),
	}
	if err := b.build(); err != nil {
		return nil, err
	}
	Logger().Debug("unit emitted",
		zap.String("unit", u.Name),
		zap.Int("functions", len(b.mod.Funcs)),
		zap.Int("imports", len(b.mod.Imports)),
		zap.Int("lambdas", b.lambdas.Len()))
	return &Result{Unit: u, Module: b.mod, Lambdas: b.lambdas}, nil
}

type globalRef struct {
	module ir.ModuleID
	name   string // export name in the owning unit
	unit   string
	typ    wasm.ValType
}

type builder struct {
	symbols *symbols.Table
	plan    *partition.Plan
	unit    *partition.Unit
	id      ir.ModuleID
	mod     *wasm.Module

	// Foreign modules whose table is referenced, in first-use order.
	foreign    []ir.ModuleID
	globalRefs []globalRef

	tables   map[string]uint32 // package name -> table index
	ownTable uint32
	globals  map[string]uint32 // globalKey -> global index
	local    map[string]uint32 // symbol name -> function index of this unit
	extras   map[string]uint32
	exports  map[string]bool
	names    map[uint32]string
	lambdas  *LambdaMetadata
	frames   []abi.FrameLayout

	numFuncImports uint32
	externs        map[int]uint32 // position in unit.Functions -> import index
}

func globalKey(id ir.ModuleID, name string) string {
	return symbols.PackageName(id) + "\x00" + name
}

func (b *builder) samePackage(id ir.ModuleID) bool {
	return id.IsZero() || symbols.PackageName(id) == symbols.PackageName(b.id)
}

func (b *builder) resolve(id ir.ModuleID) ir.ModuleID {
	if id.IsZero() {
		return b.id
	}
	return id
}

func (b *builder) fail(kind errors.Kind, format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseEmit, kind).
		Module(b.id.String()).
		Path(b.unit.Name).
		Detail(format, args...).
		Build()
}

func (b *builder) build() error {
	if err := b.scan(); err != nil {
		return err
	}
	if err := b.importTables(); err != nil {
		return err
	}
	if err := b.importFunctions(); err != nil {
		return err
	}
	if err := b.importGlobals(); err != nil {
		return err
	}
	if b.unit.IsInit {
		if err := b.defineInitState(); err != nil {
			return err
		}
	}

	first := b.numFuncImports + uint32(len(b.unit.Functions))
	if b.unit.IsInit {
		first += uint32(len(b.initExtras()))
	}
	b.lambdas = NewLambdaMetadata(b.unit, first)
	for i, name := range b.unit.Names {
		b.local[name] = b.numFuncImports + uint32(i)
	}
	if b.unit.IsInit {
		for i, name := range b.initExtras() {
			b.extras[name] = b.numFuncImports + uint32(len(b.unit.Functions)+i)
		}
		if err := b.addTrampolines(); err != nil {
			return err
		}
	}

	for i, fn := range b.unit.Functions {
		if err := b.function(i, fn); err != nil {
			return err
		}
	}
	if b.unit.IsInit {
		if err := b.emitInitExtras(); err != nil {
			return err
		}
	}
	for _, l := range b.lambdas.lambdas {
		if err := b.lambda(l); err != nil {
			return err
		}
	}

	b.elements()
	b.customSections()
	if err := b.mod.Validate(); err != nil {
		return errors.Internal(errors.PhaseEmit, "unit "+b.unit.Name+" is malformed", err)
	}
	return nil
}

// scan collects the foreign tables and globals the unit's code needs, so
// that every import is known before function indices are assigned.
func (b *builder) scan() error {
	seen := make(map[string]bool)
	needModule := func(id ir.ModuleID) {
		if b.samePackage(id) {
			return
		}
		pkg := symbols.PackageName(id)
		if !seen[pkg] {
			seen[pkg] = true
			b.foreign = append(b.foreign, id)
		}
	}
	refs := make(map[string]bool)
	var err error
	needGlobal := func(id ir.ModuleID, name string, t wit.Type) {
		if err != nil {
			return
		}
		ref, e := b.globalRef(id, name, t)
		if e != nil {
			err = e
			return
		}
		if ref == nil {
			return
		}
		key := globalKey(ref.module, ref.name)
		if !refs[key] {
			refs[key] = true
			b.globalRefs = append(b.globalRefs, *ref)
		}
	}

	visit := func(ins ir.Instruction) bool {
		switch v := ins.(type) {
		case ir.Call:
			needModule(v.Module)
		case ir.FPLoad:
			needModule(v.Module)
		case ir.LoadGlobal:
			needGlobal(v.Module, v.Name, v.Type)
		case ir.StoreGlobal:
			needGlobal(v.Module, v.Name, v.Type)
		case ir.Lock:
			needGlobal(b.id, symbols.LockName(v.Global), wit.U32{})
		case ir.Unlock:
			needGlobal(b.id, symbols.LockName(v.Global), wit.U32{})
		case ir.TypeDesc:
			needGlobal(b.id, symbols.TypePrefix+v.Type, wit.U32{})
		}
		return true
	}
	for _, fn := range b.unit.Functions {
		ir.Walk(fn.Body, visit)
	}
	return err
}

// globalRef describes a global the unit must import. It returns nil for
// globals the unit defines itself.
func (b *builder) globalRef(id ir.ModuleID, name string, t wit.Type) (*globalRef, error) {
	id = b.resolve(id)
	if !b.samePackage(id) {
		vt, ok := abi.Scalar(t)
		if !ok {
			return nil, b.fail(errors.KindUnsupported, "global %s.%s has non-scalar type %s", id, name, abi.TypeName(t))
		}
		return &globalRef{
			module: id,
			name:   symbols.CleanupName(name),
			unit:   b.symbols.GlobalUnit(id, name),
			typ:    vt,
		}, nil
	}

	m := b.plan.Module
	var vt wasm.ValType
	switch {
	case strings.HasPrefix(name, symbols.LockPrefix):
		if !b.hasLock(name) {
			return nil, b.fail(errors.KindNotFound, "no variable guarded by lock %q", name)
		}
		vt = wasm.ValI32
	case strings.HasPrefix(name, symbols.TypePrefix):
		typeName := strings.TrimPrefix(name, symbols.TypePrefix)
		if m.TypeDef(typeName) == nil {
			err := errors.UnknownType(errors.PhaseEmit, m.ID.String(), typeName)
			err.Path = []string{b.unit.Name}
			return nil, err
		}
		name = symbols.TypePrefix + symbols.CleanupName(typeName)
		vt = wasm.ValI32
	default:
		g := m.Global(name)
		if g == nil {
			return nil, b.fail(errors.KindNotFound, "variable %q not declared", name)
		}
		var ok bool
		if vt, ok = abi.Scalar(g.Type); !ok {
			return nil, b.fail(errors.KindUnsupported, "variable %q has non-scalar type %s", name, abi.TypeName(g.Type))
		}
		name = symbols.CleanupName(name)
	}
	if b.unit.IsInit {
		return nil, nil
	}
	return &globalRef{
		module: b.id,
		name:   name,
		unit:   b.plan.InitUnit.Name,
		typ:    vt,
	}, nil
}

func (b *builder) hasLock(lock string) bool {
	for _, g := range b.plan.Module.Globals {
		if symbols.LockName(g.Name) == lock {
			return true
		}
	}
	return false
}

func (b *builder) importTables() error {
	tableType := func() *wasm.TableType {
		return &wasm.TableType{ElemType: wasm.ValFuncRef}
	}
	if !b.unit.IsInit {
		b.mod.Imports = append(b.mod.Imports, wasm.Import{
			Module: b.plan.InitUnit.Name,
			Name:   symbols.TableExport,
			Desc:   wasm.ImportDesc{Kind: wasm.KindTable, Table: tableType()},
		})
	}
	for _, id := range b.foreign {
		b.tables[symbols.PackageName(id)] = uint32(b.mod.NumImportedTables())
		b.mod.Imports = append(b.mod.Imports, wasm.Import{
			Module: symbols.InitUnitName(id),
			Name:   symbols.TableExport,
			Desc:   wasm.ImportDesc{Kind: wasm.KindTable, Table: tableType()},
		})
	}
	if b.unit.IsInit {
		b.ownTable = uint32(b.mod.NumImportedTables())
		b.mod.Tables = append(b.mod.Tables, wasm.TableType{
			ElemType: wasm.ValFuncRef,
			Limits:   wasm.Limits{Min: uint64(b.plan.TableSize)},
		})
		if err := b.export(symbols.TableExport, wasm.KindTable, b.ownTable); err != nil {
			return err
		}
	}
	b.tables[symbols.PackageName(b.id)] = b.ownTable
	return nil
}

// importFunctions imports the host binding of every extern function.
func (b *builder) importFunctions() error {
	b.externs = make(map[int]uint32)
	for i, fn := range b.unit.Functions {
		if !fn.Extern() {
			continue
		}
		entry, ok := b.symbols.Lookup(b.id, b.unit.Names[i])
		if !ok || entry.Native == nil {
			return b.fail(errors.KindIllegalState, "extern %s is not linked", b.unit.Names[i])
		}
		idx := uint32(b.mod.NumImportedFuncs())
		b.mod.Imports = append(b.mod.Imports, wasm.Import{
			Module: entry.Native.Namespace,
			Name:   entry.Native.Name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: b.mod.AddType(abi.Describe(fn.Sig).Type)},
		})
		b.externs[i] = idx
		b.names[idx] = entry.Native.Namespace + "#" + entry.Native.Name
	}
	b.numFuncImports = uint32(b.mod.NumImportedFuncs())
	return nil
}

func (b *builder) importGlobals() error {
	for _, ref := range b.globalRefs {
		b.globals[globalKey(ref.module, ref.name)] = uint32(b.mod.NumImportedGlobals())
		b.mod.Imports = append(b.mod.Imports, wasm.Import{
			Module: ref.unit,
			Name:   ref.name,
			Desc: wasm.ImportDesc{
				Kind:   wasm.KindGlobal,
				Global: &wasm.GlobalType{ValType: ref.typ, Mutable: true},
			},
		})
	}
	return nil
}

// export adds an export, rejecting a second claim on the same name.
func (b *builder) export(name string, kind byte, idx uint32) error {
	if b.exports[name] {
		return b.fail(errors.KindNameCollision, "export %q declared twice", name)
	}
	b.exports[name] = true
	b.mod.Exports = append(b.mod.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
	return nil
}

// tableOf returns the table index holding the functions of module id.
func (b *builder) tableOf(id ir.ModuleID) (uint32, error) {
	idx, ok := b.tables[symbols.PackageName(b.resolve(id))]
	if !ok {
		return 0, b.fail(errors.KindIllegalState, "table of %s was not imported", id)
	}
	return idx, nil
}

func (b *builder) global(id ir.ModuleID, name string) (uint32, error) {
	idx, ok := b.globals[globalKey(b.resolve(id), name)]
	if !ok {
		return 0, b.fail(errors.KindIllegalState, "global %q was not declared", name)
	}
	return idx, nil
}

// function lowers the i-th function of the unit.
func (b *builder) function(i int, fn *ir.Function) error {
	name := b.unit.Names[i]
	desc := abi.Describe(fn.Sig)
	idx := b.numFuncImports + uint32(i)
	b.names[idx] = name

	var body wasm.FuncBody
	if imp, ok := b.externs[i]; ok {
		code := wasm.NewCode()
		for p := range desc.Type.Params {
			code.LocalGet(uint32(p))
		}
		code.Call(imp).End()
		body.Code = code.Bytes()
	} else {
		fl := newLowering(b, fn, name)
		if b.unit.IsInit && symbols.IsLifecycle(name) {
			if err := fl.doneGuard(name); err != nil {
				return err
			}
		}
		if err := fl.lower(fn.Body); err != nil {
			return err
		}
		fl.code.End()
		body = wasm.FuncBody{
			Locals: fl.locals.Declarations(uint32(len(desc.Type.Params))),
			Code:   fl.code.Bytes(),
		}
		if fn.Worker != "" {
			b.frames = append(b.frames, abi.LayoutFrame(name, fn.Worker, fl.locals.Types()))
		}
	}

	b.mod.Funcs = append(b.mod.Funcs, b.mod.AddType(desc.Type))
	b.mod.Code = append(b.mod.Code, body)
	return b.export(symbols.CleanupName(name), wasm.KindFunc, idx)
}

// lambda emits a forwarding function for l.
func (b *builder) lambda(l Lambda) error {
	code := wasm.NewCode()
	for p := range l.Descriptor.Type.Params {
		code.LocalGet(uint32(p))
	}
	if err := b.callEntry(code, l.Module, l.Target, l.TargetUnit, l.TargetSlot, l.Descriptor); err != nil {
		return err
	}
	code.End()
	b.mod.Funcs = append(b.mod.Funcs, b.mod.AddType(l.Descriptor.Type))
	b.mod.Code = append(b.mod.Code, wasm.FuncBody{Code: code.Bytes()})
	b.names[l.Index] = l.Name
	return nil
}

// callEntry emits a call to a resolved symbol: direct within the unit,
// through the owner's table otherwise. Arguments are already on the stack.
func (b *builder) callEntry(code *wasm.Code, id ir.ModuleID, name, unit string, slot uint32, desc abi.Descriptor) error {
	if unit == b.unit.Name {
		if idx, ok := b.local[name]; ok {
			code.Call(idx)
			return nil
		}
	}
	table, err := b.tableOf(id)
	if err != nil {
		return err
	}
	code.I32Const(int32(slot))
	code.CallIndirect(b.mod.AddType(desc.Type), table)
	return nil
}

// elements installs the unit's functions and lambdas at its slot base.
func (b *builder) elements() {
	n := len(b.unit.Functions) + b.lambdas.Len()
	if n == 0 {
		return
	}
	idxs := make([]uint32, 0, n)
	for i := range b.unit.Functions {
		idxs = append(idxs, b.numFuncImports+uint32(i))
	}
	for _, l := range b.lambdas.lambdas {
		idxs = append(idxs, l.Index)
	}
	elem := wasm.Element{
		Offset:   wasm.I32ConstExpr(int32(b.unit.SlotBase)),
		FuncIdxs: idxs,
		TableIdx: b.ownTable,
		Flags:    wasm.ElemActiveTable0,
	}
	if b.ownTable != 0 {
		elem.Flags = wasm.ElemActiveTable
	}
	b.mod.Elements = append(b.mod.Elements, elem)
}

func (b *builder) customSections() {
	b.mod.AddCustomSection(wasm.NameSectionName, wasm.EncodeNameSection(b.unit.Name, b.names))
	if len(b.frames) > 0 {
		b.mod.AddCustomSection(wasm.FramesSectionName, abi.EncodeFrames(b.frames))
	}
	if b.unit.IsInit && len(b.plan.Module.TypeDefs) > 0 {
		b.mod.AddCustomSection(wasm.TypesSectionName, EncodeTypes(b.plan.Module.TypeDefs))
	}
}
