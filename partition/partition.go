package partition

import (
	"sort"

	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
)

// Unit is one output artifact: a named bucket of functions sharing a
// source file, the module's init unit, or the value unit of a type.
type Unit struct {
	Name      string
	Source    string
	Module    *ir.Module
	Owner     ir.Node // module, or the type of a value unit
	Functions []*ir.Function
	Names     []string // symbol name of each function, parallel to Functions
	IsInit    bool

	// Table layout: Functions occupy SlotBase..SlotBase+len(Functions),
	// then LambdaSlots slots for lambdas extracted during emission.
	SlotBase    uint32
	LambdaSlots uint32

	// Trampolines lists the lifecycle and main targets that get a lambda
	// trampoline. Only set on the init unit; they take the first lambda
	// slots.
	Trampolines []string
}

// Slot returns the table slot of the i-th function.
func (u *Unit) Slot(i int) uint32 {
	return u.SlotBase + uint32(i)
}

// LambdaBase returns the first lambda slot.
func (u *Unit) LambdaBase() uint32 {
	return u.SlotBase + uint32(len(u.Functions))
}

// Plan is the partitioning of one module.
type Plan struct {
	Module    *ir.Module
	Entry     bool
	InitUnit  *Unit
	Units     []*Unit // init unit first, then by name
	TableSize uint32
}

// Unit returns the unit with the given name.
func (p *Plan) Unit(name string) *Unit {
	for _, u := range p.Units {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// Partitioner assigns functions to units and records them in a symbol
// table.
type Partitioner struct {
	symbols *symbols.Table
}

// New returns a partitioner filling t.
func New(t *symbols.Table) *Partitioner {
	return &Partitioner{symbols: t}
}

// EnsureLifecycle makes the first three functions of m the lifecycle
// functions, moving existing ones into place and creating empty ones.
func EnsureLifecycle(m *ir.Module) {
	lifecycle := make([]*ir.Function, len(symbols.Lifecycle))
	rest := make([]*ir.Function, 0, len(m.Functions))
	for _, fn := range m.Functions {
		if slot, ok := symbols.LifecycleSlot(fn.Name); ok && lifecycle[slot] == nil {
			lifecycle[slot] = fn
			continue
		}
		rest = append(rest, fn)
	}
	for i, name := range symbols.Lifecycle {
		if lifecycle[i] == nil {
			lifecycle[i] = &ir.Function{Name: name}
		}
	}
	m.Functions = append(lifecycle, rest...)
}

// Trampolines returns the targets that get a lambda trampoline in m's
// init unit.
func Trampolines(m *ir.Module) []string {
	out := append([]string(nil), symbols.Lifecycle[:]...)
	if m.Function(symbols.MainName) != nil {
		out = append(out, symbols.MainName)
	}
	return out
}

// CountLambdas returns the number of function pointer loads in body.
func CountLambdas(body []ir.Instruction) uint32 {
	var n uint32
	ir.Walk(body, func(ins ir.Instruction) bool {
		if _, ok := ins.(ir.FPLoad); ok {
			n++
		}
		return true
	})
	return n
}

// Partition plans m. Constants of the entry module become constant
// globals.
func (p *Partitioner) Partition(m *ir.Module, entry bool) (*Plan, error) {
	EnsureLifecycle(m)
	if entry {
		constantGlobals(m)
	}

	id := m.ID
	initName := symbols.InitUnitName(id)
	for _, g := range m.Globals {
		p.symbols.SetGlobalUnit(id, g.Name, initName)
	}
	p.symbols.SetGlobalUnit(id, symbols.LockStore, initName)

	initUnit := &Unit{Name: initName, Module: m, Owner: m, IsInit: true, Trampolines: Trampolines(m)}
	units := map[string]*Unit{initName: initUnit}
	unitNames := symbols.NewNames(symbols.PackageName(id))
	reserveUnitNames(unitNames)
	exports := symbols.NewNames(symbols.PackageName(id))

	add := func(u *Unit, name string, fn *ir.Function) error {
		if _, err := exports.Add(name, symbols.CleanupName); err != nil {
			return err
		}
		u.Functions = append(u.Functions, fn)
		u.Names = append(u.Names, name)
		return nil
	}

	for i, fn := range m.Functions {
		unit := initUnit
		if i >= len(symbols.Lifecycle) && fn.Pos != nil && fn.Pos.Source != "" {
			cleaned, err := unitNames.Add(fn.Pos.Source, symbols.CleanupSourceFileName)
			if err != nil {
				return nil, err
			}
			if cleaned == "" {
				return nil, errors.New(errors.PhasePartition, errors.KindInvalidInput).
					Module(id.String()).
					Path(fn.Name).
					Detail("source %q does not name a unit", fn.Pos.Source).
					Build()
			}
			name := symbols.PackageName(id) + cleaned
			if unit = units[name]; unit == nil {
				unit = &Unit{Name: name, Source: fn.Pos.Source, Module: m, Owner: m}
				units[name] = unit
			}
		}
		if err := add(unit, fn.Name, fn); err != nil {
			return nil, err
		}
	}

	for _, td := range m.TypeDefs {
		switch td.Kind {
		case ir.TypeRecord:
			if len(td.Functions) > 0 {
				return nil, errors.New(errors.PhasePartition, errors.KindIllegalState).
					Module(id.String()).
					Path(td.Name).
					Detail("record attached functions were not lifted").
					Build()
			}
		case ir.TypeObject, ir.TypeService:
			if td.Abstract || len(td.Functions) == 0 {
				continue
			}
			name := symbols.ValueUnitName(id, td.Name)
			if _, err := unitNames.Add(symbols.ValueUnitInfix+td.Name, symbols.CleanupName); err != nil {
				return nil, err
			}
			unit := &Unit{Name: name, Module: m, Owner: td}
			units[name] = unit
			for _, fn := range td.Functions {
				if fn.Sig.Receiver == nil {
					fn.Sig.Receiver = ir.ReceiverType(td)
				}
				if err := add(unit, symbols.AttachedName(td.Name, fn.Name), fn); err != nil {
					return nil, err
				}
			}
		default:
			return nil, errors.IllegalState(errors.PhasePartition, "unknown type kind "+td.Kind.String())
		}
	}

	plan := &Plan{Module: m, Entry: entry, InitUnit: initUnit}
	plan.Units = append(plan.Units, initUnit)
	others := make([]*Unit, 0, len(units)-1)
	for name, u := range units {
		if name != initName {
			others = append(others, u)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].Name < others[j].Name })
	plan.Units = append(plan.Units, others...)

	var base uint32
	for _, u := range plan.Units {
		u.SlotBase = base
		u.LambdaSlots = uint32(len(u.Trampolines))
		for _, fn := range u.Functions {
			u.LambdaSlots += CountLambdas(fn.Body)
		}
		base += uint32(len(u.Functions)) + u.LambdaSlots
		for i, fn := range u.Functions {
			p.symbols.Insert(&symbols.Entry{
				Module:     id,
				Name:       u.Names[i],
				Export:     symbols.CleanupName(u.Names[i]),
				Unit:       u.Name,
				Slot:       u.Slot(i),
				Descriptor: abi.Describe(fn.Sig),
				Function:   fn,
			})
		}
	}
	plan.TableSize = base
	p.symbols.SetTableSize(id, base)
	return plan, nil
}

// reserveUnitNames claims the init and listener unit names so that no
// source file or type cleans into them.
func reserveUnitNames(n *symbols.Names) {
	for _, reserved := range []string{symbols.InitUnitSuffix, symbols.InitUnitSuffix + symbols.ListenerUnitSuffix} {
		_, _ = n.Add("<"+reserved+">", func(string) string { return reserved })
	}
}

func constantGlobals(m *ir.Module) {
	for _, c := range m.Constants {
		if m.Global(c.Name) != nil {
			continue
		}
		m.Globals = append(m.Globals, &ir.GlobalVar{
			Name: c.Name,
			Type: c.Type,
			Kind: ir.GlobalConstant,
			Init: []ir.Instruction{c.Value},
			Pos:  c.Pos,
		})
	}
}
