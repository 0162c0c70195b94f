package symbols

import (
	"sort"
	"sync"

	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/ir"
)

// Native is the host binding a symbol resolves to.
type Native struct {
	Namespace string
	Name      string
}

// Entry records where a function is emitted and how it is called.
type Entry struct {
	Module     ir.ModuleID
	Name       string // logical name, e.g. "Person.greet"
	Export     string // cleaned name used for the unit export
	Unit       string
	Slot       uint32 // index in the module's function table
	Descriptor abi.Descriptor
	Function   *ir.Function
	Native     *Native // set by the native linker for extern functions
}

// Org returns the owning module's organization.
func (e Entry) Org() string { return e.Module.Org }

// Version returns the owning module's version.
func (e Entry) Version() string { return e.Module.Version }

// Table maps module-qualified names to emission locations. It is filled
// sequentially during planning and only read during parallel emission.
type Table struct {
	mu        sync.RWMutex
	functions map[string]*Entry
	globals   map[string]string
	tables    map[string]uint32
}

// NewTable returns an empty symbol table.
func NewTable() *Table {
	t := &Table{}
	t.Clear()
	return t
}

// Clear drops every entry.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.functions = make(map[string]*Entry)
	t.globals = make(map[string]string)
	t.tables = make(map[string]uint32)
}

func key(id ir.ModuleID, name string) string {
	return PackageName(id) + name
}

// Insert records a function entry, replacing any previous one.
func (t *Table) Insert(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.functions[key(e.Module, e.Name)] = e
}

// Lookup returns the entry of function name in module id.
//
// Lifecycle functions of modules that were compiled in an earlier session
// resolve by convention to their fixed slots in the module's init unit.
func (t *Table) Lookup(id ir.ModuleID, name string) (*Entry, bool) {
	t.mu.RLock()
	e, ok := t.functions[key(id, name)]
	t.mu.RUnlock()
	if ok {
		return e, true
	}
	if slot, ok := LifecycleSlot(name); ok {
		return &Entry{
			Module:     id,
			Name:       name,
			Export:     name,
			Unit:       InitUnitName(id),
			Slot:       slot,
			Descriptor: abi.Void,
		}, true
	}
	return nil, false
}

// SetGlobalUnit records the unit owning variable name.
func (t *Table) SetGlobalUnit(id ir.ModuleID, name, unit string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.globals[key(id, name)] = unit
}

// GlobalUnit returns the unit owning variable name. Variables without an
// explicit mapping live in the module's init unit.
func (t *Table) GlobalUnit(id ir.ModuleID, name string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if unit, ok := t.globals[key(id, name)]; ok {
		return unit
	}
	return InitUnitName(id)
}

// SetTableSize records the number of function table slots of a module.
func (t *Table) SetTableSize(id ir.ModuleID, size uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tables[PackageName(id)] = size
}

// TableSize returns the number of function table slots of a module.
func (t *Table) TableSize(id ir.ModuleID) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	size, ok := t.tables[PackageName(id)]
	return size, ok
}

// Functions returns the entries of module id sorted by slot.
func (t *Table) Functions(id ir.ModuleID) []*Entry {
	prefix := PackageName(id)
	t.mu.RLock()
	var out []*Entry
	for _, e := range t.functions {
		if PackageName(e.Module) == prefix {
			out = append(out, e)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Len returns the number of function entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.functions)
}
