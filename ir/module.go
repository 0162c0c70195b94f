package ir

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
	"go.bytecodealliance.org/wit"
)

// AnonOrg is the organization of modules compiled without one.
const AnonOrg = "$anon"

// ModuleID identifies a module by organization, name and version.
type ModuleID struct {
	Org     string `json:"org,omitempty"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// IsZero reports whether the id is unset. Instructions use the zero id for
// the module that contains them.
func (id ModuleID) IsZero() bool {
	return id.Name == ""
}

// Anonymous reports whether the module has no organization.
func (id ModuleID) Anonymous() bool {
	return id.Org == "" || id.Org == AnonOrg
}

// Key returns "org/name", or just the name for anonymous modules.
func (id ModuleID) Key() string {
	if id.Anonymous() {
		return id.Name
	}
	return id.Org + "/" + id.Name
}

func (id ModuleID) String() string {
	if id.Version == "" {
		return id.Key()
	}
	return id.Key() + ":" + id.Version
}

// SemVer parses the version. An empty version parses as 0.0.0.
func (id ModuleID) SemVer() (*semver.Version, error) {
	if id.Version == "" {
		return &semver.Version{}, nil
	}
	v, err := semver.NewVersion(id.Version)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", id.Key(), err)
	}
	return v, nil
}

// Position locates a declaration in its source unit.
type Position struct {
	Source string `json:"source"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (p *Position) String() string {
	if p == nil {
		return "<unknown>"
	}
	if p.Line == 0 {
		return p.Source
	}
	return fmt.Sprintf("%s:%d:%d", p.Source, p.Line, p.Column)
}

// Module is one compiled module of the build.
type Module struct {
	ID        ModuleID
	Pos       *Position
	Functions []*Function
	Globals   []*GlobalVar
	TypeDefs  []*TypeDef
	Imports   []ModuleID
	Constants []*Constant
}

// Function returns the module-level function with the given name.
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// TypeDef returns the type definition with the given name.
func (m *Module) TypeDef(name string) *TypeDef {
	for _, td := range m.TypeDefs {
		if td.Name == name {
			return td
		}
	}
	return nil
}

// Global returns the global variable with the given name.
func (m *Module) Global(name string) *GlobalVar {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// HasServices reports whether any type definition is a service.
func (m *Module) HasServices() bool {
	for _, td := range m.TypeDefs {
		if td.Kind == TypeService {
			return true
		}
	}
	return false
}

// Flags annotate a function.
type Flags uint8

const (
	FlagExtern Flags = 1 << iota // body supplied by a host binding
	FlagPublic                   // visible to importing modules
)

// Param is a declared function parameter.
type Param struct {
	Name        string
	Type        wit.Type
	Defaultable bool
	Default     []Instruction // computes the default value when not provided
}

// Signature is a function's parameter, result and receiver types.
type Signature struct {
	Params   []Param
	Result   wit.Type // nil for no result
	Receiver wit.Type // nil for module-level functions
}

// ParamTypes returns the parameter types in order, receiver first.
func (s Signature) ParamTypes() []wit.Type {
	types := make([]wit.Type, 0, len(s.Params)+1)
	if s.Receiver != nil {
		types = append(types, s.Receiver)
	}
	for _, p := range s.Params {
		types = append(types, p.Type)
	}
	return types
}

// Interop is a new-style native declaration binding a function to a host
// namespace entry.
type Interop struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// Function is one function of a module or an attached function of a type.
// Local indices address receiver, params, then Locals.
type Function struct {
	Name    string
	Sig     Signature
	Locals  []wit.Type
	Body    []Instruction
	Pos     *Position
	Worker  string
	Flags   Flags
	Interop *Interop
}

// Extern reports whether the body comes from a host binding.
func (f *Function) Extern() bool {
	return f.Flags&FlagExtern != 0
}

// NumParams returns the number of parameter locals, receiver included.
func (f *Function) NumParams() int {
	n := len(f.Sig.Params)
	if f.Sig.Receiver != nil {
		n++
	}
	return n
}

// LocalType returns the type of local idx.
func (f *Function) LocalType(idx uint32) (wit.Type, bool) {
	i := int(idx)
	if f.Sig.Receiver != nil {
		if i == 0 {
			return f.Sig.Receiver, true
		}
		i--
	}
	if i < len(f.Sig.Params) {
		return f.Sig.Params[i].Type, true
	}
	i -= len(f.Sig.Params)
	if i < len(f.Locals) {
		return f.Locals[i], true
	}
	return nil, false
}

// GlobalKind distinguishes variables from constants.
type GlobalKind uint8

const (
	GlobalNormal GlobalKind = iota
	GlobalConstant
)

// GlobalVar is a module-level variable.
type GlobalVar struct {
	Name string
	Type wit.Type
	Kind GlobalKind
	Init []Instruction // leaves one value of Type on the stack
	Pos  *Position
}

// Constant is a module-level constant.
type Constant struct {
	Name  string
	Type  wit.Type
	Value Const
	Pos   *Position
}

// TypeKind is the kind of a user-defined type.
type TypeKind uint8

const (
	TypeRecord TypeKind = iota
	TypeObject
	TypeService
)

func (k TypeKind) String() string {
	switch k {
	case TypeRecord:
		return "record"
	case TypeObject:
		return "object"
	case TypeService:
		return "service"
	default:
		return "unknown"
	}
}

// Field is a named field of a type definition.
type Field struct {
	Name string
	Type wit.Type
}

// TypeDef is a user-defined type with its attached functions.
type TypeDef struct {
	Name      string
	Kind      TypeKind
	Abstract  bool
	Fields    []Field
	Functions []*Function
	Pos       *Position
}

// Function returns the attached function with the given name.
func (t *TypeDef) Function(name string) *Function {
	for _, fn := range t.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// RecordType returns the record shape of the type's fields.
func (t *TypeDef) RecordType() *wit.TypeDef {
	fields := make([]wit.Field, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = wit.Field{Name: f.Name, Type: f.Type}
	}
	name := t.Name
	return &wit.TypeDef{Name: &name, Kind: &wit.Record{Fields: fields}}
}
