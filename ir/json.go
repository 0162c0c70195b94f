package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/errors"
)

// Build is the JSON document accepted by Decode: modules in dependency
// order, the entry module last.
type Build struct {
	Modules []*Module
}

type jsonBuild struct {
	Modules []jsonModule `json:"modules"`
}

type jsonModule struct {
	ModuleID
	Pos       *Position      `json:"pos,omitempty"`
	Imports   []ModuleID     `json:"imports,omitempty"`
	Globals   []jsonGlobal   `json:"globals,omitempty"`
	Constants []jsonConstant `json:"constants,omitempty"`
	Types     []jsonTypeDef  `json:"types,omitempty"`
	Functions []jsonFunction `json:"functions,omitempty"`
}

type jsonGlobal struct {
	Name string            `json:"name"`
	Type string            `json:"type"`
	Kind string            `json:"kind,omitempty"`
	Init []json.RawMessage `json:"init,omitempty"`
	Pos  *Position         `json:"pos,omitempty"`
}

type jsonConstant struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	Pos   *Position       `json:"pos,omitempty"`
}

type jsonField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type jsonTypeDef struct {
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Abstract  bool           `json:"abstract,omitempty"`
	Fields    []jsonField    `json:"fields,omitempty"`
	Functions []jsonFunction `json:"functions,omitempty"`
	Pos       *Position      `json:"pos,omitempty"`
}

type jsonParam struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Defaultable bool              `json:"defaultable,omitempty"`
	Default     []json.RawMessage `json:"default,omitempty"`
}

type jsonFunction struct {
	Name     string            `json:"name"`
	Params   []jsonParam       `json:"params,omitempty"`
	Result   string            `json:"result,omitempty"`
	Receiver string            `json:"receiver,omitempty"`
	Locals   []string          `json:"locals,omitempty"`
	Body     []json.RawMessage `json:"body,omitempty"`
	Pos      *Position         `json:"pos,omitempty"`
	Worker   string            `json:"worker,omitempty"`
	Extern   bool              `json:"extern,omitempty"`
	Public   bool              `json:"public,omitempty"`
	Interop  *Interop          `json:"interop,omitempty"`
}

type jsonInstruction struct {
	Op       string            `json:"op"`
	Type     string            `json:"type,omitempty"`
	Value    json.RawMessage   `json:"value,omitempty"`
	Index    uint32            `json:"index,omitempty"`
	Module   *ModuleID         `json:"module,omitempty"`
	Name     string            `json:"name,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	From     string            `json:"from,omitempty"`
	To       string            `json:"to,omitempty"`
	Provided []bool            `json:"provided,omitempty"`
	Params   []string          `json:"params,omitempty"`
	Result   string            `json:"result,omitempty"`
	Then     []json.RawMessage `json:"then,omitempty"`
	Else     []json.RawMessage `json:"else,omitempty"`
	Cond     []json.RawMessage `json:"cond,omitempty"`
	Body     []json.RawMessage `json:"body,omitempty"`
}

// Decode reads a JSON build document.
func Decode(r io.Reader) (*Build, error) {
	var doc jsonBuild
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "decode build document")
	}

	b := &Build{Modules: make([]*Module, 0, len(doc.Modules))}
	for i := range doc.Modules {
		m, err := doc.Modules[i].module()
		if err != nil {
			return nil, err
		}
		b.Modules = append(b.Modules, m)
	}
	return b, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (*Build, error) {
	return Decode(bytes.NewReader(data))
}

func (jm *jsonModule) module() (*Module, error) {
	m := &Module{ID: jm.ModuleID, Pos: jm.Pos, Imports: jm.Imports}
	fail := func(path string, err error) error {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Module(m.ID.String()).
			Path(strings.Split(path, ".")...).
			Cause(err).
			Build()
	}

	for _, jg := range jm.Globals {
		t, err := parseType(jg.Type)
		if err != nil {
			return nil, fail("globals."+jg.Name, err)
		}
		init, err := instructions(jg.Init)
		if err != nil {
			return nil, fail("globals."+jg.Name, err)
		}
		g := &GlobalVar{Name: jg.Name, Type: t, Init: init, Pos: jg.Pos}
		switch jg.Kind {
		case "", "normal":
		case "constant":
			g.Kind = GlobalConstant
		default:
			return nil, fail("globals."+jg.Name, fmt.Errorf("unknown global kind %q", jg.Kind))
		}
		m.Globals = append(m.Globals, g)
	}

	for _, jc := range jm.Constants {
		t, err := parseType(jc.Type)
		if err != nil {
			return nil, fail("constants."+jc.Name, err)
		}
		c, err := constant(t, jc.Value)
		if err != nil {
			return nil, fail("constants."+jc.Name, err)
		}
		m.Constants = append(m.Constants, &Constant{Name: jc.Name, Type: t, Value: c, Pos: jc.Pos})
	}

	// Types first so receivers resolve.
	for _, jt := range jm.Types {
		td := &TypeDef{Name: jt.Name, Abstract: jt.Abstract, Pos: jt.Pos}
		switch jt.Kind {
		case "record":
			td.Kind = TypeRecord
		case "object", "class":
			td.Kind = TypeObject
		case "service":
			td.Kind = TypeService
		default:
			return nil, fail("types."+jt.Name, fmt.Errorf("unknown type kind %q", jt.Kind))
		}
		for _, jf := range jt.Fields {
			t, err := parseType(jf.Type)
			if err != nil {
				return nil, fail("types."+jt.Name+"."+jf.Name, err)
			}
			td.Fields = append(td.Fields, Field{Name: jf.Name, Type: t})
		}
		m.TypeDefs = append(m.TypeDefs, td)
	}

	for i, jt := range jm.Types {
		for j := range jt.Functions {
			fn, err := jt.Functions[j].function(m)
			if err != nil {
				return nil, fail("types."+jt.Name+"."+jt.Functions[j].Name, err)
			}
			if fn.Sig.Receiver == nil {
				fn.Sig.Receiver = ReceiverType(m.TypeDefs[i])
			}
			m.TypeDefs[i].Functions = append(m.TypeDefs[i].Functions, fn)
		}
	}

	for j := range jm.Functions {
		fn, err := jm.Functions[j].function(m)
		if err != nil {
			return nil, fail("functions."+jm.Functions[j].Name, err)
		}
		m.Functions = append(m.Functions, fn)
	}
	return m, nil
}

// ReceiverType is the value a type's attached functions receive: the field
// record for records, an object handle otherwise.
func ReceiverType(td *TypeDef) wit.Type {
	if td.Kind == TypeRecord {
		return td.RecordType()
	}
	return wit.U32{}
}

func (jf *jsonFunction) function(m *Module) (*Function, error) {
	fn := &Function{Name: jf.Name, Pos: jf.Pos, Worker: jf.Worker, Interop: jf.Interop}
	if jf.Extern {
		fn.Flags |= FlagExtern
	}
	if jf.Public {
		fn.Flags |= FlagPublic
	}
	for _, jp := range jf.Params {
		t, err := parseType(jp.Type)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", jp.Name, err)
		}
		def, err := instructions(jp.Default)
		if err != nil {
			return nil, fmt.Errorf("param %s default: %w", jp.Name, err)
		}
		fn.Sig.Params = append(fn.Sig.Params, Param{Name: jp.Name, Type: t, Defaultable: jp.Defaultable, Default: def})
	}
	if jf.Result != "" {
		t, err := parseType(jf.Result)
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		fn.Sig.Result = t
	}
	if jf.Receiver != "" {
		td := m.TypeDef(jf.Receiver)
		if td == nil {
			return nil, fmt.Errorf("unknown receiver type %q", jf.Receiver)
		}
		fn.Sig.Receiver = ReceiverType(td)
	}
	for _, l := range jf.Locals {
		t, err := parseType(l)
		if err != nil {
			return nil, fmt.Errorf("local: %w", err)
		}
		fn.Locals = append(fn.Locals, t)
	}
	body, err := instructions(jf.Body)
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func instructions(raw []json.RawMessage) ([]Instruction, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Instruction, 0, len(raw))
	for i, r := range raw {
		var ji jsonInstruction
		if err := json.Unmarshal(r, &ji); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		ins, err := ji.instruction()
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, ji.Op, err)
		}
		out = append(out, ins)
	}
	return out, nil
}

func (ji *jsonInstruction) module() ModuleID {
	if ji.Module == nil {
		return ModuleID{}
	}
	return *ji.Module
}

func (ji *jsonInstruction) instruction() (Instruction, error) {
	switch ji.Op {
	case "const":
		t, err := parseType(ji.Type)
		if err != nil {
			return nil, err
		}
		return constant(t, ji.Value)
	case "load_local":
		return LoadLocal{Index: ji.Index}, nil
	case "store_local":
		return StoreLocal{Index: ji.Index}, nil
	case "load_global", "store_global":
		t, err := optionalType(ji.Type)
		if err != nil {
			return nil, err
		}
		if ji.Op == "load_global" {
			return LoadGlobal{Module: ji.module(), Name: ji.Name, Type: t}, nil
		}
		return StoreGlobal{Module: ji.module(), Name: ji.Name, Type: t}, nil
	case "lock":
		return Lock{Global: ji.Name}, nil
	case "unlock":
		return Unlock{Global: ji.Name}, nil
	case "binary":
		t, err := parseType(ji.Type)
		if err != nil {
			return nil, err
		}
		for i, name := range binaryOpNames {
			if name == ji.Kind {
				return Binary{Op: BinaryOp(i), Type: t}, nil
			}
		}
		return nil, fmt.Errorf("unknown binary operator %q", ji.Kind)
	case "unary":
		t, err := parseType(ji.Type)
		if err != nil {
			return nil, err
		}
		switch ji.Kind {
		case "neg":
			return Unary{Op: OpNeg, Type: t}, nil
		case "not":
			return Unary{Op: OpNot, Type: t}, nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", ji.Kind)
	case "convert":
		from, err := parseType(ji.From)
		if err != nil {
			return nil, err
		}
		to, err := parseType(ji.To)
		if err != nil {
			return nil, err
		}
		return Convert{From: from, To: to}, nil
	case "call":
		return Call{Module: ji.module(), Name: ji.Name, Provided: ji.Provided}, nil
	case "fp_load":
		return FPLoad{Module: ji.module(), Name: ji.Name}, nil
	case "fp_call":
		call := FPCall{}
		for _, p := range ji.Params {
			t, err := parseType(p)
			if err != nil {
				return nil, err
			}
			call.Params = append(call.Params, t)
		}
		t, err := optionalType(ji.Result)
		if err != nil {
			return nil, err
		}
		call.Result = t
		return call, nil
	case "type_desc":
		return TypeDesc{Type: ji.Name}, nil
	case "if":
		then, err := instructions(ji.Then)
		if err != nil {
			return nil, err
		}
		els, err := instructions(ji.Else)
		if err != nil {
			return nil, err
		}
		t, err := optionalType(ji.Result)
		if err != nil {
			return nil, err
		}
		return If{Then: then, Else: els, Result: t}, nil
	case "loop":
		cond, err := instructions(ji.Cond)
		if err != nil {
			return nil, err
		}
		body, err := instructions(ji.Body)
		if err != nil {
			return nil, err
		}
		return Loop{Cond: cond, Body: body}, nil
	case "return":
		return Return{}, nil
	case "drop":
		t, err := optionalType(ji.Type)
		if err != nil {
			return nil, err
		}
		return Drop{Type: t}, nil
	case "trap":
		return Trap{}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", ji.Op)
	}
}

func parseType(s string) (wit.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("missing type")
	}
	return wit.ParseType(s)
}

func optionalType(s string) (wit.Type, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return parseType(s)
}

func constant(t wit.Type, raw json.RawMessage) (Const, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Const{}, fmt.Errorf("missing constant value")
	}
	switch t.(type) {
	case wit.Bool:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return Const{}, err
		}
		return Bool(v), nil
	case wit.F32, wit.F64:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Const{}, err
		}
		return Float(t, v), nil
	case wit.U8, wit.U16, wit.U32, wit.U64:
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return Const{}, err
		}
		return Int(t, int64(v)), nil
	case wit.S8, wit.S16, wit.S32, wit.S64, wit.Char:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Const{}, err
		}
		return Int(t, v), nil
	default:
		return Const{}, fmt.Errorf("constants of type %T are not supported", t)
	}
}
