package ir

import (
	"errors"
	"strings"
	"testing"

	"go.bytecodealliance.org/wit"

	bkerrors "github.com/wippyai/wasm-backend/errors"
)

func TestModuleID(t *testing.T) {
	tests := []struct {
		id   ModuleID
		key  string
		str  string
		anon bool
	}{
		{ModuleID{Org: "acme", Name: "app", Version: "1.0.0"}, "acme/app", "acme/app:1.0.0", false},
		{ModuleID{Org: AnonOrg, Name: "main"}, "main", "main", true},
		{ModuleID{Name: "main", Version: "0.1.0"}, "main", "main:0.1.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.id.Key(); got != tt.key {
				t.Errorf("Key() = %q, want %q", got, tt.key)
			}
			if got := tt.id.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if got := tt.id.Anonymous(); got != tt.anon {
				t.Errorf("Anonymous() = %v, want %v", got, tt.anon)
			}
		})
	}
}

func TestModuleID_SemVer(t *testing.T) {
	v, err := ModuleID{Name: "a", Version: "2.3.4"}.SemVer()
	if err != nil {
		t.Fatalf("SemVer: %v", err)
	}
	if v.Major != 2 || v.Minor != 3 || v.Patch != 4 {
		t.Errorf("got %v", v)
	}
	if _, err := (ModuleID{Name: "a", Version: "not-a-version"}).SemVer(); err == nil {
		t.Error("expected error for malformed version")
	}
	if v, err := (ModuleID{Name: "a"}).SemVer(); err != nil || v.Major != 0 {
		t.Errorf("empty version = %v, %v", v, err)
	}
}

func TestFunction_LocalType(t *testing.T) {
	fn := &Function{
		Sig: Signature{
			Receiver: wit.U32{},
			Params:   []Param{{Name: "a", Type: wit.S64{}}},
		},
		Locals: []wit.Type{wit.F64{}},
	}
	want := []wit.Type{wit.U32{}, wit.S64{}, wit.F64{}}
	for i, w := range want {
		got, ok := fn.LocalType(uint32(i))
		if !ok || got != w {
			t.Errorf("LocalType(%d) = %v, %v; want %v", i, got, ok, w)
		}
	}
	if _, ok := fn.LocalType(3); ok {
		t.Error("LocalType(3) should be out of range")
	}
	if fn.NumParams() != 2 {
		t.Errorf("NumParams() = %d, want 2", fn.NumParams())
	}
}

func TestWalkAndRewrite(t *testing.T) {
	body := []Instruction{
		Int(wit.S64{}, 1),
		If{
			Then: []Instruction{FPLoad{Name: "f"}},
			Else: []Instruction{Loop{Body: []Instruction{FPLoad{Name: "g"}}}},
		},
	}

	var names []string
	Walk(body, func(ins Instruction) bool {
		if fp, ok := ins.(FPLoad); ok {
			names = append(names, fp.Name)
		}
		return true
	})
	if strings.Join(names, ",") != "f,g" {
		t.Errorf("Walk found %v", names)
	}

	out := Rewrite(body, func(ins Instruction) []Instruction {
		if fp, ok := ins.(FPLoad); ok {
			return []Instruction{FPLoad{Name: fp.Name + "2"}, Drop{}}
		}
		return []Instruction{ins}
	})
	names = names[:0]
	drops := 0
	Walk(out, func(ins Instruction) bool {
		switch v := ins.(type) {
		case FPLoad:
			names = append(names, v.Name)
		case Drop:
			drops++
		}
		return true
	})
	if strings.Join(names, ",") != "f2,g2" || drops != 2 {
		t.Errorf("Rewrite result names=%v drops=%d", names, drops)
	}
	// original untouched
	if body[1].(If).Then[0].(FPLoad).Name != "f" {
		t.Error("Rewrite mutated its input")
	}
}

func TestNodes(t *testing.T) {
	m := &Module{
		ID:        ModuleID{Org: "acme", Name: "app"},
		Functions: []*Function{{Name: "main"}},
		TypeDefs:  []*TypeDef{{Name: "Person", Functions: []*Function{{Name: "name"}}}},
	}
	nodes := m.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes", len(nodes))
	}
	for _, n := range nodes {
		switch v := n.(type) {
		case *Module:
			if v.OwnedFunctions()[0].Name != "main" {
				t.Error("module functions")
			}
		case *TypeDef:
			if v.NodeName() != "Person" || v.OwnedFunctions()[0].Name != "name" {
				t.Error("type functions")
			}
		default:
			t.Fatalf("unexpected node %T", n)
		}
	}
}

const sampleBuild = `{
  "modules": [{
    "org": "acme", "name": "app", "version": "1.0.0",
    "imports": [{"org": "acme", "name": "lib", "version": "2.0.0"}],
    "globals": [{"name": "count", "type": "s64", "init": [{"op": "const", "type": "s64", "value": 5}]}],
    "constants": [{"name": "LIMIT", "type": "u32", "value": 10}],
    "types": [
      {"name": "Point", "kind": "record", "fields": [{"name": "x", "type": "s32"}, {"name": "y", "type": "s32"}]},
      {"name": "Counter", "kind": "object", "functions": [{"name": "get", "result": "s64",
        "body": [{"op": "load_global", "name": "count", "type": "s64"}, {"op": "return"}]}]}
    ],
    "functions": [
      {"name": "main", "pos": {"source": "main.bal", "line": 3, "column": 1},
       "params": [{"name": "n", "type": "s64", "defaultable": true, "default": [{"op": "const", "type": "s64", "value": 1}]}],
       "locals": ["f64"],
       "body": [
         {"op": "load_local", "index": 0},
         {"op": "const", "type": "s64", "value": 0},
         {"op": "binary", "kind": "gt", "type": "s64"},
         {"op": "if", "then": [{"op": "fp_load", "name": "helper"}, {"op": "drop"}]},
         {"op": "call", "module": {"org": "acme", "name": "lib"}, "name": "work", "provided": [true]},
         {"op": "return"}
       ]},
      {"name": "readFile", "extern": true, "result": "s32", "interop": {"namespace": "host:io", "name": "read"}}
    ]
  }]
}`

func TestDecode(t *testing.T) {
	b, err := DecodeBytes([]byte(sampleBuild))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(b.Modules) != 1 {
		t.Fatalf("got %d modules", len(b.Modules))
	}
	m := b.Modules[0]
	if m.ID.String() != "acme/app:1.0.0" {
		t.Errorf("ID = %s", m.ID)
	}
	if len(m.Imports) != 1 || m.Imports[0].Name != "lib" {
		t.Errorf("Imports = %v", m.Imports)
	}
	if g := m.Global("count"); g == nil || g.Type != (wit.S64{}) || len(g.Init) != 1 {
		t.Errorf("global count = %+v", g)
	}
	if c := m.Constants[0]; c.Value.Value != int64(10) {
		t.Errorf("constant value = %#v", c.Value.Value)
	}

	counter := m.TypeDef("Counter")
	if counter == nil || counter.Kind != TypeObject {
		t.Fatalf("Counter = %+v", counter)
	}
	if counter.Function("get").Sig.Receiver != (wit.U32{}) {
		t.Error("object receiver should be a handle")
	}
	if m.TypeDef("Point").Kind != TypeRecord {
		t.Error("Point should be a record")
	}

	main := m.Function("main")
	if main == nil || main.Pos.Source != "main.bal" {
		t.Fatalf("main = %+v", main)
	}
	if !main.Sig.Params[0].Defaultable || len(main.Sig.Params[0].Default) != 1 {
		t.Error("default param not decoded")
	}
	if len(main.Body) != 6 {
		t.Fatalf("main body has %d instructions", len(main.Body))
	}
	call, ok := main.Body[4].(Call)
	if !ok || call.Module.Name != "lib" || call.Name != "work" || len(call.Provided) != 1 {
		t.Errorf("call = %#v", main.Body[4])
	}
	if cmp, ok := main.Body[2].(Binary); !ok || cmp.Op != OpGt || !cmp.Op.Comparison() {
		t.Errorf("binary = %#v", main.Body[2])
	}

	rf := m.Function("readFile")
	if !rf.Extern() || rf.Interop == nil || rf.Interop.Namespace != "host:io" {
		t.Errorf("readFile = %+v", rf)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"modules": [`},
		{"unknown field", `{"mods": []}`},
		{"bad op", `{"modules": [{"name": "m", "functions": [{"name": "f", "body": [{"op": "jump"}]}]}]}`},
		{"bad receiver", `{"modules": [{"name": "m", "functions": [{"name": "f", "receiver": "Nope"}]}]}`},
		{"bad kind", `{"modules": [{"name": "m", "types": [{"name": "T", "kind": "union"}]}]}`},
		{"bad const", `{"modules": [{"name": "m", "constants": [{"name": "c", "type": "s32", "value": "x"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			var be *bkerrors.Error
			if !errors.As(err, &be) || be.Phase != bkerrors.PhaseLoad {
				t.Errorf("expected load-phase error, got %v", err)
			}
		})
	}
}
