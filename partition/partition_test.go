package partition

import (
	"errors"
	"testing"

	"go.bytecodealliance.org/wit"

	bkerrors "github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
)

var appID = ir.ModuleID{Org: "acme", Name: "app", Version: "1.0.0"}

func fn(name, source string, body ...ir.Instruction) *ir.Function {
	f := &ir.Function{Name: name, Body: body}
	if source != "" {
		f.Pos = &ir.Position{Source: source, Line: 1}
	}
	return f
}

func sample() *ir.Module {
	return &ir.Module{
		ID: appID,
		Functions: []*ir.Function{
			fn("main", "main.bal", ir.FPLoad{Name: "helper"}, ir.Drop{}),
			fn("helper", "main.bal"),
			fn("util", "util/strings.bal"),
			fn("synth", ""),
		},
		Globals:   []*ir.GlobalVar{{Name: "count", Type: wit.S64{}}},
		Constants: []*ir.Constant{{Name: "MAX", Type: wit.S64{}, Value: ir.Int(wit.S64{}, 10)}},
		TypeDefs: []*ir.TypeDef{
			{Name: "Dog", Kind: ir.TypeObject, Functions: []*ir.Function{fn("speak", "dog.bal")}},
			{Name: "Shape", Kind: ir.TypeObject, Abstract: true, Functions: []*ir.Function{fn("area", "shape.bal")}},
			{Name: "Point", Kind: ir.TypeRecord},
		},
	}
}

func TestPartition_LifecycleFirst(t *testing.T) {
	m := sample()
	tbl := symbols.NewTable()
	plan, err := New(tbl).Partition(m, true)
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range symbols.Lifecycle {
		if m.Functions[i].Name != name {
			t.Errorf("Functions[%d] = %s, want %s", i, m.Functions[i].Name, name)
		}
		if plan.InitUnit.Functions[i] != m.Functions[i] {
			t.Errorf("init unit function %d is not %s", i, name)
		}
		e, ok := tbl.Lookup(appID, name)
		if !ok || e.Slot != uint32(i) || e.Unit != "acme/app/$_init" {
			t.Errorf("%s entry = %+v", name, e)
		}
	}
	if plan.Units[0] != plan.InitUnit || !plan.InitUnit.IsInit {
		t.Error("init unit must come first")
	}
}

func TestEnsureLifecycle_MovesExisting(t *testing.T) {
	start := fn(symbols.StartName, "main.bal")
	m := &ir.Module{Functions: []*ir.Function{fn("a", "x.bal"), start}}
	EnsureLifecycle(m)
	EnsureLifecycle(m)
	if len(m.Functions) != 4 {
		t.Fatalf("len = %d", len(m.Functions))
	}
	if m.Functions[1] != start || m.Functions[3].Name != "a" {
		t.Errorf("order = %s %s %s %s", m.Functions[0].Name, m.Functions[1].Name, m.Functions[2].Name, m.Functions[3].Name)
	}
}

func TestPartition_Grouping(t *testing.T) {
	m := sample()
	tbl := symbols.NewTable()
	plan, err := New(tbl).Partition(m, true)
	if err != nil {
		t.Fatal(err)
	}

	main, _ := tbl.Lookup(appID, "main")
	helper, _ := tbl.Lookup(appID, "helper")
	if main.Unit != helper.Unit || main.Unit != "acme/app/main" {
		t.Errorf("main in %q, helper in %q", main.Unit, helper.Unit)
	}
	util, _ := tbl.Lookup(appID, "util")
	if util.Unit != "acme/app/util/strings" {
		t.Errorf("util unit = %q", util.Unit)
	}
	synth, _ := tbl.Lookup(appID, "synth")
	if synth.Unit != "acme/app/$_init" {
		t.Errorf("synth unit = %q", synth.Unit)
	}
	speak, ok := tbl.Lookup(appID, "Dog.speak")
	if !ok || speak.Unit != "acme/app/$value$Dog" || speak.Export != "Dog_speak" {
		t.Errorf("Dog.speak entry = %+v", speak)
	}
	if _, ok := tbl.Lookup(appID, "Shape.area"); ok {
		t.Error("abstract type got a value unit")
	}

	var names []string
	for _, u := range plan.Units {
		names = append(names, u.Name)
	}
	want := []string{"acme/app/$_init", "acme/app/$value$Dog", "acme/app/main", "acme/app/util/strings"}
	if len(names) != len(want) {
		t.Fatalf("units = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("units = %v, want %v", names, want)
			break
		}
	}
}

func TestPartition_Slots(t *testing.T) {
	m := sample()
	tbl := symbols.NewTable()
	plan, err := New(tbl).Partition(m, true)
	if err != nil {
		t.Fatal(err)
	}

	initUnit := plan.InitUnit
	// lifecycle + synth, then four trampolines since main exists
	if len(initUnit.Functions) != 4 || initUnit.LambdaSlots != 4 {
		t.Errorf("init functions=%d lambdas=%d", len(initUnit.Functions), initUnit.LambdaSlots)
	}
	mainUnit := plan.Unit("acme/app/main")
	if mainUnit.LambdaSlots != 1 {
		t.Errorf("main unit lambdas = %d", mainUnit.LambdaSlots)
	}

	var next uint32
	for _, u := range plan.Units {
		if u.SlotBase != next {
			t.Errorf("%s SlotBase = %d, want %d", u.Name, u.SlotBase, next)
		}
		next = u.LambdaBase() + u.LambdaSlots
	}
	if plan.TableSize != next {
		t.Errorf("TableSize = %d, want %d", plan.TableSize, next)
	}
	if size, _ := tbl.TableSize(appID); size != next {
		t.Errorf("recorded table size = %d", size)
	}

	seen := map[uint32]string{}
	for _, e := range tbl.Functions(appID) {
		if prev, ok := seen[e.Slot]; ok {
			t.Errorf("slot %d shared by %s and %s", e.Slot, prev, e.Name)
		}
		seen[e.Slot] = e.Name
	}
}

func TestPartition_Globals(t *testing.T) {
	m := sample()
	tbl := symbols.NewTable()
	if _, err := New(tbl).Partition(m, true); err != nil {
		t.Fatal(err)
	}
	g := m.Global("MAX")
	if g == nil || g.Kind != ir.GlobalConstant || len(g.Init) != 1 {
		t.Fatalf("constant global = %+v", g)
	}
	for _, name := range []string{"count", "MAX", symbols.LockStore, "never-declared"} {
		if got := tbl.GlobalUnit(appID, name); got != "acme/app/$_init" {
			t.Errorf("GlobalUnit(%s) = %q", name, got)
		}
	}

	dep := sample()
	dep.ID = ir.ModuleID{Org: "acme", Name: "dep"}
	if _, err := New(tbl).Partition(dep, false); err != nil {
		t.Fatal(err)
	}
	if dep.Global("MAX") != nil {
		t.Error("dependency constants must not become globals")
	}
}

func TestPartition_Deterministic(t *testing.T) {
	a, err := New(symbols.NewTable()).Partition(sample(), true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(symbols.NewTable()).Partition(sample(), true)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Units {
		if a.Units[i].Name != b.Units[i].Name || a.Units[i].SlotBase != b.Units[i].SlotBase {
			t.Errorf("unit %d differs: %s@%d vs %s@%d", i, a.Units[i].Name, a.Units[i].SlotBase, b.Units[i].Name, b.Units[i].SlotBase)
		}
	}
}

func TestPartition_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func() *ir.Module
		kind bkerrors.Kind
	}{
		{
			name: "function name collision",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a.b", "x.bal"), fn("a_b", "y.bal")}}
			},
			kind: bkerrors.KindNameCollision,
		},
		{
			name: "source name collision",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a", "x.y.bal"), fn("b", "x$$y.bal")}}
			},
			kind: bkerrors.KindNameCollision,
		},
		{
			name: "extension dropped",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a", "util.bal"), fn("b", "util.txt")}}
			},
			kind: bkerrors.KindNameCollision,
		},
		{
			name: "source named like the init unit",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a", "$_init.bal")}}
			},
			kind: bkerrors.KindNameCollision,
		},
		{
			name: "source named like the init unit without extension",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a", "$_init")}}
			},
			kind: bkerrors.KindNameCollision,
		},
		{
			name: "source named like the listener",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a", "$_init$SignalListener.bal")}}
			},
			kind: bkerrors.KindNameCollision,
		},
		{
			name: "source named like a value unit",
			mod: func() *ir.Module {
				return &ir.Module{
					ID:        appID,
					Functions: []*ir.Function{fn("a", "$value$Dog.bal")},
					TypeDefs:  []*ir.TypeDef{{Name: "Dog", Kind: ir.TypeObject, Functions: []*ir.Function{fn("speak", "dog.bal")}}},
				}
			},
			kind: bkerrors.KindNameCollision,
		},
		{
			name: "extension only",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a", ".bal")}}
			},
			kind: bkerrors.KindInvalidInput,
		},
		{
			name: "separator only",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, Functions: []*ir.Function{fn("a", "/")}}
			},
			kind: bkerrors.KindInvalidInput,
		},
		{
			name: "unlifted record functions",
			mod: func() *ir.Module {
				return &ir.Module{ID: appID, TypeDefs: []*ir.TypeDef{{Name: "P", Kind: ir.TypeRecord, Functions: []*ir.Function{fn("f", "")}}}}
			},
			kind: bkerrors.KindIllegalState,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(symbols.NewTable()).Partition(tt.mod(), false)
			if !errors.Is(err, &bkerrors.Error{Phase: bkerrors.PhasePartition, Kind: tt.kind}) {
				t.Errorf("err = %v", err)
			}
		})
	}
}
