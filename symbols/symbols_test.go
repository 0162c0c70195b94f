package symbols

import (
	"errors"
	"testing"

	"github.com/wippyai/wasm-backend/abi"
	bkerrors "github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
)

var app = ir.ModuleID{Org: "acme", Name: "app.core", Version: "1.0.0"}

func TestNaming(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"package", PackageName(app), "acme/app_core/"},
		{"anon package", PackageName(ir.ModuleID{Org: ir.AnonOrg, Name: "."}), ""},
		{"anon org", PackageName(ir.ModuleID{Name: "tool"}), "tool/"},
		{"init unit", InitUnitName(app), "acme/app_core/$_init"},
		{"source unit", UnitName(app, &ir.Position{Source: "main.bal"}), "acme/app_core/main"},
		{"nested source", UnitName(app, &ir.Position{Source: "\\sub\\util.v2.bal"}), "acme/app_core/sub/util$$v2"},
		{"no position", UnitName(app, nil), "acme/app_core/$_init"},
		{"empty source", UnitName(app, &ir.Position{}), "acme/app_core/$_init"},
		{"value unit", ValueUnitName(app, "Person"), "acme/app_core/$value$Person"},
		{"listener", ListenerUnitName(app), "acme/app_core/$_init$SignalListener"},
		{"lock", LockName("a.b"), "$locka_b"},
		{"lambda", LambdaName("pkg.fn", 2), "$lambda$pkg_fn$2"},
		{"trampoline", TrampolineName(InitName), "$lambda$<init>"},
		{"attached", AttachedName("Person", "greet"), "Person.greet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestSameSourceSameUnit(t *testing.T) {
	a := UnitName(app, &ir.Position{Source: "main.bal", Line: 1})
	b := UnitName(app, &ir.Position{Source: "main.bal", Line: 40})
	if a != b {
		t.Errorf("same source file gave %q and %q", a, b)
	}
}

func TestLifecycleSlot(t *testing.T) {
	for i, name := range Lifecycle {
		slot, ok := LifecycleSlot(name)
		if !ok || slot != uint32(i) {
			t.Errorf("LifecycleSlot(%q) = %d, %v", name, slot, ok)
		}
		if !IsLifecycle(name) {
			t.Errorf("IsLifecycle(%q) = false", name)
		}
	}
	if IsLifecycle("main") {
		t.Error("main is not a lifecycle function")
	}
}

func TestTable_InsertLookup(t *testing.T) {
	tbl := NewTable()
	e := &Entry{Module: app, Name: "helper", Export: "helper", Unit: "acme/app_core/main", Slot: 5, Descriptor: abi.Void}
	tbl.Insert(e)

	got, ok := tbl.Lookup(app, "helper")
	if !ok || got != e {
		t.Fatalf("Lookup = %v, %v", got, ok)
	}
	if got.Org() != "acme" || got.Version() != "1.0.0" {
		t.Errorf("Org/Version = %s/%s", got.Org(), got.Version())
	}
	if _, ok := tbl.Lookup(app, "missing"); ok {
		t.Error("missing symbol resolved")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len = %d", tbl.Len())
	}

	tbl.Clear()
	if _, ok := tbl.Lookup(app, "helper"); ok {
		t.Error("Clear did not drop entries")
	}
}

func TestTable_LifecycleFallback(t *testing.T) {
	tbl := NewTable()
	dep := ir.ModuleID{Org: "std", Name: "lang.int"}
	e, ok := tbl.Lookup(dep, StartName)
	if !ok {
		t.Fatal("lifecycle lookup failed")
	}
	if e.Unit != "std/lang_int/$_init" || e.Slot != 1 {
		t.Errorf("got unit %q slot %d", e.Unit, e.Slot)
	}
	if len(e.Descriptor.Type.Params) != 0 || len(e.Descriptor.Type.Results) != 0 {
		t.Error("lifecycle descriptor must be ()->()")
	}
}

func TestTable_GlobalUnitFallback(t *testing.T) {
	tbl := NewTable()
	tbl.SetGlobalUnit(app, "count", "custom")
	if got := tbl.GlobalUnit(app, "count"); got != "custom" {
		t.Errorf("GlobalUnit(count) = %q", got)
	}
	if got := tbl.GlobalUnit(app, "unmapped"); got != InitUnitName(app) {
		t.Errorf("GlobalUnit(unmapped) = %q, want init unit", got)
	}
}

func TestTable_Functions(t *testing.T) {
	tbl := NewTable()
	other := ir.ModuleID{Org: "acme", Name: "lib"}
	tbl.Insert(&Entry{Module: app, Name: "b", Slot: 4})
	tbl.Insert(&Entry{Module: app, Name: "a", Slot: 3})
	tbl.Insert(&Entry{Module: other, Name: "c", Slot: 3})
	tbl.SetTableSize(app, 9)

	fns := tbl.Functions(app)
	if len(fns) != 2 || fns[0].Name != "a" || fns[1].Name != "b" {
		t.Errorf("Functions = %v", fns)
	}
	if size, ok := tbl.TableSize(app); !ok || size != 9 {
		t.Errorf("TableSize = %d, %v", size, ok)
	}
	if _, ok := tbl.TableSize(other); ok {
		t.Error("unexpected table size for lib")
	}
}

func TestNames_Collision(t *testing.T) {
	n := NewNames("acme/app")
	if got, err := n.Add("Person.greet", CleanupName); err != nil || got != "Person_greet" {
		t.Fatalf("Add = %q, %v", got, err)
	}
	// Same logical name again is fine.
	if _, err := n.Add("Person.greet", CleanupName); err != nil {
		t.Fatalf("re-adding same name: %v", err)
	}
	_, err := n.Add("Person_greet", CleanupName)
	if err == nil {
		t.Fatal("expected collision")
	}
	if !errors.Is(err, &bkerrors.Error{Phase: bkerrors.PhasePartition, Kind: bkerrors.KindNameCollision}) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestNames_Normalization(t *testing.T) {
	n := NewNames("m")
	// "é" precomposed and decomposed are the same logical name.
	if _, err := n.Add("café", CleanupName); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Add("cafe\u0301", CleanupName); err != nil {
		t.Errorf("canonically equivalent names collided: %v", err)
	}
	if n.Len() != 1 {
		t.Errorf("Len = %d, want 1", n.Len())
	}
}
