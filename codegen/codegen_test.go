package codegen

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	wasmbackend "github.com/wippyai/wasm-backend"
	"github.com/wippyai/wasm-backend/deps"
	"github.com/wippyai/wasm-backend/diag"
	bkerrors "github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/natives"
	"github.com/wippyai/wasm-backend/symbols"
	"github.com/wippyai/wasm-backend/wasm"
)

var (
	appID = ir.ModuleID{Org: "acme", Name: "app", Version: "1.0.0"}
	libID = ir.ModuleID{Org: "acme", Name: "lib", Version: "1.0.0"}
)

func fn(name, source string, params []wit.Type, result wit.Type, body ...ir.Instruction) *ir.Function {
	f := &ir.Function{Name: name, Sig: ir.Signature{Result: result}, Body: body}
	if source != "" {
		f.Pos = &ir.Position{Source: source, Line: 1}
	}
	for i, p := range params {
		f.Sig.Params = append(f.Sig.Params, ir.Param{Name: string(rune('a' + i)), Type: p})
	}
	return f
}

func s32(v int64) ir.Const { return ir.Int(wit.S32{}, v) }

func libModule() *ir.Module {
	return &ir.Module{
		ID: libID,
		Functions: []*ir.Function{
			fn("twice", "lib.bal", []wit.Type{wit.S32{}}, wit.S32{},
				ir.LoadLocal{Index: 0}, s32(2), ir.Binary{Op: ir.OpMul, Type: wit.S32{}}),
		},
		Globals: []*ir.GlobalVar{{Name: "base", Type: wit.S32{}, Init: []ir.Instruction{s32(20)}}},
	}
}

func appModule() *ir.Module {
	return &ir.Module{
		ID:      appID,
		Imports: []ir.ModuleID{libID},
		Functions: []*ir.Function{
			fn("inc", "util.bal", []wit.Type{wit.S32{}}, wit.S32{},
				ir.LoadLocal{Index: 0}, s32(1), ir.Binary{Op: ir.OpAdd, Type: wit.S32{}}),
			fn("main", "main.bal", nil, nil,
				ir.LoadGlobal{Module: libID, Name: "base", Type: wit.S32{}},
				ir.Call{Module: libID, Name: "twice"},
				ir.Call{Name: "inc"},
				ir.StoreGlobal{Name: "result", Type: wit.S32{}}),
		},
		Globals: []*ir.GlobalVar{{Name: "result", Type: wit.S32{}}},
	}
}

func newRuntime(t *testing.T) (context.Context, wazero.Runtime) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(api.CoreFeaturesV2))
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return ctx, rt
}

// load instantiates every unit of art in order.
func load(t *testing.T, ctx context.Context, rt wazero.Runtime, art *wasmbackend.Artifact) map[string]api.Module {
	t.Helper()
	out := make(map[string]api.Module)
	for _, name := range art.Order {
		mod, err := rt.InstantiateWithConfig(ctx, art.Units[name], wazero.NewModuleConfig().WithName(name))
		if err != nil {
			t.Fatalf("instantiate %s: %v", name, err)
		}
		out[name] = mod
	}
	return out
}

func runMain(t *testing.T, ctx context.Context, initUnit api.Module) {
	t.Helper()
	f := initUnit.ExportedFunction(symbols.MainWrapperName)
	if f == nil {
		t.Fatalf("%s has no %s", initUnit.Name(), symbols.MainWrapperName)
	}
	if _, err := f.Call(ctx); err != nil {
		t.Fatalf("main: %v", err)
	}
}

func isErr(err error, phase bkerrors.Phase, kind bkerrors.Kind) bool {
	return errors.Is(err, &bkerrors.Error{Phase: phase, Kind: kind})
}

func TestBuild_RunsOnWazero(t *testing.T) {
	sess := NewSession(&Config{Workers: 2})
	res, err := sess.Build(context.Background(), []*ir.Module{libModule(), appModule()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics: %v", res.Diagnostics)
	}
	art := res.Artifact

	if art.Manifest.Entry != appID.String() {
		t.Errorf("entry = %q", art.Manifest.Entry)
	}
	app, ok := art.Manifest.Module(appID.String())
	if !ok {
		t.Fatal("app missing from manifest")
	}
	if !app.HasMain || app.InitUnit != symbols.InitUnitName(appID) || app.Listener != symbols.ListenerUnitName(appID) {
		t.Errorf("app info = %+v", app)
	}
	wantUnits := []string{"acme/app/$_init", "acme/app/main", "acme/app/util"}
	if strings.Join(app.Units, ",") != strings.Join(wantUnits, ",") {
		t.Errorf("app units = %v, want %v", app.Units, wantUnits)
	}
	if lib, _ := art.Manifest.Module(libID.String()); lib.HasMain {
		t.Error("lib has no main")
	}

	wantOrder := []string{
		"acme/lib/$_init", "acme/lib/lib", symbols.ListenerUnitName(libID),
		"acme/app/$_init", "acme/app/main", "acme/app/util", symbols.ListenerUnitName(appID),
	}
	if strings.Join(art.Order, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("order = %v\nwant %v", art.Order, wantOrder)
	}
	if empty := art.Empty(); len(empty) != 0 {
		t.Errorf("empty units: %v", empty)
	}

	ctx, rt := newRuntime(t)
	mods := load(t, ctx, rt, art)
	initUnit := mods[app.InitUnit]
	runMain(t, ctx, initUnit)
	if got := int32(initUnit.ExportedGlobal("result").Get()); got != 41 {
		t.Errorf("result = %d, want 41", got)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	build := func(workers int) *wasmbackend.Artifact {
		res, err := NewSession(&Config{Workers: workers}).Build(context.Background(), []*ir.Module{libModule(), appModule()})
		if err != nil {
			t.Fatalf("Build(workers=%d): %v", workers, err)
		}
		return res.Artifact
	}
	a, b := build(1), build(8)
	if strings.Join(a.Order, ",") != strings.Join(b.Order, ",") {
		t.Fatalf("order differs: %v vs %v", a.Order, b.Order)
	}
	for _, name := range a.Order {
		if !bytes.Equal(a.Units[name], b.Units[name]) {
			t.Errorf("unit %s differs between worker counts", name)
		}
	}
}

func TestBuild_MethodTooLarge(t *testing.T) {
	big := fn("big", "big.bal", nil, nil)
	for i := 0; i < 64; i++ {
		big.Body = append(big.Body, s32(1), ir.Drop{})
	}
	m := &ir.Module{
		ID: appID,
		Functions: []*ir.Function{
			big,
			fn("small", "small.bal", nil, wit.S32{}, s32(1)),
		},
	}
	sess := NewSession(&Config{Limits: wasm.EncodeLimits{MaxFunctionSize: 128}})
	res, err := sess.Build(context.Background(), []*ir.Module{m})
	if !isErr(err, bkerrors.PhaseSerialize, bkerrors.KindMethodTooLarge) {
		t.Fatalf("err = %v, want method too large", err)
	}
	if res.Artifact == nil {
		t.Fatal("artifact missing")
	}

	bigUnit := "acme/app/big"
	if bin, ok := res.Artifact.Unit(bigUnit); !ok || len(bin) != 0 {
		t.Errorf("big unit present=%v len=%d, want empty body", ok, len(bin))
	}
	for _, name := range []string{"acme/app/$_init", "acme/app/small", symbols.ListenerUnitName(appID)} {
		if bin, ok := res.Artifact.Unit(name); !ok || len(bin) == 0 {
			t.Errorf("sibling %s missing", name)
		}
	}

	ds := diagsWith(res.Diagnostics, diag.MethodTooLarge)
	if len(ds) != 1 {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
	if ds[0].Pos != big.Pos || ds[0].Unit != bigUnit {
		t.Errorf("diagnostic = %+v, want position of big", ds[0])
	}
	if !strings.Contains(ds[0].Message, "big") {
		t.Errorf("message %q does not name the function", ds[0].Message)
	}
}

func TestBuild_FileTooLarge(t *testing.T) {
	m := &ir.Module{ID: appID, Functions: []*ir.Function{fn("main", "main.bal", nil, nil)}}
	sess := NewSession(&Config{Limits: wasm.EncodeLimits{MaxModuleSize: 120}})
	res, err := sess.Build(context.Background(), []*ir.Module{m})
	if !isErr(err, bkerrors.PhaseSerialize, bkerrors.KindFileTooLarge) {
		t.Fatalf("err = %v, want file too large", err)
	}
	initName := symbols.InitUnitName(appID)
	if bin, ok := res.Artifact.Unit(initName); !ok || len(bin) != 0 {
		t.Errorf("init unit present=%v len=%d", ok, len(bin))
	}
	found := false
	for _, d := range diagsWith(res.Diagnostics, diag.FileTooLarge) {
		if d.Unit == initName {
			found = true
		}
	}
	if !found {
		t.Errorf("no FILE_TOO_LARGE for %s in %v", initName, res.Diagnostics)
	}
}

func TestBuild_PlanningErrors(t *testing.T) {
	missing := ir.ModuleID{Org: "acme", Name: "missing"}
	printFn := fn("print", "io.bal", []wit.Type{wit.S32{}}, nil)
	printFn.Flags = ir.FlagExtern

	tests := []struct {
		name  string
		mods  []*ir.Module
		phase bkerrors.Phase
		kind  bkerrors.Kind
		code  diag.Code
	}{
		{
			name:  "unresolved import",
			mods:  []*ir.Module{{ID: appID, Imports: []ir.ModuleID{missing}}},
			phase: bkerrors.PhaseClosure,
			kind:  bkerrors.KindUnresolvedModule,
			code:  diag.UnresolvedModule,
		},
		{
			name:  "unbound extern",
			mods:  []*ir.Module{{ID: appID, Functions: []*ir.Function{printFn}}},
			phase: bkerrors.PhaseLink,
			kind:  bkerrors.KindUnresolvedNative,
			code:  diag.NativeNotAvailable,
		},
		{
			name: "colliding names",
			mods: []*ir.Module{{ID: appID, Functions: []*ir.Function{
				fn("a.b", "x.bal", nil, nil),
				fn("a_b", "x.bal", nil, nil),
			}}},
			phase: bkerrors.PhasePartition,
			kind:  bkerrors.KindNameCollision,
			code:  diag.NameCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewSession(nil).Build(context.Background(), tt.mods)
			if !isErr(err, tt.phase, tt.kind) {
				t.Fatalf("err = %v", err)
			}
			if res.Artifact != nil {
				t.Error("artifact produced for a failed plan")
			}
			if len(diagsWith(res.Diagnostics, tt.code)) == 0 {
				t.Errorf("no %s in %v", tt.code, res.Diagnostics)
			}
		})
	}
}

func TestBuild_NoModules(t *testing.T) {
	_, err := NewSession(nil).Build(context.Background(), nil)
	if !isErr(err, bkerrors.PhaseLoad, bkerrors.KindInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestBuild_ExternMapping(t *testing.T) {
	module := func() *ir.Module {
		printFn := fn("print", "io.bal", []wit.Type{wit.S32{}}, nil)
		printFn.Flags = ir.FlagExtern
		return &ir.Module{ID: appID, Functions: []*ir.Function{
			printFn,
			fn("main", "main.bal", nil, nil, s32(7), ir.Call{Name: "print"}),
		}}
	}

	sess := NewSession(nil)
	if _, err := sess.Build(context.Background(), []*ir.Module{module()}); err == nil {
		t.Fatal("build without a binding succeeded")
	}

	sess.AddExternMapping(appID, "print", &natives.Binding{Namespace: "env", Name: "print", Params: []wit.Type{wit.S32{}}})
	res, err := sess.Build(context.Background(), []*ir.Module{module()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if e, ok := sess.Symbols().Lookup(appID, "print"); !ok || e.Native == nil || e.Native.Namespace != "env" {
		t.Fatalf("print entry = %+v", e)
	}

	ctx, rt := newRuntime(t)
	var printed []int32
	if _, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, v int32) { printed = append(printed, v) }).
		Export("print").
		Instantiate(ctx); err != nil {
		t.Fatal(err)
	}
	mods := load(t, ctx, rt, res.Artifact)
	runMain(t, ctx, mods[symbols.InitUnitName(appID)])
	if len(printed) != 1 || printed[0] != 7 {
		t.Errorf("printed = %v", printed)
	}
}

func TestBuild_DuplicateUnit(t *testing.T) {
	v2 := appID
	v2.Version = "2.0.0"
	mods := []*ir.Module{
		{ID: appID, Functions: []*ir.Function{fn("f", "main.bal", nil, nil)}},
		{ID: v2, Functions: []*ir.Function{fn("g", "main.bal", nil, nil)}},
	}
	res, err := NewSession(nil).Build(context.Background(), mods)
	if !isErr(err, bkerrors.PhaseEmit, bkerrors.KindDuplicateUnit) {
		t.Fatalf("err = %v", err)
	}
	if len(diagsWith(res.Diagnostics, diag.DuplicateUnit)) == 0 {
		t.Errorf("no DUPLICATE_UNIT in %v", res.Diagnostics)
	}
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSession(nil).Build(ctx, []*ir.Module{appModule()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBuild_SynthesizeBuiltins(t *testing.T) {
	sess := NewSession(&Config{SynthesizeBuiltins: true})
	res, err := sess.Build(context.Background(), []*ir.Module{libModule(), appModule()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	art := res.Artifact
	if got, want := len(art.Manifest.Modules), len(deps.Builtins())+2; got != want {
		t.Fatalf("modules = %d, want %d", got, want)
	}
	if art.Manifest.Modules[0].ID != deps.AnnotationsModule.String() {
		t.Errorf("first module = %s", art.Manifest.Modules[0].ID)
	}
	if _, ok := art.Unit(symbols.InitUnitName(deps.InternalModule)); !ok {
		t.Error("internal module not synthesized")
	}

	ctx, rt := newRuntime(t)
	mods := load(t, ctx, rt, art)
	initUnit := mods[symbols.InitUnitName(appID)]
	runMain(t, ctx, initUnit)
	if got := int32(initUnit.ExportedGlobal("result").Get()); got != 41 {
		t.Errorf("result = %d, want 41", got)
	}
}

type recordingVerifier struct {
	mu     sync.Mutex
	seen   []string
	reject string
}

func (v *recordingVerifier) Validate(_ context.Context, name string, bin []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = append(v.seen, name)
	if name == v.reject {
		return errors.New("rejected")
	}
	if len(bin) < 8 {
		return errors.New("short unit")
	}
	return nil
}

func TestBuild_Verifier(t *testing.T) {
	listener := symbols.ListenerUnitName(appID)
	v := &recordingVerifier{reject: listener}
	sess := NewSession(&Config{Verifier: v})
	res, err := sess.Build(context.Background(), []*ir.Module{libModule(), appModule()})
	if !isErr(err, bkerrors.PhaseVerify, bkerrors.KindInternal) {
		t.Fatalf("err = %v", err)
	}
	if len(v.seen) != 7 {
		t.Errorf("verified %d units, want 7", len(v.seen))
	}
	if _, ok := res.Artifact.Unit(listener); ok {
		t.Error("rejected unit is in the artifact")
	}
	if _, ok := res.Artifact.Unit(symbols.InitUnitName(appID)); !ok {
		t.Error("accepted unit missing")
	}
}

func TestBuild_RebuildWithNewImport(t *testing.T) {
	sess := NewSession(nil)
	bare := &ir.Module{ID: appID, Functions: []*ir.Function{fn("main", "main.bal", nil, nil)}}
	if _, err := sess.Build(context.Background(), []*ir.Module{bare}); err != nil {
		t.Fatalf("first build: %v", err)
	}

	app := appModule()
	res, err := sess.Build(context.Background(), []*ir.Module{libModule(), app})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	var initsLib bool
	for _, ins := range app.Functions[0].Body {
		if c, ok := ins.(ir.Call); ok && c.Module == libID && c.Name == symbols.InitName {
			initsLib = true
		}
	}
	if !initsLib {
		t.Errorf("%s does not initialize %s: %v", symbols.InitName, libID, app.Functions[0].Body)
	}

	ctx, rt := newRuntime(t)
	mods := load(t, ctx, rt, res.Artifact)
	initUnit := mods[symbols.InitUnitName(appID)]
	runMain(t, ctx, initUnit)
	if got := int32(initUnit.ExportedGlobal("result").Get()); got != 41 {
		t.Errorf("result = %d, want 41", got)
	}
}

func TestSession_Reset(t *testing.T) {
	sess := NewSession(nil)
	if _, err := sess.Build(context.Background(), []*ir.Module{libModule()}); err != nil {
		t.Fatal(err)
	}
	if sess.Symbols().Len() == 0 || sess.Registry().Len() == 0 {
		t.Fatal("build recorded no state")
	}

	// A later build resolves against the earlier one.
	if _, err := sess.Build(context.Background(), []*ir.Module{appModule()}); err != nil {
		t.Fatalf("incremental build: %v", err)
	}

	sess.Reset()
	if n := sess.Symbols().Len(); n != 0 {
		t.Errorf("symbols after reset = %d", n)
	}
	if n := sess.Registry().Len(); n != 0 {
		t.Errorf("registry after reset = %d", n)
	}
	if _, err := sess.Build(context.Background(), []*ir.Module{appModule()}); !isErr(err, bkerrors.PhaseClosure, bkerrors.KindUnresolvedModule) {
		t.Errorf("build after reset: %v", err)
	}
}

func diagsWith(ds []diag.Diagnostic, code diag.Code) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, d := range ds {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}
