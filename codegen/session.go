package codegen

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	wasmbackend "github.com/wippyai/wasm-backend"
	"github.com/wippyai/wasm-backend/deps"
	"github.com/wippyai/wasm-backend/desugar"
	"github.com/wippyai/wasm-backend/diag"
	"github.com/wippyai/wasm-backend/emit"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/lifecycle"
	"github.com/wippyai/wasm-backend/natives"
	"github.com/wippyai/wasm-backend/partition"
	"github.com/wippyai/wasm-backend/symbols"
	"github.com/wippyai/wasm-backend/wasm"
)

// Session compiles builds against shared state: the symbol table, the
// extern cache, the module registry and memoized dependency closures.
// State persists across builds until Reset, so a later build may call into
// modules of an earlier one. Builds on one session are serialized.
type Session struct {
	mu       sync.Mutex
	cfg      Config
	symbols  *symbols.Table
	cache    *natives.Cache
	registry *deps.Registry
	closure  *deps.Builder
	emitter  *emit.Emitter
	diags    *diag.Collector
}

// Result is the outcome of a build. Diagnostics are set even when the
// build fails; Artifact is nil when planning failed.
type Result struct {
	Artifact    *wasmbackend.Artifact
	Diagnostics []diag.Diagnostic
}

// NewSession returns a session. A nil cfg uses the defaults.
func NewSession(cfg *Config) *Session {
	c := cfg.withDefaults()
	t := symbols.NewTable()
	return &Session{
		cfg:      c,
		symbols:  t,
		cache:    natives.NewCache(),
		registry: c.Modules,
		closure:  deps.NewBuilder(c.Modules),
		emitter:  emit.New(t),
		diags:    diag.NewCollector(),
	}
}

// Symbols returns the session's symbol table.
func (s *Session) Symbols() *symbols.Table {
	return s.symbols
}

// Registry returns the registry resolving module imports.
func (s *Session) Registry() *deps.Registry {
	return s.registry
}

// AddExternMapping binds the extern function qualified (a module-level
// name or "Type.fn") of module to b. Mappings are consulted when a
// function has no usable interop declaration.
func (s *Session) AddExternMapping(module ir.ModuleID, qualified string, b *natives.Binding) {
	s.cache.Add(natives.CacheKey(module, qualified), b)
}

// Reset drops all state accumulated by earlier builds.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols.Clear()
	s.cache.Clear()
	s.closure.Clear()
	s.registry.Clear()
	s.diags.Reset()
}

// emitTask is one unit to emit. A nil unit is the module's shutdown
// listener.
type emitTask struct {
	plan *partition.Plan
	unit *partition.Unit
	name string
}

// Build compiles modules, given in dependency order with the entry module
// last. Planning runs module by module and stops at the first failing
// phase. Units are then emitted in parallel; a unit failing a capacity
// check gets an empty body without stopping its siblings, and every
// emission error is returned combined once all units are done.
func (s *Session) Build(ctx context.Context, modules []*ir.Module) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diags.Reset()
	// modules registered by this build may replace earlier IR
	s.closure.Clear()

	if len(modules) == 0 {
		return s.result(nil), errors.InvalidInput(errors.PhaseLoad, "no modules to build")
	}
	started := time.Now()
	if s.cfg.SynthesizeBuiltins {
		modules = s.withBuiltins(modules)
	}
	for _, m := range modules {
		if err := s.registry.Register(m); err != nil {
			return s.result(nil), err
		}
	}

	plans := make([]*partition.Plan, 0, len(modules))
	for i, m := range modules {
		if err := ctx.Err(); err != nil {
			return s.result(nil), err
		}
		plan, err := s.plan(m, i == len(modules)-1)
		if err != nil {
			return s.result(nil), err
		}
		plans = append(plans, plan)
	}

	tasks, err := s.tasks(plans)
	if err != nil {
		return s.result(nil), err
	}

	bins := make([][]byte, len(tasks))
	errs := make([]error, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			bins[i], errs[i] = s.emitUnit(gctx, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s.result(nil), err
	}

	art := wasmbackend.NewArtifact()
	art.Manifest.Entry = modules[len(modules)-1].ID.String()
	for _, plan := range plans {
		art.Manifest.Modules = append(art.Manifest.Modules, moduleInfo(plan))
	}
	for i, t := range tasks {
		if bins[i] == nil {
			continue
		}
		if err := art.Add(t.name, bins[i]); err != nil {
			errs = append(errs, err)
		}
	}

	err = errors.Combine(errs...)
	Logger().Info("build finished",
		zap.String("entry", art.Manifest.Entry),
		zap.Int("modules", len(plans)),
		zap.Int("units", len(art.Units)),
		zap.Int("bytes", art.Size()),
		zap.Int("errors", len(errors.Errors(err))),
		zap.Duration("elapsed", time.Since(started)))
	return s.result(art), err
}

func (s *Session) result(art *wasmbackend.Artifact) *Result {
	return &Result{Artifact: art, Diagnostics: s.diags.Diagnostics()}
}

// withBuiltins prepends an empty module for every builtin not part of the
// build or already registered.
func (s *Session) withBuiltins(modules []*ir.Module) []*ir.Module {
	present := make(map[string]bool, len(modules))
	for _, m := range modules {
		present[m.ID.Key()] = true
	}
	var stubs []*ir.Module
	for _, id := range deps.Builtins() {
		if present[id.Key()] {
			continue
		}
		if _, ok := s.registry.Resolve(id); ok {
			continue
		}
		stubs = append(stubs, &ir.Module{ID: id})
	}
	if len(stubs) == 0 {
		return modules
	}
	Logger().Debug("synthesized builtin modules", zap.Int("count", len(stubs)))
	return append(stubs, modules...)
}

// plan runs closure, desugar, partition, link and lifecycle synthesis
// over m.
func (s *Session) plan(m *ir.Module, entry bool) (*partition.Plan, error) {
	log := Logger().With(zap.String("module", m.ID.String()))

	closure, err := s.closure.Closure(m)
	if err != nil {
		s.diags.Report(diag.Diagnostic{Pos: m.Pos, Code: diag.UnresolvedModule, Message: err.Error()})
		return nil, err
	}

	if err := desugar.Module(m, s.resolve); err != nil {
		s.reportPlanning(m, err)
		return nil, err
	}

	plan, err := partition.New(s.symbols).Partition(m, entry)
	if err != nil {
		s.reportPlanning(m, err)
		return nil, err
	}

	// the linker reports its own diagnostics
	if err := natives.NewLinker(s.symbols, s.cfg.Natives, s.cache, s.diags).Link(m, entry); err != nil {
		return nil, err
	}

	if err := lifecycle.Synthesize(m, s.lifecycleDeps(closure)); err != nil {
		s.reportPlanning(m, err)
		return nil, err
	}

	log.Debug("module planned",
		zap.Int("units", len(plan.Units)),
		zap.Int("dependencies", len(closure)),
		zap.Uint32("table_size", plan.TableSize))
	return plan, nil
}

func (s *Session) resolve(id ir.ModuleID, name string) *ir.Function {
	e, ok := s.symbols.Lookup(id, name)
	if !ok {
		return nil
	}
	return e.Function
}

// lifecycleDeps drops builtin modules that are neither registered nor
// built, as there is no init unit to call into.
func (s *Session) lifecycleDeps(closure []ir.ModuleID) []ir.ModuleID {
	out := closure[:0:0]
	for _, id := range closure {
		if deps.IsBuiltin(id) {
			if _, ok := s.registry.Resolve(id); !ok {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}

func (s *Session) reportPlanning(m *ir.Module, err error) {
	code := diag.InternalError
	var e *errors.Error
	if stderrors.As(err, &e) {
		code = diagCode(e.Kind)
	}
	s.diags.Report(diag.Diagnostic{Pos: m.Pos, Code: code, Message: err.Error()})
}

func diagCode(kind errors.Kind) diag.Code {
	switch kind {
	case errors.KindNameCollision:
		return diag.NameCollision
	case errors.KindUnknownType:
		return diag.ReferenceUnknownType
	case errors.KindUnresolvedModule:
		return diag.UnresolvedModule
	case errors.KindUnresolvedNative:
		return diag.NativeNotAvailable
	default:
		return diag.InternalError
	}
}

// tasks lists the units of every plan followed by its listener. Two units
// with the same name would overwrite each other in the artifact.
func (s *Session) tasks(plans []*partition.Plan) ([]emitTask, error) {
	var tasks []emitTask
	seen := make(map[string]bool)
	var errs []error
	add := func(t emitTask) {
		if seen[t.name] {
			s.diags.Report(diag.Diagnostic{
				Code:    diag.DuplicateUnit,
				Message: "unit " + t.name + " is emitted more than once",
				Unit:    t.name,
			})
			errs = append(errs, errors.DuplicateUnit(t.name))
			return
		}
		seen[t.name] = true
		tasks = append(tasks, t)
	}
	for _, plan := range plans {
		for _, u := range plan.Units {
			add(emitTask{plan: plan, unit: u, name: u.Name})
		}
		add(emitTask{plan: plan, name: symbols.ListenerUnitName(plan.Module.ID)})
	}
	if len(errs) > 0 {
		return nil, errors.Combine(errs...)
	}
	return tasks, nil
}

// emitUnit lowers, serializes and optionally verifies one unit. A capacity
// failure returns an empty body together with the error.
func (s *Session) emitUnit(ctx context.Context, t emitTask) ([]byte, error) {
	var mod *wasm.Module
	if t.unit == nil {
		mod = emit.Listener(t.plan.Module)
	} else {
		res, err := s.emitter.Emit(t.plan, t.unit)
		if err != nil {
			code := diag.InternalError
			var e *errors.Error
			if stderrors.As(err, &e) {
				code = diagCode(e.Kind)
			}
			s.diags.Report(diag.Diagnostic{Code: code, Message: err.Error(), Unit: t.name})
			return nil, err
		}
		mod = res.Module
	}

	bin, err := s.serialize(t.plan.Module, t.unit, t.name, mod)
	if err != nil {
		return bin, err
	}

	if s.cfg.Verifier != nil {
		if err := s.cfg.Verifier.Validate(ctx, t.name, bin); err != nil {
			s.diags.Report(diag.Diagnostic{Code: diag.InternalError, Message: err.Error(), Unit: t.name})
			return nil, errors.Wrap(errors.PhaseVerify, errors.KindInternal, err, "unit "+t.name+" failed verification")
		}
	}
	Logger().Debug("unit serialized", zap.String("unit", t.name), zap.Int("bytes", len(bin)))
	return bin, nil
}

func moduleInfo(plan *partition.Plan) wasmbackend.ModuleInfo {
	m := plan.Module
	info := wasmbackend.ModuleInfo{
		ID:        m.ID.String(),
		InitUnit:  plan.InitUnit.Name,
		Listener:  symbols.ListenerUnitName(m.ID),
		TableSize: plan.TableSize,
		HasMain:   m.Function(symbols.MainName) != nil,
	}
	for _, u := range plan.Units {
		info.Units = append(info.Units, u.Name)
	}
	return info
}
