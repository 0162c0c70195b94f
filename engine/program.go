package engine

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbackend "github.com/wippyai/wasm-backend"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/natives"
	"github.com/wippyai/wasm-backend/symbols"
)

// Program is a loaded artifact.
type Program struct {
	engine   *Engine
	manifest wasmbackend.Manifest
	units    map[string]api.Module
	order    []string

	stopOnce sync.Once
	stopErr  error
}

// Load instantiates every unit of art in artifact order, after exposing
// the handlers of reg as host modules. Units with an empty body failed a
// capacity check and make the artifact unloadable.
func (e *Engine) Load(ctx context.Context, art *wasmbackend.Artifact, reg *natives.Registry) (*Program, error) {
	if empty := art.Empty(); len(empty) > 0 {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Value(empty).
			Detail("units without a body: %s", strings.Join(empty, ", ")).
			Build()
	}
	if err := e.instantiateHosts(ctx, reg); err != nil {
		return nil, err
	}

	p := &Program{
		engine:   e,
		manifest: art.Manifest,
		units:    make(map[string]api.Module, len(art.Order)),
	}
	for _, name := range art.Order {
		bin, ok := art.Unit(name)
		if !ok {
			_ = p.Close(ctx)
			return nil, errors.NotFound(errors.PhaseLoad, "unit", name)
		}
		mod, err := e.runtime.InstantiateWithConfig(ctx, bin,
			wazero.NewModuleConfig().WithName(name).WithStartFunctions())
		if err != nil {
			_ = p.Close(ctx)
			return nil, errors.New(errors.PhaseLoad, errors.KindInternal).
				Path(name).
				Cause(err).
				Detail("instantiate unit").
				Build()
		}
		p.units[name] = mod
		p.order = append(p.order, name)
	}
	Logger().Debug("artifact loaded",
		zap.String("entry", art.Manifest.Entry),
		zap.Int("units", len(p.order)))
	return p, nil
}

// Unit returns the instance of unit name.
func (p *Program) Unit(name string) (api.Module, bool) {
	m, ok := p.units[name]
	return m, ok
}

// Manifest returns the manifest of the loaded artifact.
func (p *Program) Manifest() wasmbackend.Manifest {
	return p.manifest
}

func (p *Program) entry() (wasmbackend.ModuleInfo, error) {
	info, ok := p.manifest.Module(p.manifest.Entry)
	if !ok {
		return info, errors.NotFound(errors.PhaseRuntime, "entry module", p.manifest.Entry)
	}
	return info, nil
}

func (p *Program) call(ctx context.Context, unit, export string) error {
	mod, ok := p.units[unit]
	if !ok {
		return errors.NotFound(errors.PhaseRuntime, "unit", unit)
	}
	fn := mod.ExportedFunction(export)
	if fn == nil {
		return errors.NotFound(errors.PhaseRuntime, "export", unit+"."+export)
	}
	if _, err := fn.Call(ctx); err != nil {
		return errors.New(errors.PhaseRuntime, errors.KindInternal).
			Path(unit, export).
			Cause(err).
			Detail("call failed").
			Build()
	}
	return nil
}

// Init runs the entry module's init function, which initializes its
// dependencies first.
func (p *Program) Init(ctx context.Context) error {
	info, err := p.entry()
	if err != nil {
		return err
	}
	return p.call(ctx, info.InitUnit, symbols.InitName)
}

// Start runs the entry module's start function.
func (p *Program) Start(ctx context.Context) error {
	info, err := p.entry()
	if err != nil {
		return err
	}
	return p.call(ctx, info.InitUnit, symbols.StartName)
}

// Run initializes and starts the program. Lifecycle functions run at most
// once, so Run after Init only starts.
func (p *Program) Run(ctx context.Context) error {
	info, err := p.entry()
	if err != nil {
		return err
	}
	if info.HasMain {
		return p.call(ctx, info.InitUnit, symbols.MainWrapperName)
	}
	if err := p.Init(ctx); err != nil {
		return err
	}
	return p.Start(ctx)
}

// Stop runs the shutdown listener of every module, dependents before their
// dependencies. Only the first call has any effect.
func (p *Program) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		var errs []error
		for i := len(p.manifest.Modules) - 1; i >= 0; i-- {
			info := p.manifest.Modules[i]
			if err := p.call(ctx, info.Listener, symbols.ListenerExport); err != nil {
				Logger().Warn("shutdown listener failed", zap.String("module", info.ID), zap.Error(err))
				errs = append(errs, err)
			}
		}
		p.stopErr = errors.Combine(errs...)
	})
	return p.stopErr
}

// ListenForShutdown stops the program on SIGINT, SIGTERM or when ctx is
// done. The returned function unregisters the handler without stopping.
func (p *Program) ListenForShutdown(ctx context.Context) func() {
	sigCtx, unregister := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer unregister()
		select {
		case <-sigCtx.Done():
			select {
			case <-done:
				return
			default:
			}
			Logger().Info("shutting down", zap.String("entry", p.manifest.Entry))
			if err := p.Stop(context.WithoutCancel(ctx)); err != nil {
				Logger().Error("shutdown failed", zap.Error(err))
			}
		case <-done:
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// Close releases the program's units in reverse load order.
func (p *Program) Close(ctx context.Context) error {
	var errs []error
	for i := len(p.order) - 1; i >= 0; i-- {
		if err := p.units[p.order[i]].Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.order = nil
	return errors.Combine(errs...)
}
