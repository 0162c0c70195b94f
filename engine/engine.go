package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-backend/errors"
)

// Engine wraps one wazero runtime. Units loaded into the same engine share
// a module namespace, so a program may import modules of an artifact
// loaded earlier.
type Engine struct {
	runtime wazero.Runtime
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Interpreter selects the interpreter instead of the compiler. It is
	// slower to run but faster to start, which suits one-shot programs and
	// tests.
	Interpreter bool

	// CloseOnContextDone aborts running guest code when the calling
	// context is done.
	CloseOnContextDone bool
}

// New creates an engine. A nil cfg uses the defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2)

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Validate compiles one encoded unit without instantiating it. Imports are
// not resolved, so units may be validated in any order and concurrently.
func (e *Engine) Validate(ctx context.Context, name string, bin []byte) error {
	if len(bin) == 0 {
		return errors.New(errors.PhaseVerify, errors.KindInvalidInput).
			Path(name).
			Detail("unit has no body").
			Build()
	}
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		Logger().Debug("unit rejected", zap.String("unit", name), zap.Error(err))
		return errors.New(errors.PhaseVerify, errors.KindInvalidInput).
			Path(name).
			Cause(err).
			Detail("compile failed").
			Build()
	}
	return compiled.Close(ctx)
}

// Close releases the runtime and every module loaded into it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
