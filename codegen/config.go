package codegen

import (
	"runtime"

	wasmbackend "github.com/wippyai/wasm-backend"
	"github.com/wippyai/wasm-backend/deps"
	"github.com/wippyai/wasm-backend/natives"
	"github.com/wippyai/wasm-backend/wasm"
)

// Config holds session configuration options.
type Config struct {
	// Natives resolves interop declarations of extern functions.
	// If nil, an empty registry is used and only extern mappings added
	// with AddExternMapping resolve.
	Natives *natives.Registry

	// Modules holds modules compiled outside this session that builds may
	// import. If nil, an empty registry is used.
	Modules *deps.Registry

	// Verifier, if set, checks every encoded unit before it is added to
	// the artifact.
	Verifier wasmbackend.Verifier

	// Limits bound encoded function and unit sizes. Zero fields take the
	// loader defaults.
	Limits wasm.EncodeLimits

	// Workers bounds parallel unit emission. Zero means GOMAXPROCS.
	Workers int

	// SynthesizeBuiltins adds an empty module for every builtin module
	// absent from the build, so the artifact runs without a runtime
	// library. Otherwise lifecycle calls into absent builtins are omitted.
	SynthesizeBuiltins bool
}

func (c *Config) withDefaults() Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.Natives == nil {
		out.Natives = natives.NewRegistry()
	}
	if out.Modules == nil {
		out.Modules = deps.NewRegistry()
	}
	defaults := wasm.DefaultEncodeLimits()
	if out.Limits.MaxFunctionSize == 0 {
		out.Limits.MaxFunctionSize = defaults.MaxFunctionSize
	}
	if out.Limits.MaxModuleSize == 0 {
		out.Limits.MaxModuleSize = defaults.MaxModuleSize
	}
	if out.Workers <= 0 {
		out.Workers = runtime.GOMAXPROCS(0)
	}
	return out
}
