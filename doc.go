// Package wasmbackend is the back end of a module compiler: it lowers the
// mid-level IR of a set of resolved modules into WebAssembly units and
// runs them on wazero.
//
// # Architecture Overview
//
// The library is organized into packages that mirror the build phases:
//
//	wasmbackend/         Root package with the Artifact and Verifier types
//	├── ir/              Module IR and its JSON form
//	├── abi/             WIT to core type flattening, call descriptors, frames
//	├── symbols/         Symbol table and naming conventions
//	├── deps/            Module registry and dependency closure
//	├── desugar/         Default parameters and record attached functions
//	├── partition/       Assignment of functions to units and table slots
//	├── natives/         Host bindings and the extern linker
//	├── lifecycle/       Synthesized init, start and stop functions
//	├── emit/            Lowering of units to core modules
//	├── codegen/         Build session and parallel emission
//	├── engine/          Validation, loading and execution on wazero
//	├── wasm/            Core module model and size-limited encoder
//	├── diag/            Diagnostics sink
//	└── errors/          Structured error types
//
// # Quick Start
//
// Build a program and run it:
//
//	sess := codegen.NewSession(&codegen.Config{Natives: registry})
//	res, err := sess.Build(ctx, modules)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	prog, err := eng.Load(ctx, res.Artifact, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = prog.Run(ctx)
//
// # Units
//
// Every module becomes an init unit, one unit per source file and one value
// unit per concrete object or service type. The units of a module share a
// function table exported by the init unit; calls between units go through
// it. The artifact lists units in instantiation order: modules in
// dependency order, and within a module the init unit first.
//
// # Thread Safety
//
// A Session builds one program at a time. Emission inside Build runs in
// parallel over units, with the symbol table only read during that phase.
package wasmbackend
