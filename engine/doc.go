// Package engine loads and runs artifacts on wazero.
//
// An Engine owns one wazero runtime with the core v2 feature set. Host
// bindings from a natives registry become host modules named after their
// namespace, then every unit of the artifact is instantiated under its unit
// name, in artifact order. Cross-unit calls go through the exported
// "$functions" table of each module's init unit, so instantiation order is
// what wires the units together.
//
//	eng, _ := engine.New(ctx, nil)
//	defer eng.Close(ctx)
//	prog, err := eng.Load(ctx, res.Artifact, registry)
//	if err != nil {
//	    return err
//	}
//	stop := prog.ListenForShutdown(ctx)
//	defer stop()
//	err = prog.Run(ctx)
//
// Engine also implements the codegen verifier: Validate compiles a single
// unit without resolving its imports.
package engine
