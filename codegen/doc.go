// Package codegen drives builds: it plans every module of a build and
// emits its units in parallel into an artifact.
//
// Planning runs sequentially per module, in the order given, because each
// phase records symbols that later modules resolve against:
//
//	closure -> desugar -> partition -> link -> lifecycle
//
// Emission then fans out over a bounded worker pool. Each worker lowers one
// unit, encodes it under the configured size limits and optionally hands it
// to a Verifier. Results are collected by task index, so the artifact's
// order and the diagnostics do not depend on scheduling.
//
// A function body or unit over its limit does not stop the build: the unit
// is stored with an empty body, a METHOD_TOO_LARGE or FILE_TOO_LARGE
// diagnostic is recorded, and Build returns the capacity error after all
// other units are done.
//
//	sess := codegen.NewSession(&codegen.Config{Workers: 4})
//	res, err := sess.Build(ctx, modules)
//	for _, d := range res.Diagnostics {
//	    fmt.Println(d)
//	}
package codegen
