// Package errors provides structured error types for the backend.
//
// Errors are categorized by Phase (which pass raised them) and Kind (error
// category). The Error type carries the owning module, a symbol path, and a
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindUnresolvedNative).
//		Module("acme/app:1.0.0").
//		Path("app", "readFile").
//		Detail("no host binding").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnresolvedModule("acme/app:1.0.0", "acme/lib")
//	err := errors.MethodTooLarge("acme/app/main", "run", 8_000_000)
//
// Capacity errors (method or file too large) are not fatal to sibling
// emission; everything else aborts the build. Several errors are merged
// with Combine, which wraps go.uber.org/multierr.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
