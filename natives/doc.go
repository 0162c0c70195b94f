// Package natives resolves extern functions to host bindings.
//
// A Registry holds the bindings the host provides, each with its wit
// signature and an optional wazero handler. Extern functions resolve in
// two steps: their interop declaration is validated against the registry,
// and when that names nothing the name-based Cache is consulted. Functions
// that resolve through neither are reported as
// NATIVE_FUNCTION_NOT_AVAILABLE and fail the build.
//
// The entry module and its dependencies are validated under different
// rules: only dependencies may bind bindings marked Internal.
package natives
