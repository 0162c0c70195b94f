// Package wasm provides the core WebAssembly module model and binary encoder
// used by the emitter.
//
// Only the subset the backend produces is modelled: function types,
// function/table/global imports, funcref tables, mutable globals, exports,
// a start function, active element segments, code, and custom sections.
//
// # Building code
//
// Function bodies are assembled with Code:
//
//	c := wasm.NewCode()
//	c.LocalGet(0).LocalGet(1).Op(wasm.OpI64Add).End()
//	m.Code = append(m.Code, wasm.FuncBody{Code: c.Bytes()})
//
// # Encoding with limits
//
// EncodeWithLimits enforces a per-function and a per-module byte limit and
// reports violations as *FunctionTooLargeError or *ModuleTooLargeError, so
// callers can turn them into diagnostics:
//
//	data, err := m.EncodeWithLimits(wasm.DefaultEncodeLimits())
//	var tooLarge *wasm.FunctionTooLargeError
//	if errors.As(err, &tooLarge) {
//	    name, _ := m.FunctionName(tooLarge.Index)
//	    ...
//	}
//
// # Custom sections
//
// The "name" section maps function indices to symbol names and is written
// with EncodeNameSection. SectionWriter and SectionReader build and read
// other backend-specific payloads.
package wasm
