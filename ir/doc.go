// Package ir defines the mid-level representation consumed by the backend.
//
// A build is a list of modules in dependency order. Each module carries its
// functions, global variables, constants, type definitions and the ids of
// the modules it imports. Value types are WIT types from
// go.bytecodealliance.org/wit; they are flattened to core wasm value types
// during lowering.
//
// Instructions form a closed set of variants (Const, LoadLocal, Call, If,
// ...). Passes switch over the variants exhaustively and treat anything
// else as an illegal state.
//
// Decode reads the JSON interchange form produced by the front end:
//
//	{"modules": [{"org": "acme", "name": "app", "version": "1.0.0",
//	  "functions": [{"name": "main", "pos": {"source": "main.bal"},
//	    "body": [{"op": "return"}]}]}]}
package ir
