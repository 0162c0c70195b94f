package main

import (
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/natives"
)

// hostNamespace holds the printing helpers available to every program
// built by the CLI.
const hostNamespace = "env"

func hostRegistry(out io.Writer) (*natives.Registry, error) {
	reg := natives.NewRegistry()
	bindings := []struct {
		name   string
		param  wit.Type
		format func(uint64) string
	}{
		{"print_i32", wit.S32{}, func(v uint64) string { return fmt.Sprint(api.DecodeI32(v)) }},
		{"print_i64", wit.S64{}, func(v uint64) string { return fmt.Sprint(int64(v)) }},
		{"print_f32", wit.F32{}, func(v uint64) string { return fmt.Sprint(api.DecodeF32(v)) }},
		{"print_f64", wit.F64{}, func(v uint64) string { return fmt.Sprint(api.DecodeF64(v)) }},
		{"print_bool", wit.Bool{}, func(v uint64) string { return fmt.Sprint(v != 0) }},
	}
	for _, b := range bindings {
		format := b.format
		handler := func(_ context.Context, _ api.Module, stack []uint64) {
			fmt.Fprintln(out, format(stack[0]))
		}
		if err := reg.RegisterFunc(hostNamespace, b.name, []wit.Type{b.param}, nil, handler); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
