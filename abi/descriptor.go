package abi

import (
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/wasm"
)

// Descriptor is the calling convention of one function: its source-level
// signature text and the core signature used by call and call_indirect.
type Descriptor struct {
	Text string
	Type wasm.FuncType
}

// Describe computes the descriptor of a signature.
func Describe(sig ir.Signature) Descriptor {
	params := sig.ParamTypes()
	return Descriptor{
		Text: describeText(params, sig.Result),
		Type: wasm.FuncType{
			Params:  ValTypesOf(params),
			Results: ValTypes(sig.Result),
		},
	}
}

// DescribeTypes computes the descriptor of an anonymous function type.
func DescribeTypes(params []wit.Type, result wit.Type) Descriptor {
	return Descriptor{
		Text: describeText(params, result),
		Type: wasm.FuncType{
			Params:  ValTypesOf(params),
			Results: ValTypes(result),
		},
	}
}

// Void is the descriptor of func() with no result, shared by every
// lifecycle function.
var Void = Descriptor{Text: "()->_", Type: wasm.FuncType{}}

func describeText(params []wit.Type, result wit.Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(TypeName(p))
	}
	b.WriteString(")->")
	b.WriteString(TypeName(result))
	return b.String()
}

// LocalMap assigns flat core local indices to IR locals.
type LocalMap struct {
	start []uint32
	types [][]wasm.ValType
	total uint32
}

// MapLocals flattens fn's params and locals. Extra trailing locals may be
// reserved with Reserve.
func MapLocals(fn *ir.Function) *LocalMap {
	lm := &LocalMap{}
	for i := 0; ; i++ {
		t, ok := fn.LocalType(uint32(i))
		if !ok {
			break
		}
		lm.add(ValTypes(t))
	}
	return lm
}

func (lm *LocalMap) add(flat []wasm.ValType) uint32 {
	idx := uint32(len(lm.start))
	lm.start = append(lm.start, lm.total)
	lm.types = append(lm.types, flat)
	lm.total += uint32(len(flat))
	return idx
}

// Reserve appends a scratch local of type t and returns its flat index.
func (lm *LocalMap) Reserve(t wasm.ValType) uint32 {
	idx := lm.add([]wasm.ValType{t})
	return lm.start[idx]
}

// Flat returns the flat indices and types of IR local idx.
func (lm *LocalMap) Flat(idx uint32) (uint32, []wasm.ValType, bool) {
	if int(idx) >= len(lm.start) {
		return 0, nil, false
	}
	return lm.start[idx], lm.types[idx], true
}

// Total returns the number of flat locals, params included.
func (lm *LocalMap) Total() uint32 {
	return lm.total
}

// Types returns every flat local type in index order.
func (lm *LocalMap) Types() []wasm.ValType {
	out := make([]wasm.ValType, 0, lm.total)
	for _, t := range lm.types {
		out = append(out, t...)
	}
	return out
}

// Declarations groups the flat locals from index from onwards into
// run-length local entries.
func (lm *LocalMap) Declarations(from uint32) []wasm.LocalEntry {
	var entries []wasm.LocalEntry
	all := lm.Types()
	for i := from; i < uint32(len(all)); i++ {
		t := all[i]
		if n := len(entries); n > 0 && entries[n-1].ValType == t {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, wasm.LocalEntry{Count: 1, ValType: t})
	}
	return entries
}
