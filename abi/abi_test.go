package abi

import (
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/wasm"
)

func record(fields ...wit.Type) *wit.TypeDef {
	var fs []wit.Field
	for i, t := range fields {
		fs = append(fs, wit.Field{Name: string(rune('a' + i)), Type: t})
	}
	return &wit.TypeDef{Kind: &wit.Record{Fields: fs}}
}

func TestValTypes(t *testing.T) {
	tests := []struct {
		name string
		in   wit.Type
		want []wasm.ValType
	}{
		{"nil", nil, nil},
		{"bool", wit.Bool{}, []wasm.ValType{wasm.ValI32}},
		{"s64", wit.S64{}, []wasm.ValType{wasm.ValI64}},
		{"f32", wit.F32{}, []wasm.ValType{wasm.ValF32}},
		{"string", wit.String{}, []wasm.ValType{wasm.ValI32, wasm.ValI32}},
		{"record", record(wit.S32{}, wit.F64{}), []wasm.ValType{wasm.ValI32, wasm.ValF64}},
		{"option", &wit.TypeDef{Kind: &wit.Option{Type: wit.S64{}}}, []wasm.ValType{wasm.ValI32, wasm.ValI64}},
		{"result join", &wit.TypeDef{Kind: &wit.Result{OK: wit.S32{}, Err: wit.F32{}}}, []wasm.ValType{wasm.ValI32, wasm.ValI32}},
		{"result widen", &wit.TypeDef{Kind: &wit.Result{OK: wit.S32{}, Err: wit.F64{}}}, []wasm.ValType{wasm.ValI32, wasm.ValI64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValTypes(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScalar(t *testing.T) {
	if v, ok := Scalar(wit.U64{}); !ok || v != wasm.ValI64 {
		t.Errorf("Scalar(u64) = %v, %v", v, ok)
	}
	if _, ok := Scalar(wit.String{}); ok {
		t.Error("string is not scalar")
	}
	if _, ok := Scalar(nil); ok {
		t.Error("nil is not scalar")
	}
	if !Signed(wit.S16{}) || Signed(wit.U16{}) {
		t.Error("Signed")
	}
	if !Float(wit.F64{}) || Float(wit.S64{}) {
		t.Error("Float")
	}
}

func TestDescribe(t *testing.T) {
	sig := ir.Signature{
		Receiver: wit.U32{},
		Params:   []ir.Param{{Name: "n", Type: wit.S64{}}, {Name: "p", Type: record(wit.S32{}, wit.S32{})}},
		Result:   wit.Bool{},
	}
	d := Describe(sig)
	if d.Text != "(u32,s64,record{a:s32,b:s32})->bool" {
		t.Errorf("Text = %q", d.Text)
	}
	want := wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI64, wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	if !d.Type.Equal(want) {
		t.Errorf("Type = %v, want %v", d.Type, want)
	}
	if Void.Text != "()->_" || len(Void.Type.Params) != 0 {
		t.Errorf("Void = %+v", Void)
	}
}

func TestLocalMap(t *testing.T) {
	fn := &ir.Function{
		Sig:    ir.Signature{Params: []ir.Param{{Type: wit.String{}}, {Type: wit.S64{}}}},
		Locals: []wit.Type{wit.F64{}, wit.F64{}, wit.S32{}},
	}
	lm := MapLocals(fn)
	if lm.Total() != 6 {
		t.Fatalf("Total = %d, want 6", lm.Total())
	}
	start, types, ok := lm.Flat(1)
	if !ok || start != 2 || len(types) != 1 || types[0] != wasm.ValI64 {
		t.Errorf("Flat(1) = %d, %v, %v", start, types, ok)
	}
	scratch := lm.Reserve(wasm.ValI32)
	if scratch != 6 || lm.Total() != 7 {
		t.Errorf("Reserve = %d, total %d", scratch, lm.Total())
	}
	decls := lm.Declarations(3) // skip the three flat param slots
	want := []wasm.LocalEntry{{Count: 2, ValType: wasm.ValF64}, {Count: 2, ValType: wasm.ValI32}}
	if len(decls) != len(want) {
		t.Fatalf("Declarations = %v", decls)
	}
	for i := range want {
		if decls[i] != want[i] {
			t.Errorf("decl[%d] = %v, want %v", i, decls[i], want[i])
		}
	}
	if _, _, ok := lm.Flat(99); ok {
		t.Error("Flat(99) should fail")
	}
}

func TestLayoutFrame(t *testing.T) {
	fl := LayoutFrame("run", "w1", []wasm.ValType{wasm.ValI32, wasm.ValI64, wasm.ValF32})
	wantOffsets := []uint32{0, 8, 16}
	for i, s := range fl.Slots {
		if s.Offset != wantOffsets[i] {
			t.Errorf("slot %d offset = %d, want %d", i, s.Offset, wantOffsets[i])
		}
	}
	if fl.Size != 24 || fl.Align != 8 {
		t.Errorf("Size/Align = %d/%d, want 24/8", fl.Size, fl.Align)
	}

	decoded, err := DecodeFrames(EncodeFrames([]FrameLayout{fl}))
	if err != nil {
		t.Fatalf("DecodeFrames: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Function != "run" || decoded[0].Worker != "w1" || len(decoded[0].Slots) != 3 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded[0].Slots[1] != fl.Slots[1] {
		t.Errorf("slot mismatch: %+v vs %+v", decoded[0].Slots[1], fl.Slots[1])
	}
	if AlignTo(5, 4) != 8 || AlignTo(8, 4) != 8 || AlignTo(3, 0) != 3 {
		t.Error("AlignTo")
	}
}
