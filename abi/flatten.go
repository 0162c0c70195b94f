package abi

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-backend/wasm"
)

// CoreValType is a core wasm value type
type CoreValType = api.ValueType

// FlattenTypes flattens WIT types to core wasm types
func FlattenTypes(types []wit.Type) []CoreValType {
	var result []CoreValType
	for _, t := range types {
		result = append(result, FlattenType(t)...)
	}
	return result
}

// FlattenType flattens a WIT type to core wasm types. A nil type flattens
// to nothing.
func FlattenType(t wit.Type) []CoreValType {
	if t == nil {
		return nil
	}

	switch v := t.(type) {
	case wit.Bool, wit.U8, wit.U16, wit.U32, wit.S8, wit.S16, wit.S32, wit.Char:
		return []CoreValType{api.ValueTypeI32}
	case wit.U64, wit.S64:
		return []CoreValType{api.ValueTypeI64}
	case wit.F32:
		return []CoreValType{api.ValueTypeF32}
	case wit.F64:
		return []CoreValType{api.ValueTypeF64}
	case wit.String:
		return []CoreValType{api.ValueTypeI32, api.ValueTypeI32} // ptr, len
	case *wit.TypeDef:
		return flattenTypeDef(v)
	default:
		return []CoreValType{api.ValueTypeI32}
	}
}

func flattenTypeDef(td *wit.TypeDef) []CoreValType {
	if td == nil || td.Kind == nil {
		return []CoreValType{api.ValueTypeI32}
	}

	switch kind := td.Kind.(type) {
	case *wit.Record:
		var flat []CoreValType
		for _, field := range kind.Fields {
			flat = append(flat, FlattenType(field.Type)...)
		}
		return flat
	case *wit.Tuple:
		return FlattenTypes(kind.Types)
	case *wit.List:
		return []CoreValType{api.ValueTypeI32, api.ValueTypeI32}
	case *wit.Option:
		return append([]CoreValType{api.ValueTypeI32}, FlattenType(kind.Type)...)
	case *wit.Result:
		var payload []CoreValType
		if kind.OK != nil {
			payload = FlattenType(kind.OK)
		}
		if kind.Err != nil {
			payload = joinFlat(payload, FlattenType(kind.Err))
		}
		return append([]CoreValType{api.ValueTypeI32}, payload...)
	case *wit.Variant:
		var payload []CoreValType
		for _, c := range kind.Cases {
			if c.Type != nil {
				payload = joinFlat(payload, FlattenType(c.Type))
			}
		}
		return append([]CoreValType{api.ValueTypeI32}, payload...)
	case *wit.Flags:
		if len(kind.Flags) > 32 {
			return []CoreValType{api.ValueTypeI64}
		}
		return []CoreValType{api.ValueTypeI32}
	case *wit.Enum, *wit.Own, *wit.Borrow:
		return []CoreValType{api.ValueTypeI32}
	case wit.Type:
		return FlattenType(kind)
	default:
		return []CoreValType{api.ValueTypeI32}
	}
}

func joinFlat(payload, other []CoreValType) []CoreValType {
	for i, ft := range other {
		if i < len(payload) {
			payload[i] = joinTypes(payload[i], ft)
		} else {
			payload = append(payload, ft)
		}
	}
	return payload
}

// joinTypes unions two core types for variant payloads
func joinTypes(a, b CoreValType) CoreValType {
	if a == b {
		return a
	}
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) ||
		(a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}

// ValTypes flattens t into the encoder's value types.
func ValTypes(t wit.Type) []wasm.ValType {
	flat := FlattenType(t)
	out := make([]wasm.ValType, len(flat))
	for i, v := range flat {
		out[i] = wasm.ValType(v)
	}
	return out
}

// ValTypesOf flattens a sequence of types.
func ValTypesOf(types []wit.Type) []wasm.ValType {
	var out []wasm.ValType
	for _, t := range types {
		out = append(out, ValTypes(t)...)
	}
	return out
}

// Scalar returns the single core type of t, or false when t flattens to
// zero or several values.
func Scalar(t wit.Type) (wasm.ValType, bool) {
	flat := ValTypes(t)
	if len(flat) != 1 {
		return 0, false
	}
	return flat[0], true
}

// Signed reports whether integer type t is signed.
func Signed(t wit.Type) bool {
	switch t.(type) {
	case wit.S8, wit.S16, wit.S32, wit.S64, wit.Char:
		return true
	default:
		return false
	}
}

// Float reports whether t is a floating point type.
func Float(t wit.Type) bool {
	switch t.(type) {
	case wit.F32, wit.F64:
		return true
	default:
		return false
	}
}

// TypeName returns the WIT spelling of t.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.U16:
		return "u16"
	case wit.U32:
		return "u32"
	case wit.U64:
		return "u64"
	case wit.S8:
		return "s8"
	case wit.S16:
		return "s16"
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		if rec, ok := v.Kind.(*wit.Record); ok {
			s := "record{"
			for i, f := range rec.Fields {
				if i > 0 {
					s += ","
				}
				s += f.Name + ":" + TypeName(f.Type)
			}
			return s + "}"
		}
		return "typedef"
	default:
		return "unknown"
	}
}
