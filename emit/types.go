package emit

import (
	"fmt"

	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/wasm"
)

// TypeInfo is one entry of the "types" custom section. ID is the value
// $createTypes stores in the type's descriptor global.
type TypeInfo struct {
	ID        uint32
	Name      string
	Kind      ir.TypeKind
	Abstract  bool
	Fields    []FieldInfo
	Functions []string
}

// FieldInfo is a field name and its WIT type spelling.
type FieldInfo struct {
	Name string
	Type string
}

// EncodeTypes serializes the metadata of tds.
func EncodeTypes(tds []*ir.TypeDef) []byte {
	w := wasm.NewSectionWriter()
	w.U32(uint32(len(tds)))
	for _, td := range tds {
		w.Name(td.Name)
		w.Byte(byte(td.Kind))
		if td.Abstract {
			w.Byte(1)
		} else {
			w.Byte(0)
		}
		w.U32(uint32(len(td.Fields)))
		for _, f := range td.Fields {
			w.Name(f.Name)
			w.Name(abi.TypeName(f.Type))
		}
		w.U32(uint32(len(td.Functions)))
		for _, fn := range td.Functions {
			w.Name(fn.Name)
		}
	}
	return w.Bytes()
}

// DecodeTypes parses a "types" custom section payload.
func DecodeTypes(data []byte) ([]TypeInfo, error) {
	r := wasm.NewSectionReader(data)
	n, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("types: count: %w", err)
	}
	out := make([]TypeInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		ti := TypeInfo{ID: i + 1}
		if ti.Name, err = r.Name(); err != nil {
			return nil, fmt.Errorf("types: entry %d: %w", i, err)
		}
		kind, err := r.Byte()
		if err != nil {
			return nil, fmt.Errorf("types: %s: %w", ti.Name, err)
		}
		ti.Kind = ir.TypeKind(kind)
		abstract, err := r.Byte()
		if err != nil {
			return nil, fmt.Errorf("types: %s: %w", ti.Name, err)
		}
		ti.Abstract = abstract == 1
		nf, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("types: %s: %w", ti.Name, err)
		}
		for j := uint32(0); j < nf; j++ {
			var f FieldInfo
			if f.Name, err = r.Name(); err != nil {
				return nil, fmt.Errorf("types: %s field %d: %w", ti.Name, j, err)
			}
			if f.Type, err = r.Name(); err != nil {
				return nil, fmt.Errorf("types: %s field %d: %w", ti.Name, j, err)
			}
			ti.Fields = append(ti.Fields, f)
		}
		nfn, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("types: %s: %w", ti.Name, err)
		}
		for j := uint32(0); j < nfn; j++ {
			name, err := r.Name()
			if err != nil {
				return nil, fmt.Errorf("types: %s function %d: %w", ti.Name, j, err)
			}
			ti.Functions = append(ti.Functions, name)
		}
		out = append(out, ti)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("types: %d trailing bytes", r.Len())
	}
	return out, nil
}
