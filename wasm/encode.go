package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-backend/wasm/internal/binary"
)

// Default serialization limits.
const (
	DefaultMaxFunctionSize = 7_654_321
	DefaultMaxModuleSize   = 1 << 30
)

// EncodeLimits bound the size of an encoded module. Zero fields mean no limit.
type EncodeLimits struct {
	MaxFunctionSize int // bytes of one code entry, locals included
	MaxModuleSize   int // bytes of the whole binary
}

// DefaultEncodeLimits returns the limits enforced by the loader.
func DefaultEncodeLimits() EncodeLimits {
	return EncodeLimits{
		MaxFunctionSize: DefaultMaxFunctionSize,
		MaxModuleSize:   DefaultMaxModuleSize,
	}
}

// FunctionTooLargeError reports a function body above MaxFunctionSize.
// Index is in the module's function index space, imports included.
type FunctionTooLargeError struct {
	Index uint32
	Size  int
	Limit int
}

func (e *FunctionTooLargeError) Error() string {
	return fmt.Sprintf("wasm: function %d body is %d bytes, limit %d", e.Index, e.Size, e.Limit)
}

// ModuleTooLargeError reports an encoded module above MaxModuleSize.
type ModuleTooLargeError struct {
	Size  int
	Limit int
}

func (e *ModuleTooLargeError) Error() string {
	return fmt.Sprintf("wasm: module is %d bytes, limit %d", e.Size, e.Limit)
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	out, _ := m.EncodeWithLimits(EncodeLimits{})
	return out
}

// EncodeWithLimits encodes the module, failing with *FunctionTooLargeError
// or *ModuleTooLargeError when a limit is exceeded.
func (m *Module) EncodeWithLimits(limits EncodeLimits) ([]byte, error) {
	w := binary.NewWriter()

	// Magic number and version
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	// Type section
	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	// Import section
	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				if imp.Desc.Table != nil {
					writeTableType(sec, *imp.Desc.Table)
				}
			case KindGlobal:
				if imp.Desc.Global != nil {
					writeGlobalType(sec, *imp.Desc.Global)
				}
			}
		}
		writeSection(w, SectionImport, sec.Bytes())
	}

	// Function section
	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec.Bytes())
	}

	// Table section
	if len(m.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}
		writeSection(w, SectionTable, sec.Bytes())
	}

	// Global section
	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.WriteBytes(g.Init)
		}
		writeSection(w, SectionGlobal, sec.Bytes())
	}

	// Export section
	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Idx)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	// Start section
	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec.Bytes())
	}

	// Element section
	if len(m.Elements) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Elements)))
		for _, elem := range m.Elements {
			sec.WriteU32(elem.Flags)
			if elem.Flags == ElemActiveTable {
				sec.WriteU32(elem.TableIdx)
			}
			sec.WriteBytes(elem.Offset)
			if elem.Flags == ElemActiveTable {
				sec.Byte(ElemKindFuncRef)
			}
			sec.WriteU32(uint32(len(elem.FuncIdxs)))
			for _, idx := range elem.FuncIdxs {
				sec.WriteU32(idx)
			}
		}
		writeSection(w, SectionElement, sec.Bytes())
	}

	// Code section
	if len(m.Code) > 0 {
		base := uint32(m.NumImportedFuncs())
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for i, body := range m.Code {
			bodyBuf := binary.NewWriter()
			bodyBuf.WriteU32(uint32(len(body.Locals)))
			for _, local := range body.Locals {
				bodyBuf.WriteU32(local.Count)
				bodyBuf.Byte(byte(local.ValType))
			}
			bodyBuf.WriteBytes(body.Code)
			if limits.MaxFunctionSize > 0 && bodyBuf.Len() > limits.MaxFunctionSize {
				return nil, &FunctionTooLargeError{
					Index: base + uint32(i),
					Size:  bodyBuf.Len(),
					Limit: limits.MaxFunctionSize,
				}
			}
			sec.WriteU32(uint32(bodyBuf.Len()))
			sec.WriteBytes(bodyBuf.Bytes())
		}
		writeSection(w, SectionCode, sec.Bytes())
	}

	// Custom sections (at end)
	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sec.Bytes())
	}

	if limits.MaxModuleSize > 0 && w.Len() > limits.MaxModuleSize {
		return nil, &ModuleTooLargeError{Size: w.Len(), Limit: limits.MaxModuleSize}
	}
	return w.Bytes(), nil
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	if l.Max != nil {
		w.Byte(LimitsHasMax)
		w.WriteU32(uint32(l.Min))
		w.WriteU32(uint32(*l.Max))
		return
	}
	w.Byte(LimitsNoMax)
	w.WriteU32(uint32(l.Min))
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
