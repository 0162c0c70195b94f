package wasm

import (
	"github.com/wippyai/wasm-backend/wasm/internal/binary"
)

// Code accumulates an instruction sequence for a function body or a
// constant expression.
type Code struct {
	w     *binary.Writer
	depth int
}

// NewCode returns an empty instruction buffer.
func NewCode() *Code {
	return &Code{w: binary.NewWriter()}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}

// Len returns the encoded size in bytes.
func (c *Code) Len() int {
	return c.w.Len()
}

// Depth returns the number of open blocks.
func (c *Code) Depth() int {
	return c.depth
}

// Op writes a single-byte opcode without immediates.
func (c *Code) Op(op byte) *Code {
	c.w.Byte(op)
	return c
}

// Misc writes a 0xFC-prefixed opcode.
func (c *Code) Misc(sub uint32) *Code {
	c.w.Byte(OpPrefixMisc)
	c.w.WriteU32(sub)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

func (c *Code) F32Const(v float32) *Code {
	c.w.Byte(OpF32Const)
	c.w.WriteF32(v)
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.w.Byte(OpF64Const)
	c.w.WriteF64(v)
	return c
}

// Zero pushes the zero value of t.
func (c *Code) Zero(t ValType) *Code {
	switch t {
	case ValI64:
		return c.I64Const(0)
	case ValF32:
		return c.F32Const(0)
	case ValF64:
		return c.F64Const(0)
	case ValFuncRef, ValExtern:
		c.w.Byte(OpRefNull)
		c.w.Byte(byte(t))
		return c
	default:
		return c.I32Const(0)
	}
}

func (c *Code) LocalGet(idx uint32) *Code { return c.indexed(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) *Code { return c.indexed(OpLocalSet, idx) }
func (c *Code) LocalTee(idx uint32) *Code { return c.indexed(OpLocalTee, idx) }
func (c *Code) GlobalGet(idx uint32) *Code { return c.indexed(OpGlobalGet, idx) }
func (c *Code) GlobalSet(idx uint32) *Code { return c.indexed(OpGlobalSet, idx) }
func (c *Code) Call(idx uint32) *Code { return c.indexed(OpCall, idx) }
func (c *Code) Br(depth uint32) *Code { return c.indexed(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code { return c.indexed(OpBrIf, depth) }

// CallIndirect calls through table tableIdx with signature typeIdx.
func (c *Code) CallIndirect(typeIdx, tableIdx uint32) *Code {
	c.w.Byte(OpCallIndirect)
	c.w.WriteU32(typeIdx)
	c.w.WriteU32(tableIdx)
	return c
}

// Block opens a block with the given block type.
func (c *Code) Block(bt int32) *Code { return c.open(OpBlock, bt) }

// Loop opens a loop with the given block type.
func (c *Code) Loop(bt int32) *Code { return c.open(OpLoop, bt) }

// If opens an if with the given block type.
func (c *Code) If(bt int32) *Code { return c.open(OpIf, bt) }

// Else switches an open if to its else arm.
func (c *Code) Else() *Code {
	c.w.Byte(OpElse)
	return c
}

// End closes the innermost block, or the body when none is open.
func (c *Code) End() *Code {
	c.w.Byte(OpEnd)
	if c.depth > 0 {
		c.depth--
	}
	return c
}

func (c *Code) open(op byte, bt int32) *Code {
	c.w.Byte(op)
	c.w.WriteS32(bt)
	c.depth++
	return c
}

func (c *Code) indexed(op byte, idx uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(idx)
	return c
}

// ConstExpr returns an initializer expression producing the zero value of t.
func ConstExpr(t ValType) []byte {
	return NewCode().Zero(t).End().Bytes()
}

// I32ConstExpr returns an initializer expression producing v.
func I32ConstExpr(v int32) []byte {
	return NewCode().I32Const(v).End().Bytes()
}
