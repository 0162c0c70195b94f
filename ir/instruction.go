package ir

import (
	"go.bytecodealliance.org/wit"
)

// Instruction is one IR instruction. The set of variants is closed: only
// types in this package implement it, and lowering passes switch over all of
// them.
type Instruction interface {
	instruction()
}

// Const pushes a literal. Value holds bool, int64 (signed and unsigned
// integers, bit pattern preserved) or float64.
type Const struct {
	Type  wit.Type
	Value any
}

// LoadLocal pushes local Index.
type LoadLocal struct {
	Index uint32
}

// StoreLocal pops into local Index.
type StoreLocal struct {
	Index uint32
}

// LoadGlobal pushes a module-level variable. A zero Module means the
// enclosing module.
type LoadGlobal struct {
	Module ModuleID
	Name   string
	Type   wit.Type
}

// StoreGlobal pops into a module-level variable.
type StoreGlobal struct {
	Module ModuleID
	Name   string
	Type   wit.Type
}

// Lock acquires the per-variable lock of a global.
type Lock struct {
	Global string
}

// Unlock releases the per-variable lock of a global.
type Unlock struct {
	Global string
}

// BinaryOp is an arithmetic, bitwise or comparison operator.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binaryOpNames = [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "eq", "ne", "lt", "le", "gt", "ge"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "unknown"
}

// Comparison reports whether the operator produces a bool.
func (op BinaryOp) Comparison() bool {
	return op >= OpEq
}

// Binary pops two operands of Type and pushes the result.
type Binary struct {
	Op   BinaryOp
	Type wit.Type
}

// UnaryOp is a single-operand operator.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
)

func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "neg"
	case OpNot:
		return "not"
	default:
		return "unknown"
	}
}

// Unary pops one operand of Type and pushes the result.
type Unary struct {
	Op   UnaryOp
	Type wit.Type
}

// Convert changes the numeric type of the top of stack.
type Convert struct {
	From wit.Type
	To   wit.Type
}

// Call invokes a function. A zero Module means the enclosing module.
// Provided holds one entry per defaultable parameter of the callee telling
// whether the caller passed it; arguments for unprovided parameters are
// still pushed (as zero values).
type Call struct {
	Module   ModuleID
	Name     string
	Provided []bool
}

// FPLoad pushes a function pointer to the named function.
type FPLoad struct {
	Module ModuleID
	Name   string
}

// FPCall pops a function pointer, then arguments, and calls it.
type FPCall struct {
	Params []wit.Type
	Result wit.Type
}

// TypeDesc pushes the runtime descriptor of a module type.
type TypeDesc struct {
	Type string
}

// If pops a bool and runs Then or Else. Result is nil for no value.
type If struct {
	Then   []Instruction
	Else   []Instruction
	Result wit.Type
}

// Loop runs Body while Cond leaves true on the stack.
type Loop struct {
	Cond []Instruction
	Body []Instruction
}

// Return leaves the function with the values on the stack.
type Return struct{}

// Drop discards the top of stack. Type is the discarded value's type;
// nil means a single core value.
type Drop struct {
	Type wit.Type
}

// Trap aborts execution.
type Trap struct{}

func (Const) instruction()       {}
func (LoadLocal) instruction()   {}
func (StoreLocal) instruction()  {}
func (LoadGlobal) instruction()  {}
func (StoreGlobal) instruction() {}
func (Lock) instruction()        {}
func (Unlock) instruction()      {}
func (Binary) instruction()      {}
func (Unary) instruction()       {}
func (Convert) instruction()     {}
func (Call) instruction()        {}
func (FPLoad) instruction()      {}
func (FPCall) instruction()      {}
func (TypeDesc) instruction()    {}
func (If) instruction()          {}
func (Loop) instruction()        {}
func (Return) instruction()      {}
func (Drop) instruction()        {}
func (Trap) instruction()        {}

// Int returns a signed integer constant.
func Int(t wit.Type, v int64) Const {
	return Const{Type: t, Value: v}
}

// Float returns a floating point constant.
func Float(t wit.Type, v float64) Const {
	return Const{Type: t, Value: v}
}

// Bool returns a bool constant.
func Bool(v bool) Const {
	return Const{Type: wit.Bool{}, Value: v}
}

// Walk calls fn for every instruction in body, descending into nested
// blocks. Returning false stops the descent into that instruction.
func Walk(body []Instruction, fn func(Instruction) bool) {
	for _, ins := range body {
		if !fn(ins) {
			continue
		}
		switch v := ins.(type) {
		case If:
			Walk(v.Then, fn)
			Walk(v.Else, fn)
		case Loop:
			Walk(v.Cond, fn)
			Walk(v.Body, fn)
		}
	}
}

// Rewrite returns body with fn applied to every instruction, nested blocks
// first. fn returns the replacement sequence.
func Rewrite(body []Instruction, fn func(Instruction) []Instruction) []Instruction {
	if body == nil {
		return nil
	}
	out := make([]Instruction, 0, len(body))
	for _, ins := range body {
		switch v := ins.(type) {
		case If:
			v.Then = Rewrite(v.Then, fn)
			v.Else = Rewrite(v.Else, fn)
			ins = v
		case Loop:
			v.Cond = Rewrite(v.Cond, fn)
			v.Body = Rewrite(v.Body, fn)
			ins = v
		}
		out = append(out, fn(ins)...)
	}
	return out
}
