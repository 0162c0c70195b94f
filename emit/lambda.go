package emit

import (
	"github.com/wippyai/wasm-backend/abi"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/partition"
)

// Lambda is a forwarding function installed in the unit's table region,
// either for a function pointer load or as a lifecycle trampoline.
type Lambda struct {
	Name       string
	Module     ir.ModuleID // module of the target
	Target     string      // symbol name of the target
	TargetUnit string
	TargetSlot uint32
	Descriptor abi.Descriptor
	Slot       uint32 // table slot of the lambda itself
	Index      uint32 // function index within the unit
}

// LambdaMetadata records the lambdas of one unit in slot order.
type LambdaMetadata struct {
	unit      string
	base      uint32
	limit     uint32
	firstFunc uint32
	lambdas   []Lambda
	extracted int
}

// NewLambdaMetadata returns empty metadata for u. firstFunc is the function
// index the first lambda will get.
func NewLambdaMetadata(u *partition.Unit, firstFunc uint32) *LambdaMetadata {
	return &LambdaMetadata{
		unit:      u.Name,
		base:      u.LambdaBase(),
		limit:     u.LambdaSlots,
		firstFunc: firstFunc,
	}
}

// Unit returns the owning unit's name.
func (lm *LambdaMetadata) Unit() string { return lm.unit }

// Len returns the number of lambdas.
func (lm *LambdaMetadata) Len() int { return len(lm.lambdas) }

// Lambdas returns the lambdas in slot order.
func (lm *LambdaMetadata) Lambdas() []Lambda {
	return append([]Lambda(nil), lm.lambdas...)
}

// Lookup returns the lambda with the given name.
func (lm *LambdaMetadata) Lookup(name string) (Lambda, bool) {
	for _, l := range lm.lambdas {
		if l.Name == name {
			return l, true
		}
	}
	return Lambda{}, false
}

// Extracted returns the number of lambdas created for function pointer
// loads, trampolines excluded.
func (lm *LambdaMetadata) Extracted() int { return lm.extracted }

func (lm *LambdaMetadata) add(l Lambda) (Lambda, error) {
	n := uint32(len(lm.lambdas))
	if n >= lm.limit {
		return Lambda{}, errors.New(errors.PhaseEmit, errors.KindIllegalState).
			Path(lm.unit, l.Name).
			Detail("unit reserved %d lambda slots", lm.limit).
			Build()
	}
	l.Slot = lm.base + n
	l.Index = lm.firstFunc + n
	lm.lambdas = append(lm.lambdas, l)
	return l, nil
}
