package codegen

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-backend/diag"
	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/partition"
	"github.com/wippyai/wasm-backend/symbols"
	"github.com/wippyai/wasm-backend/wasm"
)

// serialize encodes mod under the session limits. When a function body or
// the whole unit is over its limit, the unit gets an empty body and the
// capacity error is reported against the offending function or unit.
func (s *Session) serialize(m *ir.Module, u *partition.Unit, name string, mod *wasm.Module) ([]byte, error) {
	bin, err := mod.EncodeWithLimits(s.cfg.Limits)
	if err == nil {
		return bin, nil
	}

	var fnErr *wasm.FunctionTooLargeError
	var modErr *wasm.ModuleTooLargeError
	switch {
	case stderrors.As(err, &fnErr):
		fnName, _ := mod.FunctionName(fnErr.Index)
		var pos *ir.Position
		if fn := findFunction(u, fnName); fn != nil {
			pos = fn.Pos
		}
		s.diags.Report(diag.Diagnostic{
			Pos:     pos,
			Code:    diag.MethodTooLarge,
			Message: "method " + fnName + " is too large",
			Unit:    name,
		})
		Logger().Warn("method too large",
			zap.String("unit", name),
			zap.String("function", fnName),
			zap.Int("bytes", fnErr.Size),
			zap.Int("limit", fnErr.Limit))
		e := errors.MethodTooLarge(name, fnName, fnErr.Size)
		e.Module = m.ID.String()
		e.Cause = err
		return []byte{}, e

	case stderrors.As(err, &modErr):
		s.diags.Report(diag.Diagnostic{
			Code:    diag.FileTooLarge,
			Message: "unit " + name + " is too large",
			Unit:    name,
		})
		Logger().Warn("unit too large",
			zap.String("unit", name),
			zap.Int("bytes", modErr.Size),
			zap.Int("limit", modErr.Limit))
		e := errors.FileTooLarge(name, modErr.Size)
		e.Module = m.ID.String()
		e.Cause = err
		return []byte{}, e

	default:
		s.diags.Report(diag.Diagnostic{Code: diag.InternalError, Message: err.Error(), Unit: name})
		return nil, errors.Internal(errors.PhaseSerialize, "serializing "+name, err)
	}
}

// findFunction returns the function emitted under name in u, searching the
// unit's owner so attached functions are found by their short name too.
func findFunction(u *partition.Unit, name string) *ir.Function {
	if u == nil || name == "" {
		return nil
	}
	for i, n := range u.Names {
		if n == name {
			return u.Functions[i]
		}
	}
	if u.Owner == nil {
		return nil
	}
	for _, fn := range u.Owner.OwnedFunctions() {
		if fn.Name == name {
			return fn
		}
		if td, ok := u.Owner.(*ir.TypeDef); ok && symbols.AttachedName(td.Name, fn.Name) == name {
			return fn
		}
	}
	return nil
}
