package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-backend/errors"
	"github.com/wippyai/wasm-backend/natives"
	"github.com/wippyai/wasm-backend/wasm"
)

// instantiateHosts exposes every binding with a handler as a host module
// named after its namespace. Namespaces already present in the runtime are
// left alone, so several artifacts can be loaded against one registry.
func (e *Engine) instantiateHosts(ctx context.Context, reg *natives.Registry) error {
	if reg == nil {
		return nil
	}
	for _, ns := range reg.Namespaces() {
		if e.runtime.Module(ns) != nil {
			continue
		}
		builder := e.runtime.NewHostModuleBuilder(ns)
		n := 0
		for _, b := range reg.Bindings(ns) {
			if b.Handler == nil {
				continue
			}
			ft := b.CoreType()
			builder.NewFunctionBuilder().
				WithGoModuleFunction(b.Handler, valueTypes(ft.Params), valueTypes(ft.Results)).
				WithName(b.Name).
				Export(b.Name)
			n++
		}
		if n == 0 {
			continue
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.New(errors.PhaseLoad, errors.KindInternal).
				Path(ns).
				Cause(err).
				Detail("instantiate host module").
				Build()
		}
		Logger().Debug("host module instantiated", zap.String("namespace", ns), zap.Int("functions", n))
	}
	return nil
}

func valueTypes(vts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(vts))
	for i, vt := range vts {
		out[i] = api.ValueType(vt)
	}
	return out
}
