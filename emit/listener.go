package emit

import (
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/symbols"
	"github.com/wippyai/wasm-backend/wasm"
)

// Listener builds the shutdown listener unit of m. Its exported run
// function calls the module's stop function through the init unit's
// export.
func Listener(m *ir.Module) *wasm.Module {
	mod := &wasm.Module{}
	void := mod.AddType(wasm.FuncType{})
	initUnit := symbols.InitUnitName(m.ID)
	mod.Imports = append(mod.Imports, wasm.Import{
		Module: initUnit,
		Name:   symbols.StopName,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: void},
	})
	mod.Funcs = append(mod.Funcs, void)
	mod.Code = append(mod.Code, wasm.FuncBody{Code: wasm.NewCode().Call(0).End().Bytes()})
	mod.Exports = append(mod.Exports, wasm.Export{Name: symbols.ListenerExport, Kind: wasm.KindFunc, Idx: 1})
	mod.AddCustomSection(wasm.NameSectionName, wasm.EncodeNameSection(symbols.ListenerUnitName(m.ID), map[uint32]string{
		0: initUnit + "." + symbols.StopName,
		1: symbols.ListenerExport,
	}))
	return mod
}
