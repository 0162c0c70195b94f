package wasm

import "fmt"

// Validate checks index-space consistency before encoding. It does not
// type-check function bodies; the loader does that.
func (m *Module) Validate() error {
	numTypes := uint32(len(m.Types))
	for i, imp := range m.Imports {
		switch imp.Desc.Kind {
		case KindFunc:
			if imp.Desc.TypeIdx >= numTypes {
				return fmt.Errorf("import %d (%s.%s): type index %d out of range", i, imp.Module, imp.Name, imp.Desc.TypeIdx)
			}
		case KindTable:
			if imp.Desc.Table == nil {
				return fmt.Errorf("import %d (%s.%s): missing table type", i, imp.Module, imp.Name)
			}
		case KindGlobal:
			if imp.Desc.Global == nil {
				return fmt.Errorf("import %d (%s.%s): missing global type", i, imp.Module, imp.Name)
			}
		default:
			return fmt.Errorf("import %d (%s.%s): unsupported kind %d", i, imp.Module, imp.Name, imp.Desc.Kind)
		}
	}

	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d: type index %d out of range", i, typeIdx)
		}
	}
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}

	numFuncs := uint32(m.NumImportedFuncs() + len(m.Funcs))
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	numGlobals := uint32(m.NumImportedGlobals() + len(m.Globals))

	seen := make(map[string]bool, len(m.Exports))
	for _, exp := range m.Exports {
		if seen[exp.Name] {
			return fmt.Errorf("duplicate export %q", exp.Name)
		}
		seen[exp.Name] = true

		var limit uint32
		switch exp.Kind {
		case KindFunc:
			limit = numFuncs
		case KindTable:
			limit = numTables
		case KindGlobal:
			limit = numGlobals
		default:
			return fmt.Errorf("export %q: unsupported kind %d", exp.Name, exp.Kind)
		}
		if exp.Idx >= limit {
			return fmt.Errorf("export %q: index %d out of range", exp.Name, exp.Idx)
		}
	}

	if m.Start != nil {
		if *m.Start >= numFuncs {
			return fmt.Errorf("start function %d out of range", *m.Start)
		}
		ft := m.GetFuncType(*m.Start)
		if ft == nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("start function %d must have type ()->()", *m.Start)
		}
	}

	for i, elem := range m.Elements {
		if elem.TableIdx >= numTables {
			return fmt.Errorf("element %d: table %d out of range", i, elem.TableIdx)
		}
		if elem.Flags == ElemActiveTable0 && elem.TableIdx != 0 {
			return fmt.Errorf("element %d: flags 0 requires table 0", i)
		}
		for _, idx := range elem.FuncIdxs {
			if idx >= numFuncs {
				return fmt.Errorf("element %d: function %d out of range", i, idx)
			}
		}
	}

	return nil
}
