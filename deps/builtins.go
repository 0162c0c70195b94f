package deps

import (
	"strings"

	"github.com/wippyai/wasm-backend/ir"
)

// BuiltinOrg is the organization of the runtime's own modules.
const BuiltinOrg = "std"

var (
	// AnnotationsModule is required by every module except itself.
	AnnotationsModule = ir.ModuleID{Org: BuiltinOrg, Name: "lang.annotations"}

	// InternalModule is required by every module outside the lang namespace.
	InternalModule = ir.ModuleID{Org: BuiltinOrg, Name: "lang.__internal"}

	// LangModules are the lang library modules, in initialization order.
	LangModules = []ir.ModuleID{
		{Org: BuiltinOrg, Name: "lang.array"},
		{Org: BuiltinOrg, Name: "lang.decimal"},
		{Org: BuiltinOrg, Name: "lang.error"},
		{Org: BuiltinOrg, Name: "lang.float"},
		{Org: BuiltinOrg, Name: "lang.future"},
		{Org: BuiltinOrg, Name: "lang.int"},
		{Org: BuiltinOrg, Name: "lang.map"},
		{Org: BuiltinOrg, Name: "lang.object"},
		{Org: BuiltinOrg, Name: "lang.stream"},
		{Org: BuiltinOrg, Name: "lang.table"},
		{Org: BuiltinOrg, Name: "lang.string"},
		{Org: BuiltinOrg, Name: "lang.value"},
		{Org: BuiltinOrg, Name: "lang.xml"},
		{Org: BuiltinOrg, Name: "lang.typedesc"},
		// boolean follows typedesc, making fifteen lang modules
		{Org: BuiltinOrg, Name: "lang.boolean"},
	}
)

// Builtins returns every builtin module: annotations, internal, then the
// lang modules.
func Builtins() []ir.ModuleID {
	out := make([]ir.ModuleID, 0, len(LangModules)+2)
	out = append(out, AnnotationsModule, InternalModule)
	return append(out, LangModules...)
}

// IsBuiltin reports whether id names a builtin module.
func IsBuiltin(id ir.ModuleID) bool {
	if id.Org != BuiltinOrg {
		return false
	}
	for _, b := range Builtins() {
		if b.Name == id.Name {
			return true
		}
	}
	return false
}

// IsLangModule reports whether id is in the builtin lang namespace.
// Annotations and internal are lang modules too.
func IsLangModule(id ir.ModuleID) bool {
	return id.Org == BuiltinOrg && strings.HasPrefix(id.Name, "lang.")
}

func sameModule(a, b ir.ModuleID) bool {
	return a.Org == b.Org && a.Name == b.Name
}

// BuiltinImports returns the builtin modules id must initialize after.
func BuiltinImports(id ir.ModuleID) []ir.ModuleID {
	if sameModule(id, AnnotationsModule) {
		return nil
	}
	out := []ir.ModuleID{AnnotationsModule}
	if IsLangModule(id) {
		return out
	}
	out = append(out, InternalModule)
	return append(out, LangModules...)
}
