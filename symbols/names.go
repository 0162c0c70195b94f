package symbols

import (
	"path"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-backend/ir"
)

// Reserved lifecycle names. They contain characters no source identifier
// can, so user functions never collide with them.
const (
	InitName  = "<init>"
	StartName = "<start>"
	StopName  = "<stop>"
)

// Lifecycle lists the reserved names in slot order.
var Lifecycle = [...]string{InitName, StartName, StopName}

// User hooks picked up by the lifecycle synthesizer.
const (
	MainName     = "main"
	UserInitName = "__init"
	UserStopName = "__stop"
)

// Init unit members.
const (
	InitUnitSuffix     = "$_init"
	ValueUnitInfix     = "$value$"
	ListenerUnitSuffix = "$SignalListener"
	LockStore          = "LOCK_STORE"
	LockPrefix         = "$lock"
	CreateTypesName    = "$createTypes"
	ClinitName         = "$clinit"
	MainWrapperName    = "$main"
	LambdaPrefix       = "$lambda$"
	TypePrefix         = "$type$"
	ServiceFlagName    = "serviceEPAvailable"
	TableExport        = "$functions"
	ListenerExport     = "run"
)

// IsLifecycle reports whether name is one of the reserved lifecycle names.
func IsLifecycle(name string) bool {
	return name == InitName || name == StartName || name == StopName
}

// LifecycleSlot returns the fixed table slot of a lifecycle function.
func LifecycleSlot(name string) (uint32, bool) {
	for i, n := range Lifecycle {
		if n == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// CleanupName replaces '.' so the result is usable as a unit, field or
// method name.
func CleanupName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// CleanupSourceFileName turns a source unit identifier into a unit name
// component: the extension is dropped, separators become '/', and any
// remaining '.' becomes "$$".
func CleanupSourceFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.TrimLeft(name, "/")
	return strings.ReplaceAll(name, ".", "$$")
}

// PackageName returns the unit name prefix of a module, ending in '/'.
// Anonymous organizations and the default "." module contribute nothing.
func PackageName(id ir.ModuleID) string {
	var b strings.Builder
	if !id.Anonymous() {
		b.WriteString(CleanupName(id.Org))
		b.WriteByte('/')
	}
	if id.Name != "." && id.Name != "" {
		b.WriteString(CleanupName(id.Name))
		b.WriteByte('/')
	}
	return b.String()
}

// InitUnitName returns the name of the module's init unit.
func InitUnitName(id ir.ModuleID) string {
	return PackageName(id) + InitUnitSuffix
}

// UnitName returns the unit holding functions declared in source. A nil
// position means a synthesized function, which belongs to the init unit.
func UnitName(id ir.ModuleID, pos *ir.Position) string {
	if pos == nil || pos.Source == "" {
		return InitUnitName(id)
	}
	return PackageName(id) + CleanupSourceFileName(pos.Source)
}

// ValueUnitName returns the unit holding the attached functions of an
// object or service type.
func ValueUnitName(id ir.ModuleID, typeName string) string {
	return PackageName(id) + ValueUnitInfix + CleanupName(typeName)
}

// ListenerUnitName returns the name of the module's shutdown listener unit.
func ListenerUnitName(id ir.ModuleID) string {
	return InitUnitName(id) + ListenerUnitSuffix
}

// LockName returns the lock global guarding variable name.
func LockName(name string) string {
	return LockPrefix + CleanupName(name)
}

// AttachedName returns the module-level name of a type's attached function.
func AttachedName(typeName, fn string) string {
	return typeName + "." + fn
}

// LambdaName returns the synthesized name of the n-th lambda over target.
func LambdaName(target string, n int) string {
	return LambdaPrefix + CleanupName(target) + "$" + strconv.Itoa(n)
}

// TrampolineName returns the lambda trampoline for a lifecycle function or
// main.
func TrampolineName(target string) string {
	return LambdaPrefix + target
}
