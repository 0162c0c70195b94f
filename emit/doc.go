// Package emit lowers the units of a partitioned module to core
// WebAssembly modules.
//
// All units of a module share one funcref table, defined and exported by
// the init unit and imported by every other unit. Each unit installs its
// functions, followed by its lambdas, at its slot base through an active
// element segment. Calls within a unit are direct; every other call goes
// through call_indirect on the owning module's table.
//
// The init unit also defines the module's variables with their lock
// counters, the service flag, one descriptor global per type, the $clinit
// start function, the $main wrapper and the lifecycle trampolines.
// Lifecycle functions carry a done-guard so that repeated calls are
// no-ops.
package emit
