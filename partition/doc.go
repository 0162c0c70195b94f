// Package partition assigns a module's functions to compilation units and
// lays out the module's function table.
//
// Functions are grouped by source file. The module's init unit always
// holds the lifecycle functions at positions and table slots 0, 1 and 2,
// plus every function without a source position. Attached functions of
// object and service types get one value unit per type. Units are ordered
// init first, then by name, and each unit's table range is followed by the
// slots its extracted lambdas will use.
package partition
