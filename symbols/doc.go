// Package symbols holds the build's symbol table and the naming scheme of
// emitted units.
//
// Every module gets a package prefix derived from its organization and
// name. Functions land in the unit named after their source file, the
// module's reserved init unit ("<prefix>$_init") owns global storage, the
// lock table and the lifecycle functions, and object types get a value unit
// each. The table maps "<prefix><name>" to the owning unit, the function's
// slot in the module's funcref table and its calling descriptor.
package symbols
