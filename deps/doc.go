// Package deps computes the ordered dependency closure of a module: the
// modules whose init and start functions must run before the module's own.
//
// The closure starts with the fixed builtin set (annotations, internal and
// the lang library modules, trimmed for builtins themselves) and continues
// with every explicit import, each preceded by its own transitive imports.
// Imports are resolved through a Registry that accepts exact or
// semver-compatible versions. An import that resolves to nothing is a
// fatal error for the whole build.
package deps
