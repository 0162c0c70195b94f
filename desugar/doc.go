// Package desugar rewrites module IR before partitioning.
//
// Defaultable parameters become explicit: every such parameter gets a
// trailing bool "provided" parameter, the callee computes the default when
// the flag is false, and call sites push the flags. Attached functions of
// record types are lifted to module level.
package desugar
