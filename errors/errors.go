package errors

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Phase indicates which backend pass raised the error
type Phase string

const (
	PhaseLoad      Phase = "load"      // IR input decoding
	PhaseClosure   Phase = "closure"   // dependency closure building
	PhaseDesugar   Phase = "desugar"   // default-param and record rewriting
	PhasePartition Phase = "partition" // unit assignment and symbol table
	PhaseLink      Phase = "link"      // native function resolution
	PhaseLifecycle Phase = "lifecycle" // init/start/stop synthesis
	PhaseEmit      Phase = "emit"      // instruction lowering
	PhaseSerialize Phase = "serialize" // binary encoding of units
	PhaseVerify    Phase = "verify"    // engine-side validation
	PhaseRuntime   Phase = "runtime"   // executing loaded units
)

// Kind categorizes the error
type Kind string

const (
	KindUnresolvedModule Kind = "unresolved_module"
	KindUnresolvedNative Kind = "unresolved_native"
	KindUnknownType      Kind = "unknown_type"
	KindMethodTooLarge   Kind = "method_too_large"
	KindFileTooLarge     Kind = "file_too_large"
	KindInternal         Kind = "internal"
	KindIllegalState     Kind = "illegal_state"
	KindNameCollision    Kind = "name_collision"
	KindDuplicateUnit    Kind = "duplicate_unit"
	KindUnsupported      Kind = "unsupported"
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindPermission       Kind = "permission"
	KindSignature        Kind = "signature"
)

// Error is the structured error type used throughout the backend
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" in ")
		b.WriteString(e.Module)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error must abort the whole build.
// Capacity errors only fail the build once emission has joined.
func (e *Error) Fatal() bool {
	return e.Kind != KindMethodTooLarge && e.Kind != KindFileTooLarge
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Module sets the module identifier the error belongs to
func (b *Builder) Module(id string) *Builder {
	b.err.Module = id
	return b
}

// Path sets the symbol path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// UnresolvedModule creates an error for an import that names no known module
func UnresolvedModule(from, target string) *Error {
	return &Error{
		Phase:  PhaseClosure,
		Kind:   KindUnresolvedModule,
		Module: from,
		Detail: fmt.Sprintf("cannot resolve module %q", target),
		Value:  target,
	}
}

// NativeNotAvailable creates an unresolved native function error
func NativeNotAvailable(key string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindUnresolvedNative,
		Detail: "native function not available: " + key,
		Value:  key,
	}
}

// UnknownType creates an error for an attached function on an undeclared type
func UnknownType(phase Phase, module, typeName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownType,
		Module: module,
		Detail: fmt.Sprintf("unknown type %q", typeName),
		Value:  typeName,
	}
}

// MethodTooLarge creates a capacity error for a single function body
func MethodTooLarge(unit, function string, size int) *Error {
	return &Error{
		Phase:  PhaseSerialize,
		Kind:   KindMethodTooLarge,
		Path:   []string{unit, function},
		Detail: fmt.Sprintf("method too large: %d bytes", size),
		Value:  size,
	}
}

// FileTooLarge creates a capacity error for a whole unit
func FileTooLarge(unit string, size int) *Error {
	return &Error{
		Phase:  PhaseSerialize,
		Kind:   KindFileTooLarge,
		Path:   []string{unit},
		Detail: fmt.Sprintf("file too large: %d bytes", size),
		Value:  size,
	}
}

// IllegalState creates an error for an IR shape the lowering cannot handle
func IllegalState(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIllegalState,
		Detail: what,
	}
}

// Internal wraps an unexpected failure
func Internal(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
		Cause:  cause,
	}
}

// NameCollision creates an error for two names that clean to the same identifier
func NameCollision(module, cleaned, first, second string) *Error {
	return &Error{
		Phase:  PhasePartition,
		Kind:   KindNameCollision,
		Module: module,
		Detail: fmt.Sprintf("%q and %q both clean to %q", first, second, cleaned),
		Value:  cleaned,
	}
}

// DuplicateUnit creates a configuration error for two units sharing an output key
func DuplicateUnit(name string) *Error {
	return &Error{
		Phase:  PhaseEmit,
		Kind:   KindDuplicateUnit,
		Detail: fmt.Sprintf("unit %q emitted more than once", name),
		Value:  name,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Combine merges errors into one, dropping nils.
func Combine(errs ...error) error {
	return multierr.Combine(errs...)
}

// Errors splits a combined error back into its parts.
func Errors(err error) []error {
	return multierr.Errors(err)
}
