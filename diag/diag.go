// Package diag collects build diagnostics from concurrent workers.
package diag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/wasm-backend/ir"
)

// Code identifies a class of diagnostic.
type Code string

const (
	MethodTooLarge       Code = "METHOD_TOO_LARGE"
	FileTooLarge         Code = "FILE_TOO_LARGE"
	NativeNotAvailable   Code = "NATIVE_FUNCTION_NOT_AVAILABLE"
	InteropValidation    Code = "INTEROP_VALIDATION_FAILED"
	UnresolvedModule     Code = "UNRESOLVED_MODULE"
	ReferenceUnknownType Code = "REFERENCE_TO_UNKNOWN_TYPE"
	InternalError        Code = "INTERNAL_ERROR"
	NameCollision        Code = "NAME_COLLISION"
	DuplicateUnit        Code = "DUPLICATE_UNIT"
)

// Severity of a diagnostic. Every error fails the build.
type Severity uint8

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one (position, code, message) triple.
type Diagnostic struct {
	Pos      *ir.Position
	Code     Code
	Message  string
	Severity Severity
	Unit     string
}

func (d Diagnostic) String() string {
	where := d.Pos.String()
	if d.Pos == nil && d.Unit != "" {
		where = d.Unit
	}
	return fmt.Sprintf("%s: %s %s: %s", where, d.Severity, d.Code, d.Message)
}

// Collector is a thread-safe diagnostics sink.
type Collector struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report records a diagnostic.
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.diags = append(c.diags, d)
	c.mu.Unlock()
}

// Errorf records an error at pos.
func (c *Collector) Errorf(pos *ir.Position, code Code, format string, args ...any) {
	c.Report(Diagnostic{Pos: pos, Code: code, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any error was recorded.
func (c *Collector) HasErrors() bool {
	return c.ErrorCount() > 0
}

// ErrorCount returns the number of errors recorded.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.diags {
		if d.Severity == Error {
			n++
		}
	}
	return n
}

// Diagnostics returns a copy of everything recorded, ordered by source
// and line so output does not depend on worker scheduling.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	out := append([]Diagnostic(nil), c.diags...)
	c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if sa, sb := source(a), source(b); sa != sb {
			return sa < sb
		}
		if la, lb := line(a), line(b); la != lb {
			return la < lb
		}
		return a.Code < b.Code
	})
	return out
}

// ByCode returns the diagnostics with the given code.
func (c *Collector) ByCode(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.Diagnostics() {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Reset drops everything recorded.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.diags = nil
	c.mu.Unlock()
}

func source(d Diagnostic) string {
	if d.Pos != nil {
		return d.Pos.Source
	}
	return d.Unit
}

func line(d Diagnostic) int {
	if d.Pos != nil {
		return d.Pos.Line
	}
	return 0
}
