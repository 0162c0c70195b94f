package diag

import (
	"fmt"
	"sync"
	"testing"

	"github.com/wippyai/wasm-backend/ir"
)

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Errorf(&ir.Position{Source: "main.bal", Line: 50 - i}, MethodTooLarge, "function f%d", i)
		}(i)
	}
	wg.Wait()

	if c.ErrorCount() != 50 {
		t.Fatalf("ErrorCount = %d", c.ErrorCount())
	}
	diags := c.Diagnostics()
	for i := 1; i < len(diags); i++ {
		if diags[i-1].Pos.Line > diags[i].Pos.Line {
			t.Fatalf("diagnostics not ordered at %d", i)
		}
	}
}

func TestCollector_Severity(t *testing.T) {
	c := NewCollector()
	c.Report(Diagnostic{Code: NameCollision, Message: "m", Severity: Warning})
	if c.HasErrors() {
		t.Error("warning counted as error")
	}
	c.Report(Diagnostic{Unit: "acme/app/$_init", Code: FileTooLarge, Message: "file too large"})
	if !c.HasErrors() {
		t.Error("error not counted")
	}
	if got := c.ByCode(FileTooLarge); len(got) != 1 {
		t.Errorf("ByCode = %v", got)
	}
	c.Reset()
	if len(c.Diagnostics()) != 0 {
		t.Error("Reset kept diagnostics")
	}
}

func TestDiagnostic_String(t *testing.T) {
	tests := []struct {
		d    Diagnostic
		want string
	}{
		{
			Diagnostic{Pos: &ir.Position{Source: "a.bal", Line: 3, Column: 7}, Code: NativeNotAvailable, Message: "native function not available: acme/app/f"},
			"a.bal:3:7: error NATIVE_FUNCTION_NOT_AVAILABLE: native function not available: acme/app/f",
		},
		{
			Diagnostic{Unit: "acme/app/main", Code: FileTooLarge, Message: "too big"},
			"acme/app/main: error FILE_TOO_LARGE: too big",
		},
		{
			Diagnostic{Code: InternalError, Message: "x", Severity: Warning},
			"<unknown>: warning INTERNAL_ERROR: x",
		},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if got := tt.d.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
