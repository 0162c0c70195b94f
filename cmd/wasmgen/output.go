package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	wasmbackend "github.com/wippyai/wasm-backend"
	"github.com/wippyai/wasm-backend/diag"
)

type outputStyles struct {
	err   lipgloss.Style
	warn  lipgloss.Style
	code  lipgloss.Style
	where lipgloss.Style
}

// styles colors output only when w is a terminal.
func styles(w io.Writer) outputStyles {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		plain := lipgloss.NewStyle()
		return outputStyles{err: plain, warn: plain, code: plain, where: plain}
	}
	return outputStyles{
		err:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		warn:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD166")),
		code:  lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		where: lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

func printDiagnostics(w io.Writer, ds []diag.Diagnostic) {
	st := styles(w)
	for _, d := range ds {
		where := d.Pos.String()
		if d.Pos == nil && d.Unit != "" {
			where = d.Unit
		}
		sev := st.err.Render(d.Severity.String())
		if d.Severity == diag.Warning {
			sev = st.warn.Render(d.Severity.String())
		}
		fmt.Fprintf(w, "%s: %s %s: %s\n", st.where.Render(where), sev, st.code.Render(string(d.Code)), d.Message)
	}
}

// writeArtifact writes each unit to <dir>/<unit>.wasm and the manifest to
// <dir>/manifest.json. Units without a body are skipped.
func writeArtifact(dir string, art *wasmbackend.Artifact) error {
	for _, name := range art.Order {
		bin := art.Units[name]
		if len(bin) == 0 {
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(name)+".wasm")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		if err := os.WriteFile(path, bin, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	manifest, err := json.MarshalIndent(art.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), append(manifest, '\n'), 0o644)
}
