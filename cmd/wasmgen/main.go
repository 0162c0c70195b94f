package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-backend/codegen"
	"github.com/wippyai/wasm-backend/engine"
	"github.com/wippyai/wasm-backend/ir"
	"github.com/wippyai/wasm-backend/natives"
	"github.com/wippyai/wasm-backend/wasm"
)

type options struct {
	input       string
	outDir      string
	workers     int
	maxFunction int
	maxModule   int
	builtins    bool
	verify      bool
	run         bool
	interactive bool
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.input, "in", "-", "IR build file (JSON), - for stdin")
	flag.StringVar(&opts.outDir, "out", "", "Directory to write units and manifest.json to")
	flag.IntVar(&opts.workers, "workers", 0, "Parallel emission workers (0 = GOMAXPROCS)")
	flag.IntVar(&opts.maxFunction, "max-function-size", 0, "Function body limit in bytes (0 = engine default)")
	flag.IntVar(&opts.maxModule, "max-module-size", 0, "Unit size limit in bytes (0 = engine default)")
	flag.BoolVar(&opts.builtins, "builtins", false, "Synthesize empty builtin modules missing from the build")
	flag.BoolVar(&opts.verify, "verify", false, "Compile every unit with wazero after emission")
	flag.BoolVar(&opts.run, "run", false, "Load the artifact and run the entry module")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode: browse and call exported functions")
	flag.BoolVar(&opts.verbose, "v", false, "Log build progress to stderr")
	flag.Parse()

	if opts.outDir == "" && !opts.run && !opts.interactive && !opts.verify {
		fmt.Fprintln(os.Stderr, "Usage: wasmgen -in <build.json> -out <dir> [-workers n] [-builtins]")
		fmt.Fprintln(os.Stderr, "       wasmgen -in <build.json> -run")
		fmt.Fprintln(os.Stderr, "       wasmgen -in <build.json> -i  (interactive mode)")
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, styles(os.Stderr).err.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx := context.Background()

	if opts.verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		codegen.SetLogger(log.Named("codegen"))
		natives.SetLogger(log.Named("natives"))
		engine.SetLogger(log.Named("engine"))
	}

	build, err := readBuild(opts.input)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close(ctx) }()

	reg, err := hostRegistry(os.Stdout)
	if err != nil {
		return err
	}
	cfg := &codegen.Config{
		Natives:            reg,
		Workers:            opts.workers,
		Limits:             wasm.EncodeLimits{MaxFunctionSize: opts.maxFunction, MaxModuleSize: opts.maxModule},
		SynthesizeBuiltins: opts.builtins,
	}
	if opts.verify {
		cfg.Verifier = eng
	}

	res, buildErr := codegen.NewSession(cfg).Build(ctx, build.Modules)
	printDiagnostics(os.Stderr, res.Diagnostics)
	if res.Artifact != nil && opts.outDir != "" {
		if err := writeArtifact(opts.outDir, res.Artifact); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d units (%d bytes) to %s\n", len(res.Artifact.Units), res.Artifact.Size(), opts.outDir)
	}
	if buildErr != nil {
		return fmt.Errorf("build failed with %d diagnostics: %w", len(res.Diagnostics), buildErr)
	}
	if !opts.run && !opts.interactive {
		return nil
	}

	prog, err := eng.Load(ctx, res.Artifact, reg)
	if err != nil {
		return err
	}
	defer func() { _ = prog.Close(ctx) }()

	if opts.interactive {
		p := tea.NewProgram(newInteractiveModel(ctx, prog, res.Artifact.Order), tea.WithAltScreen())
		_, err := p.Run()
		if stopErr := prog.Stop(ctx); err == nil {
			err = stopErr
		}
		return err
	}

	unregister := prog.ListenForShutdown(ctx)
	defer unregister()
	if err := prog.Run(ctx); err != nil {
		return err
	}
	return prog.Stop(ctx)
}

func readBuild(path string) (*ir.Build, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	b, err := ir.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return b, nil
}
