// Completion: 90% - Subcommands for running, listing, packaging and installing code
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xyproto/fullgen/internal/codemem"
	"github.com/xyproto/fullgen/internal/driver"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/objfile"
	"github.com/xyproto/fullgen/internal/sim"
)

// cli.go - subcommands:
// - fullgen run <file.js>       compile for the reference machine and run
// - fullgen asm <file.js>       print the listing for --arch (amd64, arm64, sim)
// - fullgen obj <file.js>       write an ELF64 relocatable object
// - fullgen install <file.js>   map native code, freeze it and report the region
// - fullgen repl                read-eval-print loop on one reference machine
// - fullgen watch <file.js>     run again every time the file changes
// - fullgen <file.js>           shorthand for run

var commands = []string{"run", "asm", "obj", "install", "repl", "watch", "help", "version"}

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args       []string
	Config     Config
	OutputPath string
	UseColor   bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// sourceError is a failure of a loaded file, reported against its source
type sourceError struct {
	err    error
	source string
}

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// report writes err the way the user should see it
func report(w io.Writer, err error, useColor bool) {
	var se *sourceError
	if errors.As(err, &se) {
		fmt.Fprint(w, driver.Describe(se.err, se.source, useColor))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// RunCLI is the main entry point for the command-line interface
func RunCLI(args []string, cfg Config, outputPath string, stdout, stderr io.Writer, useColor bool) error {
	ctx := &CommandContext{
		Args:       args,
		Config:     cfg,
		OutputPath: outputPath,
		UseColor:   useColor,
		Stdout:     stdout,
		Stderr:     stderr,
	}

	if len(args) == 0 {
		return cmdHelp(ctx)
	}

	subcmd := args[0]
	switch subcmd {
	case "run":
		if len(args) < 2 {
			return fmt.Errorf("usage: fullgen run <file.js>")
		}
		return cmdRun(ctx, args[1])

	case "asm":
		if len(args) < 2 {
			return fmt.Errorf("usage: fullgen [--arch amd64|arm64|sim] asm <file.js>")
		}
		return cmdAsm(ctx, args[1])

	case "obj":
		if len(args) < 2 {
			return fmt.Errorf("usage: fullgen [-o output.o] obj <file.js>")
		}
		return cmdObj(ctx, args[1])

	case "install":
		if len(args) < 2 {
			return fmt.Errorf("usage: fullgen install <file.js>")
		}
		return cmdInstall(ctx, args[1])

	case "repl":
		return cmdRepl(ctx)

	case "watch":
		if len(args) < 2 {
			return fmt.Errorf("usage: fullgen watch <file.js>")
		}
		return cmdWatch(ctx, args[1])

	case "help", "--help", "-h":
		return cmdHelp(ctx)

	case "version", "--version", "-V":
		fmt.Fprintln(ctx.Stdout, versionString)
		return nil

	default:
		if strings.HasSuffix(subcmd, ".js") {
			return cmdRun(ctx, subcmd)
		}
		msg := fmt.Sprintf("unknown command: %s", subcmd)
		if suggestions := engine.Suggest(subcmd, commands, 2); len(suggestions) > 0 {
			msg += fmt.Sprintf("\n\nDid you mean '%s'?", strings.Join(suggestions, "' or '"))
		}
		return fmt.Errorf("%s\n\nRun 'fullgen help' for usage information", msg)
	}
}

// load reads and resolves a script, keeping the source for diagnostics
func load(path string) (*driver.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	u, err := driver.Load(path, string(data))
	if err != nil {
		return nil, &sourceError{err: err, source: string(data)}
	}
	return u, nil
}

// nativeTarget is the configured architecture, which must have an encoder
func nativeTarget(ctx *CommandContext) (engine.Arch, error) {
	arch, err := ctx.Config.Target()
	if err != nil {
		return engine.ArchUnknown, err
	}
	if !arch.Native() {
		return engine.ArchUnknown, fmt.Errorf("%s has no machine code, use --arch amd64 or --arch arm64", arch)
	}
	return arch, nil
}

// cmdRun compiles a file for the reference machine and runs it
func cmdRun(ctx *CommandContext, path string) error {
	u, err := load(path)
	if err != nil {
		return err
	}
	opts, err := ctx.Config.Options(ctx.Stdout)
	if err != nil {
		return err
	}
	s := driver.NewSession(opts)
	if _, err := s.Run(u); err != nil {
		var thrown *sim.ThrownError
		if errors.As(err, &thrown) {
			return fmt.Errorf("%s: %w", path, err)
		}
		return &sourceError{err: err, source: u.Source}
	}
	if ctx.Config.Verbose {
		st := s.Machine().Stats()
		fmt.Fprintf(ctx.Stderr, "%s: %d functions compiled, %d steps, %d calls, %d runtime calls, %d IC calls\n",
			path, s.Compiles, st.Steps, st.Calls, st.RuntimeCalls, st.ICCalls)
	}
	return nil
}

// cmdAsm prints the code listing of every function
func cmdAsm(ctx *CommandContext, path string) error {
	arch, err := ctx.Config.Target()
	if err != nil {
		return err
	}
	u, err := load(path)
	if err != nil {
		return err
	}
	opts, err := ctx.Config.Options(ctx.Stdout)
	if err != nil {
		return err
	}
	if err := u.WriteListing(ctx.Stdout, arch, opts.Codegen); err != nil {
		return &sourceError{err: err, source: u.Source}
	}
	return nil
}

// cmdObj writes the native code of every function as one object file
func cmdObj(ctx *CommandContext, path string) error {
	arch, err := nativeTarget(ctx)
	if err != nil {
		return err
	}
	u, err := load(path)
	if err != nil {
		return err
	}
	opts, err := ctx.Config.Options(ctx.Stdout)
	if err != nil {
		return err
	}
	codes, err := u.Native(arch, opts.Codegen)
	if err != nil {
		return &sourceError{err: err, source: u.Source}
	}

	outputPath := ctx.OutputPath
	if outputPath == "" {
		outputPath = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".o"
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if err := objfile.Write(f, arch, codes); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if ctx.Config.Verbose {
		fmt.Fprintf(ctx.Stderr, "Wrote %s (%s, %d functions)\n", outputPath, arch, len(codes))
	}
	return nil
}

// cmdInstall maps the native code into executable memory and reports
// where each function landed
func cmdInstall(ctx *CommandContext, path string) error {
	arch, err := nativeTarget(ctx)
	if err != nil {
		return err
	}
	u, err := load(path)
	if err != nil {
		return err
	}
	opts, err := ctx.Config.Options(ctx.Stdout)
	if err != nil {
		return err
	}
	codes, err := u.Native(arch, opts.Codegen)
	if err != nil {
		return &sourceError{err: err, source: u.Source}
	}
	r, err := codemem.Install(codes)
	if err != nil {
		return err
	}
	defer r.Free()

	state := "frozen"
	if !codemem.Executable() {
		state = "frozen (not executable on this platform)"
	}
	fmt.Fprintf(ctx.Stdout, "region %#x: %d of %d bytes used, %s, %s code\n", r.Addr(), r.Used(), r.Size(), state, arch)
	for _, e := range r.Entries() {
		fmt.Fprintf(ctx.Stdout, "  %#x %6d  %s\n", r.Addr()+uintptr(e.Offset), e.Size, e.Name)
	}
	return nil
}

// cmdWatch runs a file and runs it again whenever it is written, until
// interrupted
func cmdWatch(ctx *CommandContext, path string) error {
	var mu sync.Mutex
	rerun := func() {
		mu.Lock()
		defer mu.Unlock()
		if err := cmdRun(ctx, path); err != nil {
			report(ctx.Stderr, err, ctx.UseColor)
		}
	}
	rerun()

	fw, err := NewFileWatcher(func(changed string) {
		fmt.Fprintf(ctx.Stderr, "%s changed, running again\n", changed)
		rerun()
	})
	if err != nil {
		return err
	}
	if err := fw.AddFile(path); err != nil {
		fw.Close()
		return err
	}
	go fw.Watch()

	fmt.Fprintf(ctx.Stderr, "Watching %s (Ctrl+C to stop)\n", path)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	signal.Stop(sig)
	return fw.Close()
}

// cmdHelp shows usage information
func cmdHelp(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Stdout, `%s - baseline native code generator for a JavaScript subset

Usage:
  fullgen [flags] <command> [arguments]
  fullgen [flags] <file.js>         shorthand for 'fullgen run <file.js>'

Commands:
  run <file.js>       compile for the reference machine and run
  asm <file.js>       print the code listing for --arch
  obj <file.js>       write an ELF64 relocatable object for --arch
  install <file.js>   map the native code, freeze it and report the region
  repl                read-eval-print loop
  watch <file.js>     run the file again every time it changes
  help                show this help
  version             show the version

Flags:
  --arch <arch>       amd64, arm64 or sim (default: host, or amd64)
  --config <file>     configuration file (default: fullgen.yaml if present)
  --max-depth <n>     nesting limit of the code generator (default: %d)
  --break-slots       emit a break slot at every statement
  --depth-checks      check the stack height at run time at every statement
  --eager             compile every function before running
  --max-steps <n>     instruction budget per call on the reference machine
  -o, --output <file> object file to write
  -v, --verbose       trace emitted instructions
  -V, --version       print version information and exit

Environment:
  FULLGEN_ARCH, FULLGEN_VERBOSE, FULLGEN_MAX_DEPTH, FULLGEN_BREAK_SLOTS,
  FULLGEN_DEPTH_CHECKS, FULLGEN_CONFIG, FULLGEN_HISTORY

Settings are read from the configuration file, then the environment, then
the flags, each overriding the one before.
`, versionString, DefaultConfig().MaxDepth)
	return nil
}
