// Completion: 95% - CLI flags and configuration layering
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"github.com/xyproto/fullgen/internal/engine"
)

// A baseline native code generator for a JavaScript subset

const versionString = "fullgen 1.0.0"

// settingFlags are the flags that override Config fields by name
var settingFlags = map[string]string{
	"arch":         "arch",
	"v":            "verbose",
	"verbose":      "verbose",
	"max-depth":    "max-depth",
	"break-slots":  "break-slots",
	"depth-checks": "depth-checks",
	"eager":        "eager",
	"max-steps":    "max-steps",
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	defaults := DefaultConfig()

	_ = flag.String("arch", defaults.Arch, "target architecture (amd64, arm64, sim)")
	var configFlag = flag.String("config", "", "configuration file (default: fullgen.yaml if present)")
	_ = flag.Int("max-depth", defaults.MaxDepth, "nesting limit of the code generator")
	_ = flag.Bool("break-slots", false, "emit a break slot at every statement")
	_ = flag.Bool("depth-checks", false, "check the stack height at run time at every statement")
	_ = flag.Bool("eager", false, "compile every function before running")
	_ = flag.Int64("max-steps", 0, "instruction budget per call on the reference machine (0 for unlimited)")
	var outputFlag = flag.String("o", "", "object file to write")
	var outputLongFlag = flag.String("output", "", "object file to write")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	_ = flag.Bool("v", false, "verbose mode (trace emitted instructions)")
	_ = flag.Bool("verbose", false, "verbose mode (trace emitted instructions)")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	cfg := defaults
	path, required := configPath(*configFlag)
	if err := LoadConfigFile(&cfg, path, required); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	// Flags given on the command line win over everything else
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		if name, ok := settingFlags[f.Name]; ok && flagErr == nil {
			flagErr = cfg.Set(name, f.Value.String())
		}
	})
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", flagErr)
		os.Exit(1)
	}

	engine.VerboseMode = cfg.Verbose
	if engine.VerboseMode {
		fmt.Fprintf(os.Stderr, "DEBUG main: VerboseMode enabled, arch %s\n", cfg.Arch)
	}

	// Use whichever output flag was specified, preferring the short form
	outputPath := *outputLongFlag
	if *outputFlag != "" {
		outputPath = *outputFlag
	}

	useColor := isTerminal(os.Stderr) && !env.Has("NO_COLOR")
	if err := RunCLI(flag.Args(), cfg, outputPath, os.Stdout, os.Stderr, useColor); err != nil {
		report(os.Stderr, err, useColor)
		os.Exit(1)
	}
}
