// Completion: 90% - Configuration file, environment and flag layering
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xyproto/env/v2"
	"github.com/xyproto/fullgen/internal/codegen"
	"github.com/xyproto/fullgen/internal/driver"
	"github.com/xyproto/fullgen/internal/engine"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is looked up in the working directory
const defaultConfigFile = "fullgen.yaml"

// Config holds every setting a command can be given. Values are layered:
// defaults, then the configuration file, then FULLGEN_* environment
// variables, then command-line flags.
type Config struct {
	Arch        string `yaml:"arch"`
	Verbose     bool   `yaml:"verbose"`
	MaxDepth    int    `yaml:"max_depth"`
	BreakSlots  bool   `yaml:"break_slots"`
	DepthChecks bool   `yaml:"depth_checks"`
	Eager       bool   `yaml:"eager"`
	MaxSteps    int64  `yaml:"max_steps"`
}

// DefaultConfig targets the host when it is a native architecture
func DefaultConfig() Config {
	arch := engine.HostPlatform().Arch
	if !arch.Native() {
		arch = engine.ArchX86_64
	}
	return Config{
		Arch:     arch.String(),
		MaxDepth: codegen.DefaultMaxDepth,
	}
}

// LoadConfigFile decodes path over cfg. Unknown keys are errors. A
// missing file is only an error when required is set.
func LoadConfigFile(cfg *Config, path string, required bool) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// configPath picks the configuration file: the flag, then FULLGEN_CONFIG,
// then fullgen.yaml. The second result tells if the file must exist.
func configPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env.Has("FULLGEN_CONFIG") {
		return env.Str("FULLGEN_CONFIG"), true
	}
	return defaultConfigFile, false
}

// ApplyEnv overrides cfg with the FULLGEN_* variables that are set
func (c *Config) ApplyEnv() {
	if env.Has("FULLGEN_ARCH") {
		c.Arch = env.Str("FULLGEN_ARCH")
	}
	if env.Has("FULLGEN_VERBOSE") {
		c.Verbose = env.Bool("FULLGEN_VERBOSE")
	}
	if env.Has("FULLGEN_BREAK_SLOTS") {
		c.BreakSlots = env.Bool("FULLGEN_BREAK_SLOTS")
	}
	if env.Has("FULLGEN_DEPTH_CHECKS") {
		c.DepthChecks = env.Bool("FULLGEN_DEPTH_CHECKS")
	}
	c.MaxDepth = env.Int("FULLGEN_MAX_DEPTH", c.MaxDepth)
}

// Set applies one named setting given as text, the way flags arrive
func (c *Config) Set(name, value string) error {
	// a value that does not parse leaves the field as it was
	invalid := func(err error) error {
		return fmt.Errorf("invalid value %q for %s: %w", value, name, err)
	}
	flag := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return invalid(err)
		}
		*dst = b
		return nil
	}
	switch name {
	case "arch":
		c.Arch = value
	case "verbose", "v":
		return flag(&c.Verbose)
	case "max-depth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid(err)
		}
		c.MaxDepth = n
	case "break-slots":
		return flag(&c.BreakSlots)
	case "depth-checks":
		return flag(&c.DepthChecks)
	case "eager":
		return flag(&c.Eager)
	case "max-steps":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return invalid(err)
		}
		c.MaxSteps = n
	default:
		return fmt.Errorf("unknown setting: %s", name)
	}
	return nil
}

// Target parses the configured architecture
func (c Config) Target() (engine.Arch, error) {
	return engine.ParseArch(c.Arch)
}

// Options converts the configuration to driver options
func (c Config) Options(stdout io.Writer) (driver.Options, error) {
	if c.MaxDepth < 0 {
		return driver.Options{}, fmt.Errorf("max depth must not be negative, got %d", c.MaxDepth)
	}
	return driver.Options{
		Codegen: codegen.Options{
			BreakSlots:  c.BreakSlots,
			DepthChecks: c.DepthChecks,
			MaxDepth:    c.MaxDepth,
		},
		Eager:    c.Eager,
		MaxSteps: c.MaxSteps,
		Stdout:   stdout,
	}, nil
}

// historyFile is where the REPL keeps its history
func historyFile() string {
	return env.Str("FULLGEN_HISTORY", filepath.Join(env.HomeDir(), ".fullgen_history"))
}
