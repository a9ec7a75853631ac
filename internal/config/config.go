// Package config loads interpreter settings from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/xirelogy/go-lisp/internal/heap"
)

const (
	DefaultMaxFrames = 1024
	DefaultMaxStack  = 1 << 16
)

// Config is the full interpreter configuration.
type Config struct {
	GC  GC  `toml:"gc" yaml:"gc"`
	VM  VM  `toml:"vm" yaml:"vm"`
	Log Log `toml:"log" yaml:"log"`
}

// GC schedules collections. A negative min-threshold lets the threshold
// follow live bytes times growth-factor with no floor.
type GC struct {
	InitialThreshold int     `toml:"initial-threshold" yaml:"initial-threshold"`
	MinThreshold     int     `toml:"min-threshold" yaml:"min-threshold"`
	GrowthFactor     float64 `toml:"growth-factor" yaml:"growth-factor"`
	Stress           bool    `toml:"stress" yaml:"stress"`
}

// VM bounds execution. An instruction limit of 0 means unlimited.
type VM struct {
	MaxFrames        int  `toml:"max-frames" yaml:"max-frames"`
	MaxStack         int  `toml:"max-stack" yaml:"max-stack"`
	InstructionLimit int  `toml:"instruction-limit" yaml:"instruction-limit"`
	Trace            bool `toml:"trace" yaml:"trace"`
}

// Log configures commonlog. An empty File logs to stderr.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GC: GC{
			InitialThreshold: heap.DefaultInitialThreshold,
			MinThreshold:     heap.DefaultMinThreshold,
			GrowthFactor:     heap.DefaultGrowthFactor,
		},
		VM: VM{
			MaxFrames: DefaultMaxFrames,
			MaxStack:  DefaultMaxStack,
		},
	}
}

// Load reads path, picking the decoder from its extension. Fields absent
// from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := Decode(filepath.Ext(path), data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode unmarshals data in the format named by ext (".toml", ".yaml" or
// ".yml") over cfg.
func Decode(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

// Validate fills zero fields with defaults and rejects settings the heap
// and VM cannot honour.
func (c *Config) Validate() error {
	def := Default()
	switch {
	case c.GC.InitialThreshold < 0:
		return fmt.Errorf("gc.initial-threshold must not be negative")
	case c.GC.GrowthFactor != 0 && c.GC.GrowthFactor <= 1:
		return fmt.Errorf("gc.growth-factor must be greater than 1, got %g", c.GC.GrowthFactor)
	case c.VM.MaxFrames < 0:
		return fmt.Errorf("vm.max-frames must not be negative")
	case c.VM.MaxStack < 0:
		return fmt.Errorf("vm.max-stack must not be negative")
	case c.VM.InstructionLimit < 0:
		return fmt.Errorf("vm.instruction-limit must not be negative")
	}
	if c.GC.InitialThreshold == 0 {
		c.GC.InitialThreshold = def.GC.InitialThreshold
	}
	if c.GC.MinThreshold == 0 {
		c.GC.MinThreshold = def.GC.MinThreshold
	}
	if c.GC.GrowthFactor == 0 {
		c.GC.GrowthFactor = def.GC.GrowthFactor
	}
	if c.VM.MaxFrames == 0 {
		c.VM.MaxFrames = def.VM.MaxFrames
	}
	if c.VM.MaxStack == 0 {
		c.VM.MaxStack = def.VM.MaxStack
	}
	return nil
}

// Heap converts the GC section for heap.New.
func (c Config) Heap() heap.Config {
	return heap.Config{
		InitialThreshold: c.GC.InitialThreshold,
		MinThreshold:     c.GC.MinThreshold,
		GrowthFactor:     c.GC.GrowthFactor,
		Stress:           c.GC.Stress,
	}
}
