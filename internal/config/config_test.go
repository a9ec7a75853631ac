package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const tomlSource = `
[gc]
initial-threshold = 4096
growth-factor = 1.5
stress = true

[vm]
max-frames = 64
instruction-limit = 10000
trace = true

[log]
verbosity = 2
file = "lisp.log"
`

const yamlSource = `
gc:
  initial-threshold: 4096
  growth-factor: 1.5
  stress: true
vm:
  max-frames: 64
  instruction-limit: 10000
  trace: true
log:
  verbosity: 2
  file: lisp.log
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadTOMLAndYAMLAgree(t *testing.T) {
	fromTOML, err := Load(writeFile(t, "lisp.toml", tomlSource))
	if err != nil {
		t.Fatalf("toml: %v", err)
	}
	fromYAML, err := Load(writeFile(t, "lisp.yml", yamlSource))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if fromTOML != fromYAML {
		t.Fatalf("expected identical configs, got %+v and %+v", fromTOML, fromYAML)
	}
	if fromTOML.GC.InitialThreshold != 4096 || !fromTOML.GC.Stress || fromTOML.GC.GrowthFactor != 1.5 {
		t.Fatalf("unexpected gc section %+v", fromTOML.GC)
	}
	if fromTOML.VM.MaxFrames != 64 || fromTOML.VM.InstructionLimit != 10000 || !fromTOML.VM.Trace {
		t.Fatalf("unexpected vm section %+v", fromTOML.VM)
	}
	if fromTOML.Log.Verbosity != 2 || fromTOML.Log.File != "lisp.log" {
		t.Fatalf("unexpected log section %+v", fromTOML.Log)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "lisp.yaml", "vm:\n  max-frames: 8\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.VM.MaxFrames != 8 {
		t.Fatalf("expected max-frames 8, got %d", cfg.VM.MaxFrames)
	}
	if cfg.VM.MaxStack != def.VM.MaxStack || cfg.GC != def.GC {
		t.Fatalf("expected defaults to survive, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"growth-factor": func(c *Config) { c.GC.GrowthFactor = 0.5 },
		"max-frames":    func(c *Config) { c.VM.MaxFrames = -1 },
	}
	for want, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %s, got %v", want, err)
		}
	}

	unfloored := Default()
	unfloored.GC.MinThreshold = -1
	if err := unfloored.Validate(); err != nil {
		t.Fatalf("negative min-threshold: %v", err)
	}
	if unfloored.GC.MinThreshold != -1 || unfloored.Heap().MinThreshold != -1 {
		t.Fatalf("expected negative min-threshold to be kept, got %d", unfloored.GC.MinThreshold)
	}

	var zero Config
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero config: %v", err)
	}
	if zero != Default() {
		t.Fatalf("expected zero config to validate to defaults, got %+v", zero)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := Load(writeFile(t, "lisp.ini", "x=1")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
	if _, err := Load(writeFile(t, "lisp.toml", "[vm]\nmax-frames = \"many\"\n")); err == nil {
		t.Fatalf("expected type error")
	}
}
