package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "kernel.cfg")
	body := `
[Kernel]
NPROC=128
Scheduler=round-robin

[Log]
Level=DEBUG
`
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Kernel.NPROC != 128 {
		t.Fatalf("expected NPROC=128, got %d", c.Kernel.NPROC)
	}
	if c.Kernel.Scheduler != "round-robin" {
		t.Fatalf("expected scheduler override, got %q", c.Kernel.Scheduler)
	}
	if c.Log.Level != "DEBUG" {
		t.Fatalf("expected log level override, got %q", c.Log.Level)
	}
	// untouched keys keep their defaults
	if c.Kernel.MAXSHM != 10 {
		t.Fatalf("expected default MAXSHM to survive a partial override, got %d", c.Kernel.MAXSHM)
	}
}

func TestLoadConfigFileRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "big.cfg")
	big := make([]byte, maxConfigSize+1)
	if err := os.WriteFile(p, big, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var c KernelConfig
	if err := LoadConfigFile(&c, p); err != ErrConfigFileTooLarge {
		t.Fatalf("expected ErrConfigFileTooLarge, got %v", err)
	}
}
