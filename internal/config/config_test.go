package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	if c.Output.Dir != "build/generated-snippets" {
		t.Fatalf("unexpected output dir %s", c.Output.Dir)
	}
	if c.Validation.RelaxedRequest || c.Validation.RelaxedResponse {
		t.Fatalf("validation must be strict by default")
	}
	if c.Server.Port != 3000 {
		t.Fatalf("expected port 3000")
	}
	if c.Log.Level != "info" {
		t.Fatalf("expected info level")
	}
	if c.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", c.Workers)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	content := "output:\n  dir: ./out\n  verify_examples: true\nvalidation:\n  relaxed_response: true\nserver:\n  port: 8080\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output.Dir != "./out" || !cfg.Output.VerifyExamples {
		t.Fatalf("unexpected output config %+v", cfg.Output)
	}
	if !cfg.Validation.RelaxedResponse || cfg.Validation.RelaxedRequest {
		t.Fatalf("unexpected validation config %+v", cfg.Validation)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RAMLDOC_OUTPUT_DIR", "/tmp/snippets")
	t.Setenv("RAMLDOC_RELAXED_REQUEST", "true")
	t.Setenv("RAMLDOC_WORKERS", "8")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output.Dir != "/tmp/snippets" || !cfg.Validation.RelaxedRequest || cfg.Workers != 8 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	c.Output.Dir = t.TempDir()
	if err := c.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	c.Log.Level = "loud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected invalid log level error")
	}
	if l, err := ParseLevel("debug"); err != nil || l != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v err=%v", l, err)
	}
}
