package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/femstage/internal/params"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DataDir != ".femstage" {
		t.Errorf("expected data dir .femstage, got %s", cfg.DataDir)
	}
	if cfg.Live.FPS <= 0 {
		t.Error("fps should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.RunsDir() != filepath.Join(".femstage", "runs") {
		t.Errorf("unexpected runs dir %s", cfg.RunsDir())
	}
	if cfg.FrameInterval() != 50*time.Millisecond {
		t.Errorf("expected 50ms frames, got %v", cfg.FrameInterval())
	}
}

func TestLoadOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "femstage.yaml")
	data := "log:\n  level: debug\nwatch:\n  debounce: 1s\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("expected default format, got %s", cfg.Log.Format)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("expected 1s debounce, got %v", cfg.Watch.Debounce)
	}
	if cfg.Live.PlotWidth != DefaultPlotWidth {
		t.Errorf("expected default plot width, got %d", cfg.Live.PlotWidth)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "femstage.yaml")
	if err := os.WriteFile(path, []byte("log:\n  format: xml\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "log.format") {
		t.Errorf("expected log.format error, got %v", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "femstage.yaml")
	cfg := DefaultConfig()
	cfg.Live.FPS = 5

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Live.FPS != 5 {
		t.Errorf("expected fps 5, got %d", loaded.Live.FPS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero fps", func(c *Config) { c.Live.FPS = 0 }},
		{"zero plot height", func(c *Config) { c.Live.PlotHeight = 0 }},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGetTemplate(t *testing.T) {
	if GetTemplate("truss_static") == nil {
		t.Fatal("expected template, got nil")
	}
	if GetTemplate("nonexistent") != nil {
		t.Error("expected nil for nonexistent template")
	}
}

func TestListTemplates(t *testing.T) {
	names := ListTemplates()
	if len(names) != len(Templates) {
		t.Fatalf("expected %d templates, got %d", len(Templates), len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("templates not sorted: %v", names)
		}
	}
}

func TestTemplatesParse(t *testing.T) {
	for _, name := range ListTemplates() {
		tmpl := GetTemplate(name)
		if _, ok := tmpl.Files[tmpl.Entry]; !ok {
			t.Errorf("%s: entry %s not among files", name, tmpl.Entry)
		}
		for file, text := range tmpl.Files {
			if !strings.HasSuffix(file, ".json") {
				continue
			}
			if _, err := params.Parse(text); err != nil {
				t.Errorf("%s/%s: %v", name, file, err)
			}
		}
	}
}

func TestTemplateWriteTo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	tmpl := GetTemplate("truss_optimization")

	written, err := tmpl.WriteTo(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != len(tmpl.Files) {
		t.Errorf("expected %d files, got %d", len(tmpl.Files), len(written))
	}

	if _, err := tmpl.WriteTo(dir, false); err == nil {
		t.Error("expected error when files exist")
	}
	if _, err := tmpl.WriteTo(dir, true); err != nil {
		t.Errorf("force should overwrite: %v", err)
	}
}
