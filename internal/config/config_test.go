package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their
// defaults and parses args into it.
func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	return &fakeBinder{fs: fs}
}

// chdir moves into an empty directory so no ttstrain.* file is picked up.
func chdir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}

	if cfg.Paths.CheckpointDir != "checkpoints" {
		t.Errorf("Paths.CheckpointDir = %q; want %q", cfg.Paths.CheckpointDir, "checkpoints")
	}

	if cfg.Runtime.Workers != 0 {
		t.Errorf("Runtime.Workers = %d; want 0", cfg.Runtime.Workers)
	}

	if cfg.EMA.Decay != 0.9999 {
		t.Errorf("EMA.Decay = %v; want 0.9999", cfg.EMA.Decay)
	}

	if cfg.Text.MaxLen != 0 || cfg.Text.Fold || cfg.Text.Normalize {
		t.Errorf("Text = %+v; want zero value", cfg.Text)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

// --- ParseLogLevel ---

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", "debug", slog.LevelDebug, false},
		{"info", "info", slog.LevelInfo, false},
		{"empty defaults to info", "", slog.LevelInfo, false},
		{"warn", "warn", slog.LevelWarn, false},
		{"warning alias", "WARNING", slog.LevelWarn, false},
		{"error with spaces", "  error ", slog.LevelError, false},
		{"invalid", "verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLogLevel(%q) = %v, nil; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Errorf("ParseLogLevel(%q) unexpected error: %v", tt.input, err)
				return
			}

			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v; want %v", tt.input, got, tt.want)
			}
		})
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	checks := []struct {
		flag string
		want string
	}{
		{"log-level", "info"},
		{"paths-checkpoint-dir", "checkpoints"},
		{"runtime-workers", "0"},
		{"ema-decay", "0.9999"},
		{"text-max-len", "0"},
		{"text-fold", "false"},
		{"text-normalize", "false"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != defaults {
		t.Errorf("Load() = %+v; want %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	chdir(t)

	defaults := DefaultConfig()
	binder := newFlagBinder(t, defaults,
		"--log-level=debug",
		"--runtime-workers=8",
		"--ema-decay=0.5",
		"--text-fold",
		"--text-normalize",
	)

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}

	if cfg.Runtime.Workers != 8 {
		t.Errorf("Runtime.Workers = %d; want 8", cfg.Runtime.Workers)
	}

	if cfg.EMA.Decay != 0.5 {
		t.Errorf("EMA.Decay = %v; want 0.5", cfg.EMA.Decay)
	}

	if !cfg.Text.Fold {
		t.Error("Text.Fold = false; want true")
	}

	if !cfg.Text.Normalize {
		t.Error("Text.Normalize = false; want true")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t)
	t.Setenv("TTSTRAIN_LOG_LEVEL", "warn")
	t.Setenv("TTSTRAIN_PATHS_CHECKPOINT_DIR", "/data/run1/checkpoints")
	t.Setenv("TTSTRAIN_TEXT_MAX_LEN", "64")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Paths.CheckpointDir != "/data/run1/checkpoints" {
		t.Errorf("Paths.CheckpointDir = %q", cfg.Paths.CheckpointDir)
	}

	if cfg.Text.MaxLen != 64 {
		t.Errorf("Text.MaxLen = %d; want 64", cfg.Text.MaxLen)
	}
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	chdir(t)
	t.Setenv("TTSTRAIN_RUNTIME_WORKERS", "3")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults, "--runtime-workers=5"),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Workers != 5 {
		t.Errorf("Runtime.Workers = %d; want 5", cfg.Runtime.Workers)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	chdir(t)

	cfgFile := filepath.Join(t.TempDir(), "ttstrain.yaml")
	content := `
log_level: error
runtime:
  workers: 16
ema:
  decay: 0.99
text:
  max_len: 128
  fold: true
`

	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}

	if cfg.Runtime.Workers != 16 {
		t.Errorf("Runtime.Workers = %d; want 16", cfg.Runtime.Workers)
	}

	if cfg.EMA.Decay != 0.99 {
		t.Errorf("EMA.Decay = %v; want 0.99", cfg.EMA.Decay)
	}

	if cfg.Text.MaxLen != 128 || !cfg.Text.Fold {
		t.Errorf("Text = %+v; want {MaxLen:128 Fold:true}", cfg.Text)
	}

	if cfg.Paths.CheckpointDir != defaults.Paths.CheckpointDir {
		t.Errorf("Paths.CheckpointDir = %q; want default", cfg.Paths.CheckpointDir)
	}
}

func TestLoad_ConfigFileInWorkingDir(t *testing.T) {
	chdir(t)

	if err := os.WriteFile("ttstrain.yaml", []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/ttstrain.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_RejectsOutOfRangeValues(t *testing.T) {
	chdir(t)

	defaults := DefaultConfig()

	for _, args := range [][]string{
		{"--ema-decay=1.5"},
		{"--runtime-workers=-1"},
		{"--text-max-len=-4"},
		{"--log-level=loud"},
	} {
		_, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults, args...), Defaults: defaults})
		if err == nil {
			t.Errorf("Load(%v) = nil; want error", args)
		}
	}
}
