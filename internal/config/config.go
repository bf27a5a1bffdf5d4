package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	EMA      EMAConfig     `mapstructure:"ema"`
	Text     TextConfig    `mapstructure:"text"`
}

type PathsConfig struct {
	CheckpointDir string `mapstructure:"checkpoint_dir"`
}

type RuntimeConfig struct {
	// Workers bounds the tensor worker pool; 0 keeps the GOMAXPROCS default.
	Workers int `mapstructure:"workers"`
}

type EMAConfig struct {
	Decay float64 `mapstructure:"decay"`
}

type TextConfig struct {
	// MaxLen fixes the encoded width; 0 uses the longest input.
	MaxLen    int  `mapstructure:"max_len"`
	Fold      bool `mapstructure:"fold"`
	// Normalize collapses whitespace before encoding.
	Normalize bool `mapstructure:"normalize"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// binding ties a config key to its command-line flag.
type binding struct {
	key  string
	flag string
}

var bindings = []binding{
	{"log_level", "log-level"},
	{"paths.checkpoint_dir", "paths-checkpoint-dir"},
	{"runtime.workers", "runtime-workers"},
	{"ema.decay", "ema-decay"},
	{"text.max_len", "text-max-len"},
	{"text.fold", "text-fold"},
	{"text.normalize", "text-normalize"},
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			CheckpointDir: "checkpoints",
		},
		Runtime: RuntimeConfig{
			Workers: 0,
		},
		EMA: EMAConfig{
			Decay: 0.9999,
		},
		Text: TextConfig{
			MaxLen:    0,
			Fold:      false,
			Normalize: false,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-checkpoint-dir", defaults.Paths.CheckpointDir, "Directory holding epoch checkpoints")
	fs.Int("runtime-workers", defaults.Runtime.Workers, "Tensor worker pool size (0 = GOMAXPROCS)")
	fs.Float64("ema-decay", defaults.EMA.Decay, "EMA decay rate in [0, 1]")
	fs.Int("text-max-len", defaults.Text.MaxLen, "Fixed ASCII code width (0 = longest input)")
	fs.Bool("text-fold", defaults.Text.Fold, "Fold accented characters to ASCII before encoding")
	fs.Bool("text-normalize", defaults.Text.Normalize, "Collapse whitespace and trim transcripts before encoding")
}

// Load resolves the configuration from, in decreasing priority, changed
// flags, TTSTRAIN_* environment variables, the config file and defaults.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("TTSTRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("ttstrain")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks value ranges that decoding cannot.
func (c Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Runtime.Workers < 0 {
		return fmt.Errorf("runtime.workers must be >= 0, got %d", c.Runtime.Workers)
	}

	if c.EMA.Decay < 0 || c.EMA.Decay > 1 {
		return fmt.Errorf("ema.decay must be in [0, 1], got %v", c.EMA.Decay)
	}

	if c.Text.MaxLen < 0 {
		return fmt.Errorf("text.max_len must be >= 0, got %d", c.Text.MaxLen)
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.checkpoint_dir", c.Paths.CheckpointDir)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("ema.decay", c.EMA.Decay)
	v.SetDefault("text.max_len", c.Text.MaxLen)
	v.SetDefault("text.fold", c.Text.Fold)
	v.SetDefault("text.normalize", c.Text.Normalize)
}

// bindFlags binds every registered config flag to its dotted key. Flags a
// command does not register are skipped.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, b := range bindings {
		f := fs.Lookup(b.flag)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(b.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", b.flag, err)
		}
	}

	return nil
}
