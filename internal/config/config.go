// Package config loads the gradle-usage settings from flags, environment, .env and config files.
package config

import (
	"log/slog"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/askiada/gradle-usage/internal/report"
	"github.com/askiada/gradle-usage/internal/version"
)

const (
	KeyPaths          = "paths"
	KeyExcludes       = "excludes"
	KeyFollowLinks    = "follow-links"
	KeyResolver       = "resolver"
	KeyOutputDir      = "output-dir"
	KeyFormat         = "format"
	KeyConcurrency    = "concurrency"
	KeyGradlewTimeout = "gradlew-timeout"
	KeyTimeout        = "timeout"
	KeyCacheSize      = "cache-size"
	KeyHistoryDB      = "history-db"
	KeyPipelineGraph  = "pipeline-graph"
	KeyLogLevel       = "log-level"
)

const (
	// EnvPrefix prefixes the environment variables, e.g. GRADLE_USAGE_OUTPUT_DIR.
	EnvPrefix = "GRADLE_USAGE"
	// FileName is the config file looked up in the home and working directories.
	FileName = ".gradle-usage"
	// DefaultOutputDir is where reports are written.
	DefaultOutputDir = "build/reports/usage"
	DefaultTimeout   = 10 * time.Minute
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

var logLevels = []string{"debug", "info", "warn", "error"}

type Config struct {
	Paths          []string      `mapstructure:"paths"`
	Excludes       []string      `mapstructure:"excludes"`
	FollowLinks    bool          `mapstructure:"follow-links"`
	Resolver       string        `mapstructure:"resolver"`
	OutputDir      string        `mapstructure:"output-dir"`
	Format         string        `mapstructure:"format"`
	Concurrency    int           `mapstructure:"concurrency"`
	GradlewTimeout time.Duration `mapstructure:"gradlew-timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheSize      int           `mapstructure:"cache-size"`
	HistoryDB      string        `mapstructure:"history-db"`
	PipelineGraph  string        `mapstructure:"pipeline-graph"`
	LogLevel       string        `mapstructure:"log-level"`
}

// New returns a viper instance holding the defaults and reading GRADLE_USAGE_* variables.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPaths, []string{})
	v.SetDefault(KeyExcludes, []string{})
	v.SetDefault(KeyFollowLinks, false)
	v.SetDefault(KeyResolver, version.WrapperKind)
	v.SetDefault(KeyOutputDir, DefaultOutputDir)
	v.SetDefault(KeyFormat, report.TextFormat)
	v.SetDefault(KeyConcurrency, runtime.NumCPU())
	v.SetDefault(KeyGradlewTimeout, version.DefaultTimeout)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyCacheSize, version.DefaultCacheSize)
	v.SetDefault(KeyHistoryDB, "")
	v.SetDefault(KeyPipelineGraph, "")
	v.SetDefault(KeyLogLevel, "info")
}

// LoadDotEnv exports the variables of a .env file. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "unable to load %s", path)
	}

	return nil
}

// ReadFile reads cfgFile, or looks for .gradle-usage.yaml in the home and working directories.
// Only an explicit cfgFile has to exist.
func ReadFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}

		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && cfgFile == "" {
		return nil
	}

	return errors.Wrap(err, "unable to read config file")
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "unable to decode configuration")
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if !slices.Contains(version.Kinds(), c.Resolver) {
		return errors.Wrapf(ErrInvalidConfig, "resolver %q, expected one of %s", c.Resolver, strings.Join(version.Kinds(), ", "))
	}

	if !slices.Contains(report.Formats(), c.Format) {
		return errors.Wrapf(ErrInvalidConfig, "format %q, expected one of %s", c.Format, strings.Join(report.Formats(), ", "))
	}

	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return errors.Wrapf(ErrInvalidConfig, "log level %q, expected one of %s", c.LogLevel, strings.Join(logLevels, ", "))
	}

	if c.Concurrency <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "concurrency must be positive, got %d", c.Concurrency)
	}

	if c.CacheSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "cache size must be positive, got %d", c.CacheSize)
	}

	if c.GradlewTimeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "gradlew timeout must be positive, got %s", c.GradlewTimeout)
	}

	if c.Timeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "timeout must be positive, got %s", c.Timeout)
	}

	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var level slog.Level

	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}
