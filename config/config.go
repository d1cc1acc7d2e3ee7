// Package config loads engine settings from a YAML/TOML file and OPF_*
// environment variables, and converts them into solver options.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/gridfold/opf"
	"github.com/spf13/viper"
)

// Config is the engine-wide configuration.
type Config struct {
	// MaxIterations, Tolerance and Timeout seed the solver configuration of
	// every dispatch.
	MaxIterations int           `mapstructure:"max_iterations"`
	Tolerance     float64       `mapstructure:"tolerance"`
	Timeout       time.Duration `mapstructure:"timeout"`

	// Parallelism bounds concurrent contingency solves.
	Parallelism int `mapstructure:"parallelism"`

	// SolverDir overrides the native solver binary directory.
	SolverDir string `mapstructure:"solver_dir"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from path (or, when empty, an opf.yaml found in
// the working directory or ~/.opf) merged with OPF_* environment variables.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("max_iterations", 5000)
	v.SetDefault("tolerance", 1e-6)
	v.SetDefault("timeout", 5*time.Minute)
	v.SetDefault("parallelism", 4)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("OPF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("opf")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.opf")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options converts the configuration into solver options for a dispatcher.
func (c *Config) Options() []opf.Option {
	var opts []opf.Option
	if c.MaxIterations > 0 {
		opts = append(opts, opf.WithMaxIterations(c.MaxIterations))
	}
	if c.Tolerance > 0 {
		opts = append(opts, opf.WithTolerance(c.Tolerance))
	}
	if c.Timeout > 0 {
		opts = append(opts, opf.WithTimeout(c.Timeout))
	}
	return opts
}
