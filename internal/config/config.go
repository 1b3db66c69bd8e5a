// Package config loads the settings of the fmorm command line tools.
//
// Values are read from, in increasing precedence: built-in defaults, a YAML file,
// FMORM_ environment variables and explicitly set command line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/logger"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read, e.g. FMORM_HOST.
const EnvPrefix = "FMORM_"

// DefaultFile is read from the working directory when no file is given.
const DefaultFile = "fmorm.yaml"

// Output formats of the command line tools.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// Config is the complete tool configuration.
type Config struct {
	connection.Config `koanf:",squash"`

	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"`
	Output   string `koanf:"output"`
}

func defaults() map[string]any {
	return map[string]any{
		"version":   constants.DefaultAPIVersion,
		"timeout":   connection.DefaultTimeout.String(),
		"log_level": zerolog.InfoLevel.String(),
		"output":    OutputTable,
	}
}

// Load reads the configuration. cfgFile may be empty, in which case DefaultFile is
// used when present. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// FMORM_LOG_LEVEL -> log_level
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")
	cfg.Logger = zerolog.Nop()

	if cfg.Output != OutputTable && cfg.Output != OutputJSON {
		return nil, fmt.Errorf("%w: unknown output format %q", constants.ErrConfiguration, cfg.Output)
	}
	return &cfg, nil
}

// BuildLogger returns the logger described by the configuration and stores it on the
// connection settings. The caller closes the returned LogData.
func (c *Config) BuildLogger() (*logger.LogData, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", constants.ErrConfiguration, c.LogLevel)
	}
	build := logger.New().WithLevel(level)
	if c.LogFile != "" {
		build = build.FromPath(c.LogFile)
	} else {
		build = build.Pretty()
	}
	data, err := build.Make()
	if err != nil {
		return nil, err
	}
	c.Logger = data.Logger
	return data, nil
}
