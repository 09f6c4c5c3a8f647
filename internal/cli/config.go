package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that configure the CLI.
// FEDPLAN_PARQUET_ROOT sets parquet-root, and so on.
const EnvPrefix = "FEDPLAN"

// Config is the resolved CLI configuration. Values come from flags,
// FEDPLAN_* environment variables and an optional config file, in that
// order of precedence.
type Config struct {
	// Catalog is the directory of CUE source declarations.
	Catalog string `mapstructure:"catalog"`

	// DSN connects the postgres engine.
	DSN string `mapstructure:"dsn"`

	// SQLite is the database file of the sqlite engine.
	SQLite string `mapstructure:"sqlite"`

	// ParquetRoot resolves relative parquet paths.
	ParquetRoot string `mapstructure:"parquet-root"`

	// Gateway sends every engine's requests to a remote fedplan gateway.
	Gateway string `mapstructure:"gateway"`

	// Listen is the gateway address of the serve command.
	Listen string `mapstructure:"listen"`

	LogLevel      string `mapstructure:"log-level"`
	TempNameLimit int    `mapstructure:"temp-name-limit"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the optional config file and resolves every bound key.
func loadConfig(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.TempNameLimit <= 0 {
		return Config{}, fmt.Errorf("temp-name-limit must be positive, got %d", cfg.TempNameLimit)
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Level parses LogLevel. Empty means warn.
func (c Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log-level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
