package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// #region config

// Config is the process-wide configuration for a synctl run: where the
// situation graph lives, how often the host driver's three timers fire,
// and where provenance gets logged. Field names match the viper keys
// one-to-one (lower-cased, underscored) so environment overrides via
// SetEnvPrefix/AutomaticEnv need no explicit binding per field.
type Config struct {
	GraphPath   string        `mapstructure:"graph_path"`
	Verbose     bool          `mapstructure:"verbose"`
	DBPath      string        `mapstructure:"db_path"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	EGTimeout   time.Duration `mapstructure:"eg_timeout"`
	SETimeout   time.Duration `mapstructure:"se_timeout"`
	SCTimeout   time.Duration `mapstructure:"sc_timeout"`
	WatchGraph  bool          `mapstructure:"watch_graph"`
}

// Default returns the built-in defaults, matching the original host
// driver's EG_TIMEOUT/SE_TIMEOUT/SC_TIMEOUT constants (§4.7).
func Default() Config {
	return Config{
		GraphPath:   "graph.json",
		Verbose:     false,
		DBPath:      "sitosync.db",
		MetricsAddr: ":9108",
		EGTimeout:   500 * time.Millisecond,
		SETimeout:   3 * time.Second,
		SCTimeout:   500 * time.Millisecond,
		WatchGraph:  false,
	}
}

// Load reads layered configuration: built-in defaults, then an optional
// file at configPath (if non-empty) or discovered via viper's search
// path, then SITOSYNC_-prefixed environment variables, in increasing
// precedence.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetDefault("graph_path", cfg.GraphPath)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("eg_timeout", cfg.EGTimeout)
	v.SetDefault("se_timeout", cfg.SETimeout)
	v.SetDefault("sc_timeout", cfg.SCTimeout)
	v.SetDefault("watch_graph", cfg.WatchGraph)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".synctl")
	}

	v.SetEnvPrefix("SITOSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// #endregion config
