package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix of environment variables overriding settings,
	// e.g. FEEDMINER_PORT.
	EnvPrefix = "FEEDMINER"

	// EnvConfigDir is the legacy variable naming the side file directory.
	// FEEDMINER_CONFIG_DIR takes precedence over it.
	EnvConfigDir = "MM_CONFIG_DIR"
)

// Settings are the process-wide options of the standalone binary.
type Settings struct {
	Port           int
	PollInterval   time.Duration
	MaxConcurrency int
	ConfigDir      string
	Metrics        bool
	ControlToken   string
	LogLevel       slog.Level
}

// settingFlags maps CLI flag names to setting keys. control_token has no
// flag so it stays out of process listings.
var settingFlags = map[string]string{
	"port":            "port",
	"poll-interval":   "poll_interval",
	"max-concurrency": "max_concurrency",
	"config-dir":      "config_dir",
	"metrics":         "metrics",
	"log-level":       "log_level",
}

// BindFlags registers the setting flags on flags.
func BindFlags(flags *pflag.FlagSet) {
	flags.Int("port", defaultPort, "HTTP port of the API server")
	flags.String("poll-interval", defaultPollInterval.String(), "default polling interval (duration or seconds)")
	flags.Int("max-concurrency", defaultMaxConcurrency, "maximum number of queries in flight")
	flags.String("config-dir", "", "directory holding the nodes' side files (default: directory of the config file)")
	flags.Bool("metrics", false, "expose Prometheus metrics at /metrics")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// ResolveSettings layers the settings of cfg, loaded from configPath, with
// environment variables and changed flags.
// Priority: CLI flags > Environment variables > Config file > Defaults
func ResolveSettings(cfg *Config, configPath string, flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()

	v.SetDefault("port", defaultPort)
	v.SetDefault("poll_interval", defaultPollInterval.String())
	v.SetDefault("max_concurrency", defaultMaxConcurrency)
	v.SetDefault("config_dir", "")
	v.SetDefault("metrics", false)
	v.SetDefault("control_token", "")
	v.SetDefault("log_level", "info")

	if cfg != nil {
		if err := v.MergeConfigMap(map[string]any{
			"port":            cfg.Port,
			"poll_interval":   cfg.PollInterval.Duration().String(),
			"max_concurrency": cfg.MaxConcurrency,
			"config_dir":      cfg.ConfigDir,
			"metrics":         cfg.Metrics,
			"control_token":   cfg.ControlToken,
		}); err != nil {
			return Settings{}, fmt.Errorf("failed to merge config map: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if os.Getenv(EnvPrefix+"_CONFIG_DIR") == "" {
		if val := os.Getenv(EnvConfigDir); val != "" {
			v.Set("config_dir", val)
		}
	}

	if flags != nil {
		for flagName, key := range settingFlags {
			if flag := flags.Lookup(flagName); flag != nil && flag.Changed {
				v.Set(key, flag.Value.String())
			}
		}
	}

	s := Settings{
		Port:           v.GetInt("port"),
		MaxConcurrency: v.GetInt("max_concurrency"),
		ConfigDir:      v.GetString("config_dir"),
		Metrics:        v.GetBool("metrics"),
		ControlToken:   v.GetString("control_token"),
	}

	interval, err := ParseDuration(v.GetString("poll_interval"))
	if err != nil {
		return Settings{}, fmt.Errorf("poll_interval: %w", err)
	}
	s.PollInterval = interval

	if err := s.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return Settings{}, fmt.Errorf("log_level: %w", err)
	}

	if s.ConfigDir == "" {
		s.ConfigDir = "."
		if configPath != "" {
			abs, err := filepath.Abs(configPath)
			if err != nil {
				return Settings{}, fmt.Errorf("failed to get absolute path for %q: %w", configPath, err)
			}
			s.ConfigDir = filepath.Dir(abs)
		}
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	errs := &ValidationErrors{}
	if s.Port < 1 || s.Port > 65535 {
		errs.Add("port", fmt.Sprintf("must be between 1 and 65535, got %d", s.Port))
	}
	if s.PollInterval < minPollInterval {
		errs.Add("poll_interval", fmt.Sprintf("must be at least %s, got %s", minPollInterval, s.PollInterval))
	}
	if s.MaxConcurrency < 1 {
		errs.Add("max_concurrency", fmt.Sprintf("must be at least 1, got %d", s.MaxConcurrency))
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
