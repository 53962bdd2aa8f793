package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Agents  AgentsConfig  `yaml:"agents" mapstructure:"agents"`
	Resolve ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	EDGAR   EDGARConfig   `yaml:"edgar" mapstructure:"edgar"`
	Run     RunConfig     `yaml:"run" mapstructure:"run"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AgentsConfig locates the canonical agent reference table.
type AgentsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ResolveConfig holds the resolution thresholds. All three are tunable per
// deployment; the defaults match the documented policy.
type ResolveConfig struct {
	AcceptanceThreshold float64 `yaml:"acceptance_threshold" mapstructure:"acceptance_threshold"`
	AmbiguityMargin     float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
	NoiseFloor          float64 `yaml:"noise_floor" mapstructure:"noise_floor"`
}

// ExtractConfig configures mention extraction.
type ExtractConfig struct {
	ContextWindow int `yaml:"context_window" mapstructure:"context_window"`
}

// EDGARConfig configures the SEC EDGAR client. The SEC requires a descriptive
// User-Agent with a contact address and caps request rates at 10/sec.
type EDGARConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	CacheDir      string  `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// RunConfig configures pipeline execution.
type RunConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the review HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TATRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "ta-tracker.db")
	v.SetDefault("agents.path", "reference/agents.yaml")
	v.SetDefault("resolve.acceptance_threshold", 0.85)
	v.SetDefault("resolve.ambiguity_margin", 0.10)
	v.SetDefault("resolve.noise_floor", 0.50)
	v.SetDefault("extract.context_window", 120)
	v.SetDefault("edgar.base_url", "https://www.sec.gov")
	v.SetDefault("edgar.user_agent", "Sells Advisors blake@sellsadvisors.com")
	v.SetDefault("edgar.rate_per_second", 8)
	v.SetDefault("edgar.timeout_secs", 60)
	v.SetDefault("edgar.max_retries", 3)
	v.SetDefault("edgar.cache_dir", "")
	v.SetDefault("run.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency. The resolve
// thresholds must order correctly or the resolver's ambiguity logic degrades
// silently, so misconfiguration is fatal rather than warned about.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	r := c.Resolve
	if r.AcceptanceThreshold <= 0 || r.AcceptanceThreshold > 1 {
		problems = append(problems, "resolve.acceptance_threshold must be in (0, 1]")
	}
	if r.AmbiguityMargin < 0 || r.AmbiguityMargin > 1 {
		problems = append(problems, "resolve.ambiguity_margin must be in [0, 1]")
	}
	if r.NoiseFloor < 0 || r.NoiseFloor >= r.AcceptanceThreshold {
		problems = append(problems, "resolve.noise_floor must be >= 0 and below the acceptance threshold")
	}

	if c.Extract.ContextWindow < 0 {
		problems = append(problems, "extract.context_window must be >= 0")
	}
	if c.EDGAR.RatePerSecond <= 0 || c.EDGAR.RatePerSecond > 10 {
		problems = append(problems, "edgar.rate_per_second must be in (0, 10]")
	}
	if c.Run.Workers < 1 || c.Run.Workers > 32 {
		problems = append(problems, "run.workers must be between 1 and 32")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be a valid port")
	}

	if len(problems) > 0 {
		return eris.Errorf("config validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
