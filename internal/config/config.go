package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once at
// startup and not modified afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Poll      PollConfig      `yaml:"poll" mapstructure:"poll"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	Secret              string   `yaml:"secret" mapstructure:"secret"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	OnlyMainContent   bool    `yaml:"only_main_content" mapstructure:"only_main_content"`
}

// PollConfig configures the job status loop.
type PollConfig struct {
	IntervalMS  int `yaml:"interval_ms" mapstructure:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// MetricsConfig configures the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Environment names kept from earlier deployments. They are read as-is,
// without the RELAY_ prefix.
var legacyEnv = map[string]string{
	"server.port":       "PORT",
	"server.secret":     "SCRAPER_SECRET",
	"firecrawl.key":     "FIRECRAWL_API_KEY",
	"poll.interval_ms":  "POLL_INTERVAL_MS",
	"poll.max_attempts": "POLL_MAX_ATTEMPTS",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "RELAY_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrap(err, "config: bind env "+env)
		}
	}

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.secret", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout_secs", 45)
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("firecrawl.timeout_secs", 60)
	v.SetDefault("firecrawl.requests_per_second", 0)
	v.SetDefault("firecrawl.only_main_content", true)
	v.SetDefault("poll.interval_ms", 2000)
	v.SetDefault("poll.max_attempts", 20)
	v.SetDefault("metrics.addr", "")
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate ensures the configuration values are usable. A missing Firecrawl
// key is allowed here; scrape requests report it instead.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Poll.IntervalMS < 0 {
		return eris.Errorf("config: poll.interval_ms cannot be negative")
	}
	if c.Poll.MaxAttempts <= 0 {
		return eris.Errorf("config: poll.max_attempts must be positive")
	}
	if c.Firecrawl.TimeoutSecs <= 0 {
		return eris.Errorf("config: firecrawl.timeout_secs must be positive")
	}
	if c.Firecrawl.RequestsPerSecond < 0 {
		return eris.Errorf("config: firecrawl.requests_per_second cannot be negative")
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
