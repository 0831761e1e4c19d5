package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gmv-tracker/internal/model"
	"github.com/sells-group/gmv-tracker/internal/reconcile"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Insight   InsightConfig   `yaml:"insight" mapstructure:"insight"`
	Fees      FeesConfig      `yaml:"fees" mapstructure:"fees"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig configures the Notion sync target.
type NotionConfig struct {
	Token         string  `yaml:"token" mapstructure:"token"`
	DatabaseID    string  `yaml:"database_id" mapstructure:"database_id"`
	TitleProperty string  `yaml:"title_property" mapstructure:"title_property"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// AnthropicConfig configures the Anthropic insight provider.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// InsightConfig tunes the analyzer fan-out.
type InsightConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	TrendWeeks  int `yaml:"trend_weeks" mapstructure:"trend_weeks"`
}

// FeesConfig holds the default fee schedule. When File is set, the schedule
// is read from that YAML file instead.
type FeesConfig struct {
	model.FeeSchedule `yaml:",inline" mapstructure:",squash"`
	File              string `yaml:"file" mapstructure:"file"`
}

// ReportConfig configures report building and output.
type ReportConfig struct {
	TopN      int    `yaml:"top_n" mapstructure:"top_n"`
	Policy    string `yaml:"policy" mapstructure:"policy"`
	SlidesDir string `yaml:"slides_dir" mapstructure:"slides_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// FetchConfig configures remote source downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
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
	v.SetEnvPrefix("GMV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gmv.db")
	v.SetDefault("notion.title_property", "Week")
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("notion.concurrency", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("insight.concurrency", 4)
	v.SetDefault("insight.trend_weeks", 8)
	v.SetDefault("fees.commission_rate", 0.0)
	v.SetDefault("fees.transaction_rate", 0.0)
	v.SetDefault("fees.payment_rate", 0.0)
	v.SetDefault("fees.target_margin", 0.0)
	v.SetDefault("fees.file", "")
	v.SetDefault("report.top_n", 10)
	v.SetDefault("report.policy", string(reconcile.PolicyFirstWins))
	v.SetDefault("report.slides_dir", "slides")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("fetch.user_agent", "gmv-tracker/1.0")

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

	if cfg.Fees.File != "" {
		fees, err := LoadFeeFile(cfg.Fees.File)
		if err != nil {
			return nil, err
		}
		cfg.Fees.FeeSchedule = *fees
	}

	return &cfg, nil
}

// LoadFeeFile reads a standalone YAML fee schedule:
//
//	commission_rate: 0.05
//	transaction_rate: 0.01
//	payment_rate: 0.02
//	target_margin: 0.15
func LoadFeeFile(path string) (*model.FeeSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read fee file %s", path)
	}
	var fees model.FeeSchedule
	if err := yaml.Unmarshal(data, &fees); err != nil {
		return nil, eris.Wrapf(err, "config: parse fee file %s", path)
	}
	if err := fees.Validate(); err != nil {
		return nil, eris.Wrapf(err, "config: fee file %s", path)
	}
	return &fees, nil
}

// Validate checks that the keys a command needs are present. Mode is one of
// import, report, notion, analyze, serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}
	checkNotion := func() {
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.DatabaseID == "" {
			errs = append(errs, "notion.database_id is required")
		}
	}
	checkAnthropic := func() {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Insight.Concurrency < 1 || c.Insight.Concurrency > 16 {
			errs = append(errs, "insight.concurrency must be between 1 and 16")
		}
	}
	checkReport := func() {
		if err := c.Fees.Validate(); err != nil {
			errs = append(errs, "fees: "+strings.TrimPrefix(err.Error(), "model: "))
		}
		if _, err := reconcile.ParsePolicy(c.Report.Policy); err != nil {
			errs = append(errs, "report.policy must be first-wins or reject")
		}
		if c.Report.TopN < 1 {
			errs = append(errs, "report.top_n must be > 0")
		}
	}

	switch mode {
	case "report":
		checkStore()
	case "import":
		checkStore()
		checkReport()
	case "notion":
		checkStore()
		checkNotion()
	case "analyze":
		checkStore()
		checkAnthropic()
	case "serve":
		checkStore()
		checkReport()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
