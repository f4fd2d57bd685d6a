package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = "adaudit"
	configType = "yaml"
	envPrefix  = "ADAUDIT"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	ScriptsAPIKey string        `mapstructure:"scripts_api_key"`
	Google        GoogleConfig  `mapstructure:"google"`
}

type GoogleConfig struct {
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	RedirectURL   string `mapstructure:"redirect_url"`
	AllowedDomain string `mapstructure:"allowed_domain"`
}

type LLMConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	MaxInputBytes int    `mapstructure:"max_input_bytes"`
}

// RulesConfig holds rule engine thresholds. Money values are micros of the account currency.
type RulesConfig struct {
	WastedSpendMicros int64   `mapstructure:"wasted_spend_micros"`
	MinQualityScore   int     `mapstructure:"min_quality_score"`
	MinImpressions    int64   `mapstructure:"min_impressions"`
	MinClicks         int64   `mapstructure:"min_clicks"`
	CPAMultiplier     float64 `mapstructure:"cpa_multiplier"`
	BidStep           float64 `mapstructure:"bid_step"`
	BudgetLostShare   float64 `mapstructure:"budget_lost_share"`
	BudgetStep        float64 `mapstructure:"budget_step"`
}

type WorkflowConfig struct {
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	ReaperInterval    time.Duration `mapstructure:"reaper_interval"`
}

type IngestConfig struct {
	RunTTL            time.Duration `mapstructure:"run_ttl"`
	AnalyzeOnComplete bool          `mapstructure:"analyze_on_complete"`
}

// Defaults returns the baseline values every key falls back to.
func Defaults() map[string]any {
	return map[string]any{
		"server.address":              ":8080",
		"server.allowed_origins":      []string{"http://localhost:5173"},
		"database.driver":             "postgres",
		"database.dsn":                "host=localhost user=postgres password=password dbname=adaudit port=5432 sslmode=disable",
		"log.level":                   "info",
		"log.format":                  "structured",
		"auth.session_ttl":            "24h",
		"auth.scripts_api_key":        "",
		"auth.google.client_id":       "",
		"auth.google.client_secret":   "",
		"auth.google.redirect_url":    "",
		"auth.google.allowed_domain":  "",
		"llm.api_key":                 "",
		"llm.model":                   "gemini-2.5-flash",
		"llm.max_input_bytes":         20000,
		"rules.wasted_spend_micros":   50000000,
		"rules.min_quality_score":     3,
		"rules.min_impressions":       100,
		"rules.min_clicks":            10,
		"rules.cpa_multiplier":        2.0,
		"rules.bid_step":              0.2,
		"rules.budget_lost_share":     0.2,
		"rules.budget_step":           0.2,
		"workflow.processing_timeout": "30m",
		"workflow.reaper_interval":    "1m",
		"ingest.run_ttl":              "6h",
		"ingest.analyze_on_complete":  true,
	}
}

// Load reads .env (if any), adaudit.yaml (if any) and ADAUDIT_* environment variables.
// configFile may be empty, in which case the search paths are used.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/adaudit")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || configFile != "" {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(c.Auth.ScriptsAPIKey) == "" {
		return errors.New("auth.scripts_api_key is required")
	}
	if c.Workflow.ProcessingTimeout <= 0 {
		return errors.New("workflow.processing_timeout must be positive")
	}
	return nil
}
