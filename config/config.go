// Package config loads process settings and leave rule tables.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML
// file, a .env file, and LEAVE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string // "json" or "console"

	FiscalYearStartMonth    int
	AllowNegativeOnApproval bool
	BatchConcurrency        int

	KafkaBrokers []string
	KafkaTopic   string

	CORSAllowedOrigins []string

	SchedulerEnabled   bool
	SchedulerInterval  time.Duration
	SchedulerCompanies []string

	Rules *RuleBook
}

// KafkaEnabled reports whether events should be published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// Load reads configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("LEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "leave.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("fiscal_year_start_month", 4)
	v.SetDefault("allow_negative_on_approval", false)
	v.SetDefault("batch_concurrency", 4)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "leave-events")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.companies", []string{})
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                    v.GetString("port"),
		DBPath:                  v.GetString("db_path"),
		LogLevel:                v.GetString("log_level"),
		LogFormat:               v.GetString("log_format"),
		FiscalYearStartMonth:    v.GetInt("fiscal_year_start_month"),
		AllowNegativeOnApproval: v.GetBool("allow_negative_on_approval"),
		BatchConcurrency:        v.GetInt("batch_concurrency"),
		KafkaBrokers:            splitList(v.GetStringSlice("kafka.brokers")),
		KafkaTopic:              v.GetString("kafka.topic"),
		CORSAllowedOrigins:      splitList(v.GetStringSlice("cors.allowed_origins")),
		SchedulerEnabled:        v.GetBool("scheduler.enabled"),
		SchedulerInterval:       v.GetDuration("scheduler.interval"),
		SchedulerCompanies:      splitList(v.GetStringSlice("scheduler.companies")),
	}

	if cfg.FiscalYearStartMonth < 1 || cfg.FiscalYearStartMonth > 12 {
		return nil, fmt.Errorf("fiscal_year_start_month must be 1-12, got %d", cfg.FiscalYearStartMonth)
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}

	rules, err := LoadRules(v)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	return cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
