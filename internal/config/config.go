package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	AssistantBaseURL   string `mapstructure:"ASSISTANT_BASE_URL"`
	AssistantModel     string `mapstructure:"ASSISTANT_MODEL"`
	AssistantAPIKey    string `mapstructure:"ASSISTANT_API_KEY"`
	AssistantMaxTokens int    `mapstructure:"ASSISTANT_MAX_TOKENS"`

	STTURL     string        `mapstructure:"STT_URL"`
	STTTimeout time.Duration `mapstructure:"STT_TIMEOUT"`

	GeocodeURL    string `mapstructure:"GEOCODE_URL"`
	GeocodeRegion string `mapstructure:"GEOCODE_REGION"`

	QueueInterval    time.Duration `mapstructure:"QUEUE_INTERVAL"`
	EscalationDelta  int           `mapstructure:"ESCALATION_DELTA"`
	PatternThreshold int           `mapstructure:"PATTERN_THRESHOLD"`
	HistoryLimit     int           `mapstructure:"HISTORY_LIMIT"`
	QueuePolicy      string        `mapstructure:"QUEUE_POLICY"`
	AutoArchiveAfter time.Duration `mapstructure:"AUTO_ARCHIVE_AFTER"`
	SuppressPerWord  time.Duration `mapstructure:"SUPPRESS_PER_WORD"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("ASSISTANT_BASE_URL", "")
	v.SetDefault("ASSISTANT_MODEL", "")
	v.SetDefault("ASSISTANT_API_KEY", "")
	v.SetDefault("ASSISTANT_MAX_TOKENS", 80)
	v.SetDefault("STT_URL", "")
	v.SetDefault("STT_TIMEOUT", "15s")
	v.SetDefault("GEOCODE_URL", "")
	v.SetDefault("GEOCODE_REGION", "")
	v.SetDefault("QUEUE_INTERVAL", "2s")
	v.SetDefault("ESCALATION_DELTA", 10)
	v.SetDefault("PATTERN_THRESHOLD", 3)
	v.SetDefault("HISTORY_LIMIT", 500)
	v.SetDefault("QUEUE_POLICY", "immediate")
	v.SetDefault("AUTO_ARCHIVE_AFTER", "10m")
	v.SetDefault("SUPPRESS_PER_WORD", "350ms")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.QueuePolicy = strings.ToLower(strings.TrimSpace(cfg.QueuePolicy))
	switch cfg.QueuePolicy {
	case "immediate", "sufficient_info":
	default:
		return Config{}, fmt.Errorf("QUEUE_POLICY: unknown policy %q (want immediate or sufficient_info)", cfg.QueuePolicy)
	}
	return cfg, nil
}
