package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for the bot.
type Config struct {
	TelegramBotToken string
	TelegramAPIURL   string

	LLMProvider    string // openai or anthropic
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSecs int

	DBPath string

	DailyMessageLimit   int
	SessionTimeoutHours int
	SummaryEveryN       int
	HistoryLimit        int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/psybot).
func Load() Config {
	return Config{
		TelegramBotToken: viper.GetString("telegram_bot_token"),
		TelegramAPIURL:   viper.GetString("telegram_api_url"),

		LLMProvider:    viper.GetString("llm_provider"),
		LLMAPIKey:      viper.GetString("llm_api_key"),
		LLMModel:       viper.GetString("llm_model"),
		LLMBaseURL:     viper.GetString("llm_base_url"),
		LLMMaxTokens:   viper.GetInt("llm_max_tokens"),
		LLMTemperature: viper.GetFloat64("llm_temperature"),
		LLMTimeoutSecs: viper.GetInt("llm_timeout"),

		DBPath: viper.GetString("db_path"),

		DailyMessageLimit:   viper.GetInt("daily_message_limit"),
		SessionTimeoutHours: viper.GetInt("session_timeout_hours"),
		SummaryEveryN:       viper.GetInt("summary_every_n_messages"),
		HistoryLimit:        viper.GetInt("history_limit"),

		LogLevel:  viper.GetString("log_level"),
		LogFormat: viper.GetString("log_format"),
	}
}

// Validate returns the list of missing or invalid required settings.
// An empty list means the configuration is usable.
func (c Config) Validate() []string {
	var missing []string
	if c.TelegramBotToken == "" {
		missing = append(missing, "telegram_bot_token")
	}
	if c.LLMAPIKey == "" {
		missing = append(missing, "llm_api_key")
	}
	switch c.LLMProvider {
	case "openai", "anthropic":
	default:
		missing = append(missing, fmt.Sprintf("llm_provider (unknown %q, want openai or anthropic)", c.LLMProvider))
	}
	if c.DailyMessageLimit < 1 {
		missing = append(missing, "daily_message_limit (must be >= 1)")
	}
	if c.SessionTimeoutHours < 1 {
		missing = append(missing, "session_timeout_hours (must be >= 1)")
	}
	if c.SummaryEveryN < 1 {
		missing = append(missing, "summary_every_n_messages (must be >= 1)")
	}
	return missing
}
