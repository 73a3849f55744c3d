package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgaifullin/psybot/internal/bot"
	"github.com/dgaifullin/psybot/internal/config"
	"github.com/dgaifullin/psybot/internal/db"
	"github.com/dgaifullin/psybot/internal/llm"
	"github.com/dgaifullin/psybot/internal/llm/anthropic"
	"github.com/dgaifullin/psybot/internal/llm/openai"
	"github.com/dgaifullin/psybot/internal/logutil"
	"github.com/dgaifullin/psybot/internal/memory"
	"github.com/dgaifullin/psybot/internal/prompts"
	"github.com/dgaifullin/psybot/internal/quota"
	"github.com/dgaifullin/psybot/internal/risk"
	"github.com/dgaifullin/psybot/internal/telegram"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "psybot",
		Short: "Telegram CBT support bot",
		RunE:  run,
	}

	f := rootCmd.PersistentFlags()
	f.String("telegram-bot-token", "", "Telegram bot API token")
	f.String("telegram-api-url", telegram.DefaultBaseURL, "Telegram Bot API base URL")
	f.String("llm-provider", "openai", "LLM provider (openai or anthropic)")
	f.String("llm-api-key", "", "LLM provider API key")
	f.String("llm-model", "gpt-4o-mini", "model for replies, classification, and summaries")
	f.String("llm-base-url", "", "override the provider base URL")
	f.Int("llm-max-tokens", 1000, "max completion tokens per reply")
	f.Float64("llm-temperature", 0.7, "sampling temperature for replies")
	f.Int("llm-timeout", 90, "provider request timeout in seconds")
	f.String("db-path", "psybot.db", "path to the SQLite database file")
	f.Int("daily-message-limit", 20, "messages per user per day")
	f.Int("session-timeout-hours", 24, "hours of silence before a session archives")
	f.Int("summary-every-n-messages", 10, "messages between running summaries")
	f.Int("history-limit", 20, "conversation turns sent to the model")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text or json)")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("telegram_bot_token", "telegram-bot-token")
	bindFlag("telegram_api_url", "telegram-api-url")
	bindFlag("llm_provider", "llm-provider")
	bindFlag("llm_api_key", "llm-api-key")
	bindFlag("llm_model", "llm-model")
	bindFlag("llm_base_url", "llm-base-url")
	bindFlag("llm_max_tokens", "llm-max-tokens")
	bindFlag("llm_temperature", "llm-temperature")
	bindFlag("llm_timeout", "llm-timeout")
	bindFlag("db_path", "db-path")
	bindFlag("daily_message_limit", "daily-message-limit")
	bindFlag("session_timeout_hours", "session-timeout-hours")
	bindFlag("summary_every_n_messages", "summary-every-n-messages")
	bindFlag("history_limit", "history-limit")
	bindFlag("log_level", "log-level")
	bindFlag("log_format", "log-format")

	// PSYBOT_TELEGRAM_BOT_TOKEN -> telegram_bot_token and so on.
	viper.SetEnvPrefix("PSYBOT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if missing := cfg.Validate(); len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s (run `psybot check` for details)", strings.Join(missing, ", "))
	}

	logger, err := logutil.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logger.Info("psybot starting",
		"version", config.Version,
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"db", cfg.DBPath,
		"daily_limit", cfg.DailyMessageLimit)

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close() //nolint:errcheck

	set, err := prompts.Load()
	if err != nil {
		return err
	}

	timeout := time.Duration(cfg.LLMTimeoutSecs) * time.Second
	var provider llm.Client
	switch cfg.LLMProvider {
	case "anthropic":
		provider = anthropic.New(cfg.LLMAPIKey, cfg.LLMBaseURL, timeout)
	default:
		provider = openai.New(cfg.LLMBaseURL, cfg.LLMAPIKey, timeout)
	}
	client := llm.NewInstrumented(provider, store, logger)

	tg := telegram.NewClient(&http.Client{Timeout: 60 * time.Second}, cfg.TelegramAPIURL, cfg.TelegramBotToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	logger.Info("connected to telegram", "bot", telegram.DisplayName(me), "username", me.Username, "id", me.ID)

	detector := risk.NewDetector(client, set, store, cfg.LLMModel, logger)
	tracker := quota.NewTracker(store, cfg.DailyMessageLimit)
	manager := memory.NewManager(store, client, set, cfg.LLMModel, cfg.SummaryEveryN, logger)
	worker := memory.NewWorker(manager, 64, logger)

	b := bot.New(cfg, store, tg, client, detector, tracker, manager, worker, set, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	go worker.Run(ctx)

	err = b.Run(ctx, tg)
	worker.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
