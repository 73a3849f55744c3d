package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgaifullin/psybot/internal/config"
	"github.com/dgaifullin/psybot/internal/db"
	"github.com/dgaifullin/psybot/internal/prompts"
)

// checkCmd verifies configuration, embedded assets, and the database
// without touching Telegram or the LLM provider, so a fresh deployment
// can be validated before the first run.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and embedded assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			fmt.Println("psybot configuration check")
			fmt.Println()

			missing := cfg.Validate()
			if len(missing) > 0 {
				fmt.Println("❌ configuration incomplete, missing:")
				for _, item := range missing {
					fmt.Printf("  - %s\n", item)
				}
				fmt.Println()
				fmt.Println("set the values via PSYBOT_* environment variables or flags")
				return fmt.Errorf("%d settings missing", len(missing))
			}

			fmt.Println("✅ configuration valid")
			fmt.Printf("  provider:      %s\n", cfg.LLMProvider)
			fmt.Printf("  model:         %s\n", cfg.LLMModel)
			fmt.Printf("  bot token:     %s\n", mask(cfg.TelegramBotToken))
			fmt.Printf("  api key:       %s\n", mask(cfg.LLMAPIKey))
			fmt.Printf("  database:      %s\n", cfg.DBPath)
			fmt.Printf("  daily limit:   %d messages\n", cfg.DailyMessageLimit)
			fmt.Printf("  session idle:  %dh\n", cfg.SessionTimeoutHours)
			fmt.Println()

			if _, err := prompts.Load(); err != nil {
				fmt.Println("❌ prompt templates broken:", err)
				return err
			}
			fmt.Println("✅ prompt templates embedded")

			store, err := db.Open(cfg.DBPath)
			if err != nil {
				fmt.Println("❌ database:", err)
				return err
			}
			_ = store.Close()
			fmt.Println("✅ database opens and migrates")
			return nil
		},
	}
}

func mask(secret string) string {
	if len(secret) <= 5 {
		return "**********"
	}
	return "**********" + secret[len(secret)-5:]
}
