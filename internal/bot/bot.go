// Package bot wires updates from Telegram through quota, risk, and memory
// into provider calls and replies.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgaifullin/psybot/internal/config"
	"github.com/dgaifullin/psybot/internal/db"
	"github.com/dgaifullin/psybot/internal/i18n"
	"github.com/dgaifullin/psybot/internal/llm"
	"github.com/dgaifullin/psybot/internal/memory"
	"github.com/dgaifullin/psybot/internal/prompts"
	"github.com/dgaifullin/psybot/internal/quota"
	"github.com/dgaifullin/psybot/internal/risk"
	"github.com/dgaifullin/psybot/internal/telegram"
)

// Sender is the outbound half of the Telegram client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard any) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	AnswerCallbackQuery(ctx context.Context, id, text string) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

// Poller is the inbound half, satisfied by *telegram.Client.
type Poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
}

// Bot is the conversation orchestrator.
type Bot struct {
	cfg      config.Config
	store    *db.DB
	sender   Sender
	chat     llm.Client
	detector *risk.Detector
	quota    *quota.Tracker
	memory   *memory.Manager
	worker   *memory.Worker
	set      *prompts.Set
	logger   *slog.Logger
}

func New(cfg config.Config, store *db.DB, sender Sender, chat llm.Client, detector *risk.Detector, tracker *quota.Tracker, mem *memory.Manager, worker *memory.Worker, set *prompts.Set, logger *slog.Logger) *Bot {
	return &Bot{
		cfg:      cfg,
		store:    store,
		sender:   sender,
		chat:     chat,
		detector: detector,
		quota:    tracker,
		memory:   mem,
		worker:   worker,
		set:      set,
		logger:   logger,
	}
}

// Run long-polls for updates until ctx is canceled. Poll failures back
// off briefly instead of spinning; timeout errors are the idle path.
func (b *Bot) Run(ctx context.Context, poller Poller) error {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, next, err := poller.GetUpdates(ctx, offset, 30*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !telegram.IsPollTimeout(err) {
				b.logger.Error("poll updates", "error", err)
				select {
				case <-time.After(3 * time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		offset = next

		for _, u := range updates {
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate dispatches one update. It never returns an error: every
// failure is handled by replying with a localized error message or, at
// worst, a log line.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleIncoming(ctx, u.Message)
	}
}

func (b *Bot) handleIncoming(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	cmd, isCommand := b.asCommand(text)

	// Only /start registers. Everyone else must already exist.
	var user *db.User
	var err error
	if isCommand && cmd == "start" {
		user, err = b.upsertUser(msg)
	} else {
		user, err = b.store.GetUserByTelegramID(msg.From.ID)
	}
	if err != nil {
		b.logger.Error("resolve user", "error", err, "telegram_user_id", msg.From.ID)
		b.send(ctx, msg.Chat.ID, i18n.T(normalizeLang(msg.From.LanguageCode), "generic_error"), nil)
		return
	}
	if user == nil {
		b.send(ctx, msg.Chat.ID, i18n.T(normalizeLang(msg.From.LanguageCode), "use_start_first"), nil)
		return
	}
	if user.IsBlocked {
		b.logger.Info("ignoring blocked user", "user_id", user.ID)
		return
	}

	if isCommand {
		b.handleCommand(ctx, user, msg.Chat.ID, cmd)
		return
	}
	b.handleChat(ctx, user, msg.Chat.ID, text)
}

func (b *Bot) upsertUser(msg *telegram.Message) (*db.User, error) {
	var username, first, last *string
	if v := msg.From.Username; v != "" {
		username = &v
	}
	if v := msg.From.FirstName; v != "" {
		first = &v
	}
	if v := msg.From.LastName; v != "" {
		last = &v
	}
	return b.store.UpsertUser(msg.From.ID, msg.Chat.ID, username, first, last, normalizeLang(msg.From.LanguageCode))
}

// normalizeLang maps Telegram language codes onto catalog languages.
// Telegram reports Kazakh as "kk".
func normalizeLang(code string) string {
	switch strings.ToLower(code) {
	case "kk", "kz":
		return "kz"
	case "en":
		return "en"
	default:
		return "ru"
	}
}

func (b *Bot) sessionTimeout() time.Duration {
	return time.Duration(b.cfg.SessionTimeoutHours) * time.Hour
}

// enqueueMemoryJobs schedules summary and fact extraction for a session,
// either at the running threshold or when it archives.
func (b *Bot) enqueueMemoryJobs(userID, sessionID string) {
	b.worker.Enqueue(memory.Job{Kind: memory.JobSummarize, UserID: userID, SessionID: sessionID})
	b.worker.Enqueue(memory.Job{Kind: memory.JobExtractFacts, UserID: userID, SessionID: sessionID})
}
