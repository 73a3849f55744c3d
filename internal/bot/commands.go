package bot

import (
	"context"
	"strings"
	"time"

	"github.com/dgaifullin/psybot/internal/db"
	"github.com/dgaifullin/psybot/internal/i18n"
	"github.com/dgaifullin/psybot/internal/telegram"
)

// asCommand resolves slash commands and reply-keyboard button labels to a
// canonical command name. Button labels are checked across all languages
// because the keyboard may lag behind a language change.
func (b *Bot) asCommand(text string) (string, bool) {
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		// Commands in groups arrive as /cmd@botname.
		if i := strings.IndexByte(cmd, '@'); i > 0 {
			cmd = cmd[:i]
		}
		return strings.TrimPrefix(cmd, "/"), true
	}
	for _, l := range i18n.Languages() {
		switch text {
		case i18n.T(l, "btn_new_session"):
			return "newsession", true
		case i18n.T(l, "btn_settings"):
			return "settings", true
		case i18n.T(l, "btn_stats"):
			return "stats", true
		case i18n.T(l, "btn_help"):
			return "help", true
		}
	}
	return "", false
}

func (b *Bot) handleCommand(ctx context.Context, user *db.User, chatID int64, cmd string) {
	switch cmd {
	case "start":
		b.cmdStart(ctx, user, chatID)
	case "help":
		b.send(ctx, chatID, i18n.Tf(user.Language, "help", b.cfg.DailyMessageLimit), b.replyKeyboard(user.Language))
	case "newsession":
		b.cmdNewSession(ctx, user, chatID)
	case "settings":
		b.cmdSettings(ctx, user, chatID)
	case "stats":
		b.cmdStats(ctx, user, chatID)
	case "language":
		b.cmdLanguage(ctx, user, chatID)
	default:
		// Unknown commands go through the conversation path untouched.
		b.handleChat(ctx, user, chatID, "/"+cmd)
	}
}

func (b *Bot) cmdStart(ctx context.Context, user *db.User, chatID int64) {
	if _, err := b.store.EnsureUsageLimit(user.ID, b.cfg.DailyMessageLimit); err != nil {
		b.logger.Error("ensure usage limit", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}
	if _, _, err := b.store.FindOrCreateActiveSession(ctx, user.ID, b.sessionTimeout()); err != nil {
		b.logger.Error("create session", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}

	name := ""
	if user.FirstName != nil {
		name = *user.FirstName
	}
	b.send(ctx, chatID, i18n.Tf(user.Language, "welcome", name), b.replyKeyboard(user.Language))
	b.logger.Info("user started", "user_id", user.ID)
}

func (b *Bot) cmdNewSession(ctx context.Context, user *db.User, chatID int64) {
	current, err := b.store.ActiveSession(user.ID)
	if err != nil {
		b.logger.Error("load active session", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}
	if current != nil {
		if err := b.store.ArchiveSession(current.ID); err != nil {
			b.logger.Error("archive session", "error", err, "session_id", current.ID)
			b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
			return
		}
		b.enqueueMemoryJobs(user.ID, current.ID)
	}
	if _, err := b.store.CreateSession(user.ID); err != nil {
		b.logger.Error("create session", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}
	b.send(ctx, chatID, i18n.T(user.Language, "new_session"), b.replyKeyboard(user.Language))
	b.logger.Info("session reset", "user_id", user.ID)
}

func (b *Bot) cmdSettings(ctx context.Context, user *db.User, chatID int64) {
	lang := user.Language
	onOff := func(v bool, yes, no string) string {
		if v {
			return i18n.T(lang, yes)
		}
		return i18n.T(lang, no)
	}
	text := i18n.Tf(lang, "settings",
		user.PreferredStyle,
		user.ResponseLength,
		onOff(user.AllowMemory, "on", "off"),
		onOff(user.AllowSensitiveTopics, "allowed", "forbidden"),
	)
	b.send(ctx, chatID, text, b.replyKeyboard(lang))
}

func (b *Bot) cmdStats(ctx context.Context, user *db.User, chatID int64) {
	used, limit, err := b.quota.Status(user.ID)
	if err != nil {
		b.logger.Error("load usage", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}
	text := i18n.Tf(user.Language, "stats", used, limit, limit-used)

	if session, err := b.store.ActiveSession(user.ID); err == nil && session != nil {
		if started, perr := time.Parse(time.RFC3339, session.StartedAt); perr == nil {
			text += "\n" + i18n.Tf(user.Language, "stats_session", started.Format("02.01.2006 15:04"))
		}
	}
	b.send(ctx, chatID, text, b.replyKeyboard(user.Language))
}

func (b *Bot) cmdLanguage(ctx context.Context, user *db.User, chatID int64) {
	kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: "🇷🇺 Русский", CallbackData: "lang:ru"}},
		{{Text: "🇰🇿 Қазақша", CallbackData: "lang:kz"}},
		{{Text: "🇬🇧 English", CallbackData: "lang:en"}},
	}}
	b.send(ctx, chatID, i18n.T(user.Language, "language_prompt"), kb)
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if err := b.sender.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		b.logger.Warn("answer callback", "error", err)
	}
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}

	lang, ok := strings.CutPrefix(cb.Data, "lang:")
	if !ok {
		return
	}
	if !i18n.Supported(lang) {
		lang = i18n.DefaultLanguage
	}

	user, err := b.store.GetUserByTelegramID(cb.From.ID)
	if err != nil || user == nil {
		b.editOrLog(ctx, cb, i18n.T(i18n.DefaultLanguage, "use_start_first"))
		return
	}
	if err := b.store.SetUserLanguage(user.ID, lang); err != nil {
		b.logger.Error("set language", "error", err, "user_id", user.ID)
		b.editOrLog(ctx, cb, i18n.T(user.Language, "language_error"))
		return
	}

	b.editOrLog(ctx, cb, i18n.T(lang, "language_set"))
	// Refresh the reply keyboard in the new language.
	b.send(ctx, cb.Message.Chat.ID, "✓", b.replyKeyboard(lang))
	b.logger.Info("language changed", "user_id", user.ID, "language", lang)
}

func (b *Bot) editOrLog(ctx context.Context, cb *telegram.CallbackQuery, text string) {
	if err := b.sender.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, text); err != nil {
		b.logger.Warn("edit message", "error", err)
	}
}

func (b *Bot) replyKeyboard(lang string) *telegram.ReplyKeyboardMarkup {
	return &telegram.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]telegram.KeyboardButton{
			{{Text: i18n.T(lang, "btn_new_session")}, {Text: i18n.T(lang, "btn_settings")}},
			{{Text: i18n.T(lang, "btn_stats")}, {Text: i18n.T(lang, "btn_help")}},
		},
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, keyboard any) {
	if err := b.sender.SendMessage(ctx, chatID, text, keyboard); err != nil {
		b.logger.Error("send message", "error", err, "chat_id", chatID)
	}
}
