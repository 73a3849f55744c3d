package bot

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dgaifullin/psybot/internal/db"
	"github.com/dgaifullin/psybot/internal/i18n"
	"github.com/dgaifullin/psybot/internal/llm"
	"github.com/dgaifullin/psybot/internal/markdown"
)

// handleChat is the conversation path. Order matters: quota is consumed
// before any provider call so refused messages cost nothing, and the user
// message is persisted before the provider call so a failure never loses
// what the user wrote.
func (b *Bot) handleChat(ctx context.Context, user *db.User, chatID int64, text string) {
	session, archived, err := b.store.FindOrCreateActiveSession(ctx, user.ID, b.sessionTimeout())
	if err != nil {
		b.logger.Error("resolve session", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}
	if archived != nil {
		b.enqueueMemoryJobs(user.ID, archived.ID)
	}

	allowed, remaining, err := b.quota.Allow(ctx, user.ID)
	if err != nil {
		b.logger.Error("check quota", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}
	if !allowed {
		b.send(ctx, chatID, i18n.Tf(user.Language, "quota_exceeded", b.cfg.DailyMessageLimit), nil)
		return
	}

	userMsg, err := b.store.InsertMessage(session.ID, user.ID, db.RoleUser, text, "")
	if err != nil {
		b.logger.Error("persist user message", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "generic_error"), nil)
		return
	}

	if err := b.sender.SendChatAction(ctx, chatID, "typing"); err != nil {
		b.logger.Debug("chat action", "error", err)
	}

	callCtx := llm.WithMeta(ctx, llm.CallMeta{
		UserID:    user.ID,
		SessionID: session.ID,
		MessageID: userMsg.ID,
	})

	assessment := b.detector.Assess(callCtx, user.ID, session.ID, userMsg.ID, text)
	crisis := assessment.Escalates()
	if !crisis {
		latched, err := b.detector.CrisisActive(session.ID)
		if err != nil {
			b.logger.Error("crisis gate", "error", err, "session_id", session.ID)
		}
		crisis = latched
	}
	if crisis {
		b.logger.Warn("crisis mode active",
			"user_id", user.ID, "session_id", session.ID,
			"risk", assessment.Risk, "category", assessment.Category)
	}

	reply, err := b.complete(callCtx, user, session.ID, crisis)
	if err != nil {
		b.logger.Error("provider call failed", "error", err, "user_id", user.ID)
		b.send(ctx, chatID, i18n.T(user.Language, "provider_error"), nil)
		return
	}

	if _, err := b.store.InsertMessage(session.ID, user.ID, db.RoleAssistant, reply, ""); err != nil {
		b.logger.Error("persist assistant message", "error", err, "session_id", session.ID)
	}
	if err := b.store.TouchSession(session.ID); err != nil {
		b.logger.Error("touch session", "error", err, "session_id", session.ID)
	}

	b.send(ctx, chatID, markdown.ToTelegramHTML(reply), nil)

	if remaining <= 3 {
		b.logger.Info("quota nearly exhausted", "user_id", user.ID, "remaining", remaining)
	}

	// Every N messages the running summary and the facts profile both
	// refresh, so long sessions feed memory before they archive.
	if ok, err := b.memory.ShouldSummarize(session.ID); err != nil {
		b.logger.Error("summary check", "error", err, "session_id", session.ID)
	} else if ok {
		b.enqueueMemoryJobs(user.ID, session.ID)
	}
}

// complete builds the prompt and asks the provider for the reply, retrying
// once on transient failures.
func (b *Bot) complete(ctx context.Context, user *db.User, sessionID string, crisis bool) (string, error) {
	var summary, factsJSON string
	if !crisis && user.AllowMemory {
		var err error
		summary, factsJSON, err = b.memory.Context(user.ID)
		if err != nil {
			// Memory is additive; a broken memory read degrades to none.
			b.logger.Error("memory context", "error", err, "user_id", user.ID)
		}
	}
	system := b.set.BuildSystemPrompt(user, crisis, summary, factsJSON)

	history, err := b.store.RecentSessionMessages(sessionID, b.cfg.HistoryLimit)
	if err != nil {
		return "", err
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	for _, m := range history {
		if m.Role != db.RoleUser && m.Role != db.RoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	req := llm.Request{
		Model:       b.cfg.LLMModel,
		Messages:    messages,
		MaxTokens:   b.cfg.LLMMaxTokens,
		Temperature: b.cfg.LLMTemperature,
	}

	var text string
	backoff := retry.WithMaxRetries(1, retry.NewConstant(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := b.chat.Chat(ctx, req)
		if err != nil {
			return retry.RetryableError(err)
		}
		text = res.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
