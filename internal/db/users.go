package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// User is one Telegram user with their settings. Users are never hard-deleted;
// is_blocked marks the end of the soft lifecycle.
type User struct {
	ID             string
	TelegramUserID int64
	TelegramChatID int64
	Username       *string
	FirstName      *string
	LastName       *string
	LanguageCode   string
	IsBlocked      bool

	PreferredStyle       string
	ResponseLength       string
	AllowMemory          bool
	AllowSensitiveTopics bool
	Language             string

	CreatedAt string
	UpdatedAt string
}

const userColumns = `id, telegram_user_id, telegram_chat_id, username, first_name, last_name, language_code, is_blocked, preferred_style, response_length, allow_memory, allow_sensitive_topics, language, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }, u *User) error {
	var blocked, allowMemory, allowSensitive int
	if err := scanner.Scan(&u.ID, &u.TelegramUserID, &u.TelegramChatID, &u.Username, &u.FirstName, &u.LastName, &u.LanguageCode, &blocked, &u.PreferredStyle, &u.ResponseLength, &allowMemory, &allowSensitive, &u.Language, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.IsBlocked = blocked == 1
	u.AllowMemory = allowMemory == 1
	u.AllowSensitiveTopics = allowSensitive == 1
	return nil
}

// UpsertUser creates a user on first contact or refreshes the Telegram
// profile fields of an existing one. Settings columns keep their values on
// conflict; a new row gets the defaults plus the Telegram language code.
func (d *DB) UpsertUser(telegramUserID, telegramChatID int64, username, firstName, lastName *string, languageCode string) (*User, error) {
	if languageCode == "" {
		languageCode = "ru"
	}
	now := nowRFC3339()
	_, err := d.conn.Exec(
		`INSERT INTO users (id, telegram_user_id, telegram_chat_id, username, first_name, last_name, language_code, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(telegram_user_id) DO UPDATE SET
			telegram_chat_id = excluded.telegram_chat_id,
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			updated_at = excluded.updated_at`,
		uuid.NewString(), telegramUserID, telegramChatID, username, firstName, lastName, languageCode, languageCode, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return d.GetUserByTelegramID(telegramUserID)
}

// GetUserByTelegramID returns the user with the given Telegram user ID,
// or nil if none exists.
func (d *DB) GetUserByTelegramID(telegramUserID int64) (*User, error) {
	u := &User{}
	row := d.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE telegram_user_id = ?`, telegramUserID)
	if err := scanUser(row, u); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get user by telegram id %d: %w", telegramUserID, err)
	}
	return u, nil
}

// GetUser returns the user with the given internal ID, or nil if none exists.
func (d *DB) GetUser(id string) (*User, error) {
	u := &User{}
	row := d.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err := scanUser(row, u); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// SetUserLanguage persists the user's chosen reply language.
func (d *DB) SetUserLanguage(id, lang string) error {
	_, err := d.conn.Exec(
		`UPDATE users SET language = ?, updated_at = ? WHERE id = ?`, lang, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("set user language %s: %w", id, err)
	}
	return nil
}

// SetUserBlocked flips the soft-delete flag.
func (d *DB) SetUserBlocked(id string, blocked bool) error {
	_, err := d.conn.Exec(
		`UPDATE users SET is_blocked = ?, updated_at = ? WHERE id = ?`, boolToInt(blocked), nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("set user blocked %s: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
