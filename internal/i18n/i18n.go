// Package i18n holds the user-facing message catalog. Russian is the
// default and the fallback for missing translations.
package i18n

import "fmt"

// DefaultLanguage is used when the user never picked one.
const DefaultLanguage = "ru"

// Supported reports whether lang has a catalog.
func Supported(lang string) bool {
	_, ok := catalog[lang]
	return ok
}

// Languages lists the supported language codes in display order.
func Languages() []string {
	return []string{"ru", "kz", "en"}
}

// T returns the message for key in lang, falling back to Russian and
// then to the key itself so a missing entry is visible, not silent.
func T(lang, key string) string {
	if msgs, ok := catalog[lang]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msg, ok := catalog[DefaultLanguage][key]; ok {
		return msg
	}
	return key
}

// Tf is T with fmt.Sprintf formatting.
func Tf(lang, key string, args ...any) string {
	return fmt.Sprintf(T(lang, key), args...)
}

var catalog = map[string]map[string]string{
	"ru": {
		"welcome": "Привет, %s! 👋\n\n" +
			"Я бот поддержки, работающий в подходе КПТ (когнитивно-поведенческая терапия).\n\n" +
			"Я помогу тебе:\n" +
			"• Снизить тревогу и стресс\n" +
			"• Лучше понять свои эмоции и мысли\n" +
			"• Научиться замечать когнитивные искажения\n" +
			"• Выбирать более полезные действия\n\n" +
			"⚠️ Важно: я не врач и не психотерапевт. Я не ставлю диагнозы и не заменяю очную терапию.\n\n" +
			"Просто напиши мне, что тебя беспокоит.\n\n" +
			"Команды:\n/newsession — начать новую сессию\n/settings — настройки\n/stats — статистика\n/language — язык\n/help — помощь",
		"help": "📖 <b>Как пользоваться ботом</b>\n\n" +
			"Просто напиши, что тебя беспокоит, и я помогу разобраться.\n\n" +
			"<b>Команды:</b>\n" +
			"/start — начать работу с ботом\n" +
			"/newsession — архивировать текущую сессию и начать новую\n" +
			"/settings — текущие настройки\n" +
			"/stats — статистика использования\n" +
			"/language — сменить язык\n" +
			"/help — показать это сообщение\n\n" +
			"<b>Лимиты:</b>\nБесплатно: %d сообщений в день\n\n" +
			"<b>Важно помнить:</b>\n• Я не врач и не психотерапевт\n• Я не ставлю диагнозы\n• В экстренной ситуации обратитесь к специалистам",
		"new_session":      "✅ Новая сессия начата!\n\nПредыдущая сессия архивирована. Расскажи, что тебя беспокоит сейчас?",
		"settings":         "⚙️ <b>Текущие настройки:</b>\n\nСтиль общения: <code>%s</code>\nДлина ответов: <code>%s</code>\nПамять: <code>%s</code>\nЧувствительные темы: <code>%s</code>",
		"on":               "включена",
		"off":              "выключена",
		"allowed":          "разрешены",
		"forbidden":        "запрещены",
		"stats":            "📊 <b>Статистика использования:</b>\n\nСообщений сегодня: %d/%d\nОсталось: %d",
		"stats_session":    "Текущая сессия начата: %s",
		"quota_exceeded":   "Ты исчерпал дневной лимит сообщений (%d). Лимит обновится завтра. Береги себя 💙",
		"generic_error":    "Произошла ошибка. Пожалуйста, попробуй позже.",
		"provider_error":   "Мне сейчас трудно ответить из-за технической ошибки. Я сохранил твоё сообщение, попробуй ещё раз через пару минут.",
		"use_start_first":  "Сначала используй /start для регистрации.",
		"language_prompt":  "Выбери язык:",
		"language_set":     "✅ Язык сохранён: русский.",
		"language_error":   "Не удалось сменить язык. Попробуй позже.",
		"btn_new_session":  "🆕 Новая сессия",
		"btn_settings":     "⚙️ Настройки",
		"btn_stats":        "📊 Статистика",
		"btn_help":         "❓ Помощь",
	},
	"kz": {
		"welcome": "Сәлем, %s! 👋\n\n" +
			"Мен КБТ (когнитивті-мінез-құлық терапиясы) тәсілімен жұмыс істейтін қолдау ботымын.\n\n" +
			"⚠️ Маңызды: мен дәрігер де, психотерапевт те емеспін. Диагноз қоймаймын.\n\n" +
			"Сені не мазалайтынын жай ғана жазшы.\n\n" +
			"Командалар:\n/newsession — жаңа сессия\n/settings — баптаулар\n/stats — статистика\n/language — тіл\n/help — көмек",
		"help": "📖 <b>Ботты қалай пайдалану керек</b>\n\n" +
			"Сені не мазалайтынын жаз, мен көмектесемін.\n\n" +
			"<b>Командалар:</b>\n/start — ботпен жұмысты бастау\n/newsession — жаңа сессия бастау\n/settings — баптаулар\n/stats — статистика\n/language — тілді ауыстыру\n/help — осы хабарлама\n\n" +
			"<b>Лимиттер:</b>\nТегін: күніне %d хабарлама\n\n" +
			"<b>Есте сақта:</b>\n• Мен дәрігер емеспін\n• Төтенше жағдайда мамандарға жүгін",
		"new_session":      "✅ Жаңа сессия басталды!\n\nАлдыңғы сессия мұрағатталды. Қазір сені не мазалайды?",
		"settings":         "⚙️ <b>Ағымдағы баптаулар:</b>\n\nҚарым-қатынас стилі: <code>%s</code>\nЖауап ұзындығы: <code>%s</code>\nЖад: <code>%s</code>\nСезімтал тақырыптар: <code>%s</code>",
		"on":               "қосулы",
		"off":              "өшірулі",
		"allowed":          "рұқсат етілген",
		"forbidden":        "тыйым салынған",
		"stats":            "📊 <b>Пайдалану статистикасы:</b>\n\nБүгінгі хабарламалар: %d/%d\nҚалғаны: %d",
		"stats_session":    "Ағымдағы сессия басталды: %s",
		"quota_exceeded":   "Күнделікті хабарлама лимиті (%d) таусылды. Лимит ертең жаңарады. Өзіңді күт 💙",
		"generic_error":    "Қате орын алды. Кейінірек қайталап көрші.",
		"provider_error":   "Қазір техникалық қате салдарынан жауап беру қиын. Хабарламаң сақталды, бірер минуттан кейін қайталап көрші.",
		"use_start_first":  "Алдымен тіркелу үшін /start қолдан.",
		"language_prompt":  "Тілді таңда:",
		"language_set":     "✅ Тіл сақталды: қазақша.",
		"language_error":   "Тілді ауыстыру мүмкін болмады. Кейінірек қайталап көрші.",
		"btn_new_session":  "🆕 Жаңа сессия",
		"btn_settings":     "⚙️ Баптаулар",
		"btn_stats":        "📊 Статистика",
		"btn_help":         "❓ Көмек",
	},
	"en": {
		"welcome": "Hi, %s! 👋\n\n" +
			"I'm a support bot working with CBT (cognitive behavioral therapy) techniques.\n\n" +
			"I can help you:\n" +
			"• Reduce anxiety and stress\n" +
			"• Understand your emotions and thoughts\n" +
			"• Notice cognitive distortions\n" +
			"• Choose more helpful actions\n\n" +
			"⚠️ Important: I'm not a doctor or a psychotherapist. I don't diagnose and I don't replace in-person therapy.\n\n" +
			"Just tell me what's on your mind.\n\n" +
			"Commands:\n/newsession — start a new session\n/settings — settings\n/stats — usage stats\n/language — language\n/help — help",
		"help": "📖 <b>How to use the bot</b>\n\n" +
			"Just write what's bothering you and I'll help you work through it.\n\n" +
			"<b>Commands:</b>\n/start — start the bot\n/newsession — archive the current session and start fresh\n/settings — current settings\n/stats — usage statistics\n/language — change language\n/help — this message\n\n" +
			"<b>Limits:</b>\nFree: %d messages per day\n\n" +
			"<b>Keep in mind:</b>\n• I'm not a doctor or therapist\n• I don't diagnose\n• In an emergency, contact professionals",
		"new_session":      "✅ New session started!\n\nThe previous session was archived. What's on your mind right now?",
		"settings":         "⚙️ <b>Current settings:</b>\n\nStyle: <code>%s</code>\nResponse length: <code>%s</code>\nMemory: <code>%s</code>\nSensitive topics: <code>%s</code>",
		"on":               "on",
		"off":              "off",
		"allowed":          "allowed",
		"forbidden":        "not allowed",
		"stats":            "📊 <b>Usage statistics:</b>\n\nMessages today: %d/%d\nRemaining: %d",
		"stats_session":    "Current session started: %s",
		"quota_exceeded":   "You've used up your daily message limit (%d). It resets tomorrow. Take care 💙",
		"generic_error":    "Something went wrong. Please try again later.",
		"provider_error":   "I'm having trouble replying because of a technical error. Your message is saved, please try again in a couple of minutes.",
		"use_start_first":  "Use /start first to register.",
		"language_prompt":  "Choose a language:",
		"language_set":     "✅ Language saved: English.",
		"language_error":   "Couldn't change the language. Try again later.",
		"btn_new_session":  "🆕 New session",
		"btn_settings":     "⚙️ Settings",
		"btn_stats":        "📊 Stats",
		"btn_help":         "❓ Help",
	},
}
