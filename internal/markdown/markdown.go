// Package markdown renders model output into the HTML subset Telegram
// accepts. Telegram rejects messages containing any other tag, so the
// renderer converts markdown to full HTML first and then reduces it.
package markdown

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var gm = goldmark.New(
	goldmark.WithExtensions(
		extension.Strikethrough,
		extension.Linkify,
	),
)

// ToTelegramHTML converts markdown to Telegram-safe HTML. On any render
// failure it falls back to the escaped plain text, never an error; a
// reply must go out even if formatting is lost.
func ToTelegramHTML(md string) string {
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return Escape(md)
	}
	return strings.TrimSpace(reduce(buf.String()))
}

// Escape is plain-text escaping for the HTML parse mode.
func Escape(s string) string {
	return html.EscapeString(s)
}

var (
	reHeadingOpen  = regexp.MustCompile(`<h[1-6][^>]*>`)
	reHeadingClose = regexp.MustCompile(`</h[1-6]>`)
	reListItem     = regexp.MustCompile(`<li[^>]*>`)
	reAnchor       = regexp.MustCompile(`<a\s+[^>]*href="([^"]*)"[^>]*>`)
	reCodeOpen     = regexp.MustCompile(`<code\s+class="language-[^"]*"[^>]*>`)
	reComment      = regexp.MustCompile(`<!--.*?-->`)
	reStray        = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

// allowed is the tag set Telegram documents for parse_mode=HTML.
var allowed = map[string]bool{
	"b": true, "i": true, "u": true, "s": true,
	"code": true, "pre": true, "a": true, "blockquote": true,
}

func reduce(h string) string {
	// Structure tags become plain text layout.
	h = reHeadingOpen.ReplaceAllString(h, "<b>")
	h = reHeadingClose.ReplaceAllString(h, "</b>\n")
	h = reListItem.ReplaceAllString(h, "• ")
	h = strings.ReplaceAll(h, "</li>", "\n")
	h = strings.NewReplacer(
		"<p>", "", "</p>", "\n",
		"<ul>", "", "</ul>", "\n",
		"<ol>", "", "</ol>", "\n",
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"<hr>", "\n", "<hr/>", "\n", "<hr />", "\n",
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<del>", "<s>", "</del>", "</s>",
	).Replace(h)

	// Goldmark replaces raw HTML in the input with comment markers.
	h = reComment.ReplaceAllString(h, "")

	// Keep href, drop every other anchor attribute.
	h = reAnchor.ReplaceAllString(h, `<a href="$1">`)
	// Telegram understands language classes on code inside pre.
	h = reCodeOpen.ReplaceAllString(h, "<code>")

	// Anything still outside the whitelist gets stripped.
	h = reStray.ReplaceAllStringFunc(h, func(tag string) string {
		name := strings.TrimLeft(tag, "</")
		for i, r := range name {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				name = name[:i]
				break
			}
		}
		if allowed[strings.ToLower(name)] {
			return tag
		}
		return ""
	})

	// Collapse the blank-line runs left by removed blocks.
	for strings.Contains(h, "\n\n\n") {
		h = strings.ReplaceAll(h, "\n\n\n", "\n\n")
	}
	return h
}
