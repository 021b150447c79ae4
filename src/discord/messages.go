package discord

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxDiscordMessageLen = 2000
	SafeChunkLen         = 1900

	// MaxLabelLen bounds select option labels.
	MaxLabelLen = 100
)

// SplitMessage cuts text into chunks of at most limit bytes, preferring
// paragraph breaks, then sentence ends, then spaces.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = SafeChunkLen
	}
	if len(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	appendPiece := func(piece, sep string) {
		if cur.Len() > 0 && cur.Len()+len(sep)+len(piece) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		if len(paragraph) <= limit {
			appendPiece(paragraph, "\n\n")
			continue
		}
		flush()
		for _, sentence := range splitBySentences(paragraph, limit) {
			appendPiece(sentence, " ")
		}
		flush()
	}
	flush()
	return chunks
}

func splitBySentences(text string, limit int) []string {
	var (
		sentences []string
		cur       strings.Builder
	)
	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}

	var out []string
	for _, s := range sentences {
		if len(s) <= limit {
			out = append(out, s)
			continue
		}
		out = append(out, splitByWords(s, limit)...)
	}
	return out
}

func splitByWords(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	for _, word := range strings.Fields(text) {
		for len(word) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			chunks = append(chunks, word[:cut])
			word = word[cut:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

var urlPattern = regexp.MustCompile(`<?https?://[^\s\[\]()<>]+>?`)

// WrapURLsNoEmbed wraps URLs in angle brackets so Discord does not unfurl
// them. Already wrapped URLs are kept.
func WrapURLsNoEmbed(text string) string {
	return urlPattern.ReplaceAllStringFunc(text, func(url string) string {
		if strings.HasPrefix(url, "<") && strings.HasSuffix(url, ">") {
			return url
		}
		url = strings.Trim(url, "<>")
		trimmed := strings.TrimRight(url, ".,;:!?")
		return "<" + trimmed + ">" + url[len(trimmed):]
	})
}

// Timestamp renders t as a Discord timestamp. style is one of the Discord
// format letters ("R" for relative); empty uses the default.
func Timestamp(t time.Time, style string) string {
	if style == "" {
		return fmt.Sprintf("<t:%d>", t.Unix())
	}
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

func MentionUser(id string) string { return "<@" + id + ">" }

func MentionRole(id string) string { return "<@&" + id + ">" }

// MessageLink is the jump URL of a message.
func MessageLink(guild, channel, message string) string {
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, channel, message)
}

// Debacktick strips backticks so text can sit inside inline code.
func Debacktick(s string) string { return strings.ReplaceAll(s, "`", "") }

// LimitLen shortens s to MaxLabelLen runes with an ellipsis.
func LimitLen(s string) string {
	if utf8.RuneCountInString(s) <= MaxLabelLen {
		return s
	}
	return string([]rune(s)[:MaxLabelLen-1]) + "…"
}

// FormatTime is the human readable form used in select descriptions.
func FormatTime(t time.Time) string {
	return t.Local().Format("2 Jan 2006 15:04")
}
