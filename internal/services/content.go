package services

import (
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

const (
	// maxSummaryRunes caps text stored in the audit log.
	maxSummaryRunes = 4000
	// Bot API limits, counted after HTML parsing.
	maxTextChars    = 4096
	maxCaptionChars = 1024

	noReplyNotice = "<i>💬 Replies are not possible</i>"
)

// Classify picks the content kind of in using the fixed precedence
// text, photo, video, voice, audio, document, sticker, video_note.
// It reports false for payloads of no supported kind.
func Classify(in *domain.Incoming) (domain.Content, bool) {
	switch {
	case in == nil:
		return nil, false
	case in.Text != "":
		return domain.Text{Body: in.Text}, true
	case in.Photo != nil:
		return *in.Photo, true
	case in.Video != nil:
		return *in.Video, true
	case in.Voice != nil:
		return *in.Voice, true
	case in.Audio != nil:
		return *in.Audio, true
	case in.Document != nil:
		return *in.Document, true
	case in.Sticker != nil:
		return *in.Sticker, true
	case in.VideoNote != nil:
		return *in.VideoNote, true
	}
	return nil, false
}

// Summarizer renders audit summaries. Numbers are grouped for the
// configured locale ("1,234 KB").
type Summarizer struct {
	p *message.Printer
}

// NewSummarizer returns a Summarizer for tag.
func NewSummarizer(tag language.Tag) Summarizer {
	return Summarizer{p: message.NewPrinter(tag)}
}

// Summary describes c for the audit log. Text is kept literally; media is
// reduced to size, duration, or title metadata.
func (s Summarizer) Summary(c domain.Content) string {
	switch v := c.(type) {
	case domain.Text:
		return clipRunes(v.Body, maxSummaryRunes)
	case domain.Photo:
		return s.p.Sprintf("Photo (%d KB)", v.FileSize/1024)
	case domain.Video:
		return s.p.Sprintf("Video (%d KB, %d s)", v.FileSize/1024, v.Duration)
	case domain.Voice:
		return s.p.Sprintf("Voice (%d s)", v.Duration)
	case domain.Audio:
		return "Audio: " + orDefault(v.Title, "Untitled") + " - " + orDefault(v.Performer, "Unknown")
	case domain.Document:
		return s.p.Sprintf("Document: %s (%d KB)", orDefault(v.FileName, "unnamed"), v.FileSize/1024)
	case domain.Sticker:
		if v.SetName != "" {
			return "Sticker from set " + v.SetName
		}
		return "Sticker"
	case domain.VideoNote:
		return s.p.Sprintf("Video note (%d s)", v.Duration)
	}
	return ""
}

// Delivery is what the owner receives for one relayed message. Caption is
// the text message itself for text content and the media caption otherwise.
// Notice, when set, follows as a separate text message.
type Delivery struct {
	Caption string
	Notice  string
}

// Compose builds the delivery for c. The envelope carries the send time and
// the no-reply notice and never any sender data. The sender's text or
// caption is never shortened: when the envelope would push it over the
// platform limit, the body goes out alone and the envelope follows as the
// notice.
func Compose(c domain.Content, at time.Time) Delivery {
	head, body := envelope(c, at)

	full := head
	if body != "" {
		full += "\n\n" + body
	}
	full += "\n\n" + noReplyNotice

	limit := maxCaptionChars
	if c.Kind() == domain.KindText {
		limit = maxTextChars
	}
	switch {
	case Captionless(c.Kind()):
		return Delivery{Notice: full}
	case body == "" || VisibleLen(full) <= limit:
		return Delivery{Caption: full}
	}
	return Delivery{Caption: body, Notice: head + "\n\n" + noReplyNotice}
}

// envelope splits the owner-facing HTML for c into the header (kind line,
// time, file metadata) and the sender's own words, escaped.
func envelope(c domain.Content, at time.Time) (head, body string) {
	stamp := "🕒 <i>" + at.Format("15:04") + "</i>"

	switch v := c.(type) {
	case domain.Text:
		return "📨 <b>New anonymous message!</b>\n" + stamp, html.EscapeString(v.Body)
	case domain.Photo:
		return "📸 <b>Anonymous photo!</b>\n" + stamp, callerCaption(v.Caption, "📷 Anonymous photo")
	case domain.Video:
		return "🎬 <b>Anonymous video!</b>\n" + stamp, callerCaption(v.Caption, "🎥 Anonymous video")
	case domain.Voice:
		return "🎤 <b>Anonymous voice message!</b>\n" + stamp, callerCaption(v.Caption, "")
	case domain.Audio:
		var b strings.Builder
		b.WriteString("🎵 <b>Anonymous music!</b>\n")
		if v.Title != "" {
			b.WriteString("Title: " + html.EscapeString(v.Title) + "\n")
		}
		if v.Performer != "" {
			b.WriteString("Performer: " + html.EscapeString(v.Performer) + "\n")
		}
		b.WriteString(stamp)
		return b.String(), callerCaption(v.Caption, "")
	case domain.Document:
		return "📎 <b>Anonymous document!</b>\n" + stamp + "\nFile: " + html.EscapeString(orDefault(v.FileName, "unnamed")),
			callerCaption(v.Caption, "")
	case domain.Sticker:
		return "✨ <b>Anonymous sticker!</b>\n" + stamp, ""
	case domain.VideoNote:
		return "📹 <b>Anonymous video note!</b>\n" + stamp, ""
	}
	return stamp, ""
}

var tagRE = regexp.MustCompile(`<[^>]*>`)

// VisibleLen is the length of an HTML-mode message as the platform counts
// it: tags dropped, entities decoded, UTF-16 code units.
func VisibleLen(s string) int {
	n := 0
	for _, r := range html.UnescapeString(tagRE.ReplaceAllString(s, "")) {
		n += utf16.RuneLen(r)
	}
	return n
}

// Captionless reports whether the platform cannot attach a caption to
// content of kind k, so the caption goes out as a separate message.
func Captionless(k domain.ContentKind) bool {
	return k == domain.KindSticker || k == domain.KindVideoNote
}

func callerCaption(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return html.EscapeString(s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
