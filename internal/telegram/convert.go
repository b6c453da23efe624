package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

// FromUpdate normalizes a Bot API update. ok is false for updates the relay
// ignores (edited messages, channel posts, anonymous senders, ...).
func FromUpdate(u tgbotapi.Update) (domain.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return domain.Update{}, false
		}
		return domain.Update{
			ID:       u.UpdateID,
			ChatID:   cq.Message.Chat.ID,
			Sender:   sender(cq.From),
			Callback: &domain.Callback{ID: cq.ID, Data: cq.Data, MessageID: cq.Message.MessageID},
		}, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil {
			return domain.Update{}, false
		}
		out := domain.Update{ID: u.UpdateID, ChatID: m.Chat.ID, Sender: sender(m.From)}
		if m.IsCommand() {
			out.Command = m.Command()
			out.Args = strings.TrimSpace(m.CommandArguments())
			return out, true
		}
		out.Message = incoming(m)
		return out, true
	}
	return domain.Update{}, false
}

func sender(u *tgbotapi.User) domain.Sender {
	return domain.Sender{
		ID:          u.ID,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username:    u.UserName,
	}
}

func incoming(m *tgbotapi.Message) *domain.Incoming {
	in := &domain.Incoming{Text: m.Text}

	if n := len(m.Photo); n > 0 {
		largest := m.Photo[n-1]
		in.Photo = &domain.Photo{FileID: largest.FileID, FileSize: int64(largest.FileSize), Caption: m.Caption}
	}
	if v := m.Video; v != nil {
		in.Video = &domain.Video{FileID: v.FileID, FileSize: int64(v.FileSize), Duration: v.Duration, Caption: m.Caption}
	}
	if v := m.Voice; v != nil {
		in.Voice = &domain.Voice{FileID: v.FileID, FileSize: int64(v.FileSize), Duration: v.Duration, Caption: m.Caption}
	}
	if a := m.Audio; a != nil {
		in.Audio = &domain.Audio{
			FileID: a.FileID, FileSize: int64(a.FileSize), Duration: a.Duration,
			Title: a.Title, Performer: a.Performer, Caption: m.Caption,
		}
	}
	if d := m.Document; d != nil {
		in.Document = &domain.Document{FileID: d.FileID, FileSize: int64(d.FileSize), FileName: d.FileName, Caption: m.Caption}
	}
	if s := m.Sticker; s != nil {
		in.Sticker = &domain.Sticker{FileID: s.FileID, Emoji: s.Emoji, SetName: s.SetName}
	}
	if v := m.VideoNote; v != nil {
		in.VideoNote = &domain.VideoNote{FileID: v.FileID, Duration: v.Duration, Length: v.Length}
	}
	return in
}
