// Package bot routes normalized updates to the relay services and turns
// their results into replies.
//
// Handle is safe for concurrent use: the poller dispatches one update at a
// time, while webhook deliveries are served concurrently. Any command, known
// or not, first discards the sender's pending compose session; button
// presses do not.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-anon-relay/internal/domain"
	"github.com/tbourn/go-anon-relay/internal/services"
	"github.com/tbourn/go-anon-relay/internal/utils"
)

// Messenger is the reply side of the chat platform.
type Messenger interface {
	services.Outbound
	SendMenu(ctx context.Context, chatID int64, html string, buttons ...domain.Button) error
	EditText(ctx context.Context, chatID int64, messageID int, html string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Links issues owner links.
type Links interface {
	IssueOrFetch(ctx context.Context, ownerID int64) string
	LinkURL(token string) string
}

// Relay is the compose and relay flow.
type Relay interface {
	Remember(ctx context.Context, sender domain.Sender)
	OpenLink(ctx context.Context, sender domain.Sender, token string) (services.OpenResult, error)
	Relay(ctx context.Context, sender domain.Sender, in *domain.Incoming) (domain.ContentKind, error)
	Discard(ctx context.Context, senderID int64)
}

// Auditor renders the privileged report.
type Auditor interface {
	FormatRecent(ctx context.Context, requesterID int64, limit int) (string, error)
}

// Handler dispatches updates.
type Handler struct {
	Links Links
	Relay Relay
	Audit Auditor
	Out   Messenger

	// AuditLimit is the /logs size when no argument is given.
	AuditLimit int
}

// Handle processes one update. Errors are reported to the user and logged;
// nothing is returned to the transport.
func (h *Handler) Handle(ctx context.Context, u domain.Update) {
	switch {
	case u.Callback != nil:
		h.handleCallback(ctx, u)
	case u.Command != "":
		h.Relay.Discard(ctx, u.Sender.ID)
		switch strings.ToLower(u.Command) {
		case "start":
			h.handleStart(ctx, u)
		case "logs":
			h.handleLogs(ctx, u)
		default:
			h.reply(ctx, u.ChatID, unknownCmdText)
		}
	case u.Message != nil:
		h.handleMessage(ctx, u)
	}
}

func (h *Handler) handleStart(ctx context.Context, u domain.Update) {
	logger := zerolog.Ctx(ctx)
	h.Relay.Remember(ctx, u.Sender)

	token := utils.FirstArg(u.Args)
	if token == "" {
		logger.Info().Int64("user_id", u.Sender.ID).Str("user", u.Sender.User().Handle()).Msg("start")
		h.menu(ctx, u.ChatID, welcomeText, getLinkButton)
		return
	}

	res, err := h.Relay.OpenLink(ctx, u.Sender, token)
	switch {
	case errors.Is(err, services.ErrLinkNotFound):
		h.reply(ctx, u.ChatID, invalidLinkText)
	case err != nil:
		logger.Error().Err(err).Int64("user_id", u.Sender.ID).Msg("open link failed")
		h.reply(ctx, u.ChatID, genericErrorText)
	case res == services.OpenedOwnLink:
		h.menu(ctx, u.ChatID, ownLinkText, myLinkButton)
	default:
		h.reply(ctx, u.ChatID, composeText)
	}
}

func (h *Handler) handleLogs(ctx context.Context, u domain.Update) {
	limit := utils.AtoiDefault(utils.FirstArg(u.Args), h.AuditLimit)

	report, err := h.Audit.FormatRecent(ctx, u.Sender.ID, limit)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		h.reply(ctx, u.ChatID, noAccessText)
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Msg("audit report failed")
		h.reply(ctx, u.ChatID, auditFailedText)
	default:
		h.reply(ctx, u.ChatID, report)
	}
}

func (h *Handler) handleMessage(ctx context.Context, u domain.Update) {
	kind, err := h.Relay.Relay(ctx, u.Sender, u.Message)
	switch {
	case err == nil:
		h.reply(ctx, u.ChatID, sentTexts[kind])
	case errors.Is(err, services.ErrNoSession):
		h.reply(ctx, u.ChatID, noSessionText)
	case errors.Is(err, services.ErrUnsupportedContent):
		h.reply(ctx, u.ChatID, unsupportedText)
	case errors.Is(err, services.ErrDeliveryFailed):
		h.reply(ctx, u.ChatID, deliveryFailText)
	default:
		h.reply(ctx, u.ChatID, genericErrorText)
	}
}

func (h *Handler) handleCallback(ctx context.Context, u domain.Update) {
	cb := u.Callback
	logger := zerolog.Ctx(ctx)

	var text string
	switch cb.Data {
	case CallbackGetLink:
		text = linkIssuedText(h.Links.LinkURL(h.Links.IssueOrFetch(ctx, u.Sender.ID)))
	case CallbackMyLink:
		text = myLinkText(h.Links.LinkURL(h.Links.IssueOrFetch(ctx, u.Sender.ID)))
	default:
		h.answer(ctx, cb.ID, "")
		return
	}

	if err := h.Out.EditText(ctx, u.ChatID, cb.MessageID, text); err != nil {
		logger.Error().Err(err).Int64("user_id", u.Sender.ID).Str("data", cb.Data).Msg("edit message failed")
		h.answer(ctx, cb.ID, callbackErrorText)
		return
	}
	logger.Info().Int64("user_id", u.Sender.ID).Str("data", cb.Data).Msg("link shown")
	h.answer(ctx, cb.ID, "")
}

func (h *Handler) reply(ctx context.Context, chatID int64, html string) {
	if err := h.Out.SendText(ctx, chatID, html); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (h *Handler) menu(ctx context.Context, chatID int64, html string, buttons ...domain.Button) {
	if err := h.Out.SendMenu(ctx, chatID, html, buttons...); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("reply failed")
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if err := h.Out.AnswerCallback(ctx, callbackID, text); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("answer callback failed")
	}
}
