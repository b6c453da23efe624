// Package telegram adapts the Telegram Bot API to the relay: it sends
// replies and relayed content, normalizes inbound updates, and runs the
// long-polling loop.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-anon-relay/internal/domain"
	"github.com/tbourn/go-anon-relay/internal/observability"
)

// ErrUnsupportedContent is returned by SendContent for unknown content types.
var ErrUnsupportedContent = errors.New("telegram: unsupported content")

// Options tune a Client. Zero values fall back to the Bot API defaults and an
// unlimited outbound rate.
type Options struct {
	// Endpoint is the method URL template, e.g. "https://api.telegram.org/bot%s/%s".
	Endpoint string
	// HTTPClient performs the requests.
	HTTPClient *http.Client
	// RPS and Burst pace outbound calls. RPS <= 0 disables pacing.
	RPS   float64
	Burst int
}

// Client is a paced Bot API client.
type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

func init() {
	_ = tgbotapi.SetLogger(botLogger{})
}

// New authenticates token with getMe and returns a ready client.
func New(token string, opts Options) (*Client, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}

	limit, burst := rate.Inf, opts.Burst
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{api: api, limiter: rate.NewLimiter(limit, burst)}, nil
}

// Username is the bot's handle as reported by getMe.
func (c *Client) Username() string { return c.api.Self.UserName }

// SendText sends an HTML message.
func (c *Client) SendText(ctx context.Context, chatID int64, html string) error {
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, "sendMessage", msg)
}

// SendMenu sends an HTML message with one button per row.
func (c *Client) SendMenu(ctx context.Context, chatID int64, html string, buttons ...domain.Button) error {
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return c.send(ctx, "sendMessage", msg)
}

// SendContent re-sends a received file by its file id. caption is HTML and
// ignored for stickers and video notes.
func (c *Client) SendContent(ctx context.Context, chatID int64, content domain.Content, caption string) error {
	var cfg tgbotapi.Chattable
	switch v := content.(type) {
	case domain.Text:
		return c.SendText(ctx, chatID, caption)
	case domain.Photo:
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(v.FileID))
		p.Caption, p.ParseMode = caption, tgbotapi.ModeHTML
		cfg = p
	case domain.Video:
		p := tgbotapi.NewVideo(chatID, tgbotapi.FileID(v.FileID))
		p.Caption, p.ParseMode = caption, tgbotapi.ModeHTML
		cfg = p
	case domain.Voice:
		p := tgbotapi.NewVoice(chatID, tgbotapi.FileID(v.FileID))
		p.Caption, p.ParseMode = caption, tgbotapi.ModeHTML
		cfg = p
	case domain.Audio:
		p := tgbotapi.NewAudio(chatID, tgbotapi.FileID(v.FileID))
		p.Caption, p.ParseMode = caption, tgbotapi.ModeHTML
		cfg = p
	case domain.Document:
		p := tgbotapi.NewDocument(chatID, tgbotapi.FileID(v.FileID))
		p.Caption, p.ParseMode = caption, tgbotapi.ModeHTML
		cfg = p
	case domain.Sticker:
		cfg = tgbotapi.NewSticker(chatID, tgbotapi.FileID(v.FileID))
	case domain.VideoNote:
		cfg = tgbotapi.NewVideoNote(chatID, v.Length, tgbotapi.FileID(v.FileID))
	default:
		return ErrUnsupportedContent
	}
	return c.send(ctx, "send_"+string(content.Kind()), cfg)
}

// EditText replaces the text of a previously sent message.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, html string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, html)
	edit.ParseMode = tgbotapi.ModeHTML
	return c.request(ctx, "editMessageText", edit)
}

// AnswerCallback acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, text))
}

// SetCommands publishes the command menu.
func (c *Client) SetCommands(ctx context.Context) error {
	return c.request(ctx, "setMyCommands", tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start the bot"},
		tgbotapi.BotCommand{Command: "logs", Description: "Recent anonymous messages (admin)"},
	))
}

// SetWebhook registers url for update delivery, dropping the backlog.
// Telegram echoes secret in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	params["drop_pending_updates"] = "true"
	return c.call(ctx, "setWebhook", func() error {
		_, err := c.api.MakeRequest("setWebhook", params)
		return err
	})
}

// DeleteWebhook switches the bot back to getUpdates, dropping the backlog.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.request(ctx, "deleteWebhook", tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true})
}

// Updates long-polls for updates after offset.
func (c *Client) Updates(ctx context.Context, offset, timeoutSec int) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = timeoutSec
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	var ups []tgbotapi.Update
	err := c.call(ctx, "getUpdates", func() error {
		var err error
		ups, err = c.api.GetUpdates(cfg)
		return err
	})
	return ups, err
}

func (c *Client) send(ctx context.Context, method string, cfg tgbotapi.Chattable) error {
	return c.call(ctx, method, func() error {
		_, err := c.api.Send(cfg)
		return err
	})
}

func (c *Client) request(ctx context.Context, method string, cfg tgbotapi.Chattable) error {
	return c.call(ctx, method, func() error {
		_, err := c.api.Request(cfg)
		return err
	})
}

func (c *Client) call(ctx context.Context, method string, fn func() error) (err error) {
	ctx, span := observability.StartSpan(ctx, "telegram."+method, attribute.String("telegram.method", method))
	defer func() { observability.EndSpan(span, err) }()

	if err = c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err = fn(); err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	return nil
}

// botLogger routes the library's own diagnostics into zerolog.
type botLogger struct{}

func (botLogger) Println(v ...interface{}) {
	log.Debug().Str("component", "tgbotapi").Msg(fmt.Sprint(v...))
}

func (botLogger) Printf(format string, v ...interface{}) {
	log.Debug().Str("component", "tgbotapi").Msgf(format, v...)
}
