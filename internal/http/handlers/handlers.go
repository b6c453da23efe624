package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-anon-relay/internal/http/middleware"
)

// Dispatcher hands a decoded update to the bot.
type Dispatcher interface {
	Dispatch(ctx context.Context, u tgbotapi.Update)
}

// Handlers serves the relay's HTTP surface.
type Handlers struct {
	dispatcher Dispatcher
	secret     string
	botName    string
	started    time.Time
	now        func() time.Time
}

// New returns the handlers. An empty secret disables webhook verification.
func New(d Dispatcher, secret, botName string) *Handlers {
	return &Handlers{dispatcher: d, secret: secret, botName: botName, started: time.Now(), now: time.Now}
}

// Health is the liveness probe used by the hosting platform.
func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Status is a human-readable landing page.
func (h *Handlers) Status(c *gin.Context) {
	up := h.now().Sub(h.started).Truncate(time.Second)
	c.String(http.StatusOK, fmt.Sprintf("Anonymous relay bot @%s is running (uptime %s)", h.botName, up))
}

// Webhook receives one Telegram update per request. The update is handled
// before answering; Telegram redelivers anything that is not a 2xx, so
// only undecodable or unauthenticated requests are refused.
func (h *Handlers) Webhook(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader(middleware.HeaderTelegramSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "bad webhook secret")
			return
		}
	}

	var u tgbotapi.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "update too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update payload")
		return
	}

	// Handling must not stop halfway when Telegram drops the connection.
	h.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), u)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
