package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

// UpdateHandler consumes normalized updates.
type UpdateHandler interface {
	Handle(ctx context.Context, u domain.Update)
}

// Dispatcher is the common entry point of the poller and the webhook
// endpoint. It is safe for concurrent use when the handler is.
type Dispatcher struct {
	Handler UpdateHandler
}

// Dispatch normalizes u and hands it to the handler with a logger carrying
// the update id and a correlation id, derived from the one in ctx if any.
func (d *Dispatcher) Dispatch(ctx context.Context, u tgbotapi.Update) {
	du, ok := FromUpdate(u)
	if !ok {
		log.Debug().Int("update_id", u.UpdateID).Msg("update ignored")
		return
	}

	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &log.Logger
	}
	logger := base.With().
		Int("update_id", du.ID).
		Str("correlation_id", uuid.NewString()).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()
	d.Handler.Handle(ctx, du)
}

// UpdateSource is the long-polling side of the Bot API.
type UpdateSource interface {
	Updates(ctx context.Context, offset, timeoutSec int) ([]tgbotapi.Update, error)
}

// Poller fetches updates with getUpdates and dispatches them one by one.
type Poller struct {
	Source     UpdateSource
	Dispatcher *Dispatcher
	Timeout    time.Duration
	// RetryDelay is the pause after a failed fetch.
	RetryDelay time.Duration
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	timeout := int(p.Timeout / time.Second)
	retry := p.RetryDelay
	if retry <= 0 {
		retry = 3 * time.Second
	}

	offset := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		ups, err := p.Source.Updates(ctx, offset, timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Dur("retry_in", retry).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retry):
			}
			continue
		}
		// Unconfirmed updates are redelivered to the next getUpdates caller.
		if ctx.Err() != nil {
			return nil
		}
		for _, u := range ups {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.Dispatcher.Dispatch(context.WithoutCancel(ctx), u)
		}
	}
}
