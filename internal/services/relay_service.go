// Package services – RelayService
//
// RelayService drives the per-sender relay state machine. A sender is Idle
// until OpenLink resolves someone else's token, which opens a compose
// session (AwaitingPayload). The next payload from that sender consumes the
// session whatever happens afterwards, so one link visit authorizes exactly
// one relay attempt.
//
// Forwarded content never carries sender identity. Audit records and the
// structured "relay" log event do; only the administrator can read those.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
	"github.com/tbourn/go-anon-relay/internal/observability"
	"github.com/tbourn/go-anon-relay/internal/session"
)

// UserRepo records senders.
type UserRepo interface {
	UpsertUser(ctx context.Context, db *gorm.DB, u domain.User, now time.Time) error
}

// RelayRepo appends audit records.
type RelayRepo interface {
	AppendRelayRecord(ctx context.Context, db *gorm.DB, rec *domain.RelayRecord, now time.Time) error
}

// Resolver maps link tokens to owners.
type Resolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// Outbound is the channel relayed content leaves through.
type Outbound interface {
	SendText(ctx context.Context, chatID int64, html string) error
	SendContent(ctx context.Context, chatID int64, c domain.Content, caption string) error
}

// OpenResult tells the caller which branch a link visit took.
type OpenResult int

const (
	// OpenedCompose means a compose session is now pending for the sender.
	OpenedCompose OpenResult = iota + 1
	// OpenedOwnLink means the sender opened their own link; nothing changed.
	OpenedOwnLink
)

// RelayService coordinates link visits and payload relays.
type RelayService struct {
	DB       *gorm.DB
	Users    UserRepo
	Records  RelayRepo
	Links    Resolver
	Sessions session.Store
	Out      Outbound

	Summarizer Summarizer
	// Location is the zone used for the HH:MM stamp in forwarded captions.
	Location *time.Location
	Now      func() time.Time
}

// NewRelayService constructs a RelayService with English number formatting
// and local-time captions.
func NewRelayService(db *gorm.DB, users UserRepo, records RelayRepo, links Resolver, sessions session.Store, out Outbound) *RelayService {
	return &RelayService{
		DB:         db,
		Users:      users,
		Records:    records,
		Links:      links,
		Sessions:   sessions,
		Out:        out,
		Summarizer: NewSummarizer(language.English),
		Location:   time.Local,
		Now:        time.Now,
	}
}

// Remember upserts sender as a known user. Failures are logged only.
func (s *RelayService) Remember(ctx context.Context, sender domain.Sender) {
	if err := s.Users.UpsertUser(ctx, s.DB, sender.User(), s.Now()); err != nil {
		observability.StorageErrorsTotal.WithLabelValues("upsert_user").Inc()
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("upsert user failed")
	}
}

// OpenLink handles a visit to token by sender. Opening one's own link is a
// no-op reported as OpenedOwnLink; unknown tokens yield ErrLinkNotFound.
// Otherwise any earlier pending session is replaced.
func (s *RelayService) OpenLink(ctx context.Context, sender domain.Sender, token string) (res OpenResult, err error) {
	ctx, span := observability.StartSpan(ctx, "RelayService.OpenLink", attribute.Int64("sender.id", sender.ID))
	defer func() { observability.EndSpan(span, err) }()

	owner, err := s.Links.Resolve(ctx, token)
	if err != nil {
		observability.LinkOpensTotal.WithLabelValues("invalid").Inc()
		log.Warn().Int64("sender_id", sender.ID).Str("token_prefix", TokenPrefix(token)).Msg("invalid link opened")
		return 0, err
	}
	if owner == sender.ID {
		observability.LinkOpensTotal.WithLabelValues("self").Inc()
		return OpenedOwnLink, nil
	}

	if err := s.Sessions.Open(ctx, sender.ID, session.Pending{Token: token, OwnerID: owner}); err != nil {
		return 0, err
	}
	observability.LinkOpensTotal.WithLabelValues("compose").Inc()
	log.Info().Int64("sender_id", sender.ID).Str("token_prefix", TokenPrefix(token)).Msg("compose session opened")
	return OpenedCompose, nil
}

// Discard drops sender's pending session, if any.
func (s *RelayService) Discard(ctx context.Context, senderID int64) {
	if err := s.Sessions.Clear(ctx, senderID); err != nil {
		log.Error().Err(err).Int64("sender_id", senderID).Msg("clear compose session failed")
	}
}

// Relay forwards in to the owner of sender's pending session. The session
// is consumed first, so it is gone whatever the outcome.
//
// Errors: ErrNoSession when nothing is pending, ErrUnsupportedContent for
// unknown payloads (no audit record), ErrDeliveryFailed when forwarding
// fails. A failed audit append is logged and does not block delivery.
func (s *RelayService) Relay(ctx context.Context, sender domain.Sender, in *domain.Incoming) (kind domain.ContentKind, err error) {
	ctx, span := observability.StartSpan(ctx, "RelayService.Relay", attribute.Int64("sender.id", sender.ID))
	defer func() { observability.EndSpan(span, err) }()

	p, ok, err := s.Sessions.Consume(ctx, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("sender_id", sender.ID).Msg("consume compose session failed")
	}
	if err != nil || !ok {
		observability.RelaysTotal.WithLabelValues("none", observability.OutcomeNoSession).Inc()
		return "", ErrNoSession
	}

	content, ok := Classify(in)
	if !ok {
		observability.RelaysTotal.WithLabelValues("unknown", observability.OutcomeUnsupported).Inc()
		log.Warn().Int64("sender_id", sender.ID).Msg("unsupported content kind")
		return "", ErrUnsupportedContent
	}
	kind = content.Kind()
	span.SetAttributes(attribute.String("content.kind", string(kind)))

	now := s.Now()
	rec := &domain.RelayRecord{
		Token:             p.Token,
		SenderID:          sender.ID,
		SenderDisplayName: displayName(sender),
		Kind:              kind,
		Summary:           s.Summarizer.Summary(content),
	}
	if aerr := s.Records.AppendRelayRecord(ctx, s.DB, rec, now); aerr != nil {
		observability.StorageErrorsTotal.WithLabelValues("append_relay_record").Inc()
		log.Error().Err(aerr).Int64("sender_id", sender.ID).Msg("append relay record failed")
	}

	log.Info().
		Str("event", "relay").
		Int64("sender_id", sender.ID).
		Str("sender_username", sender.Username).
		Int64("recipient_id", p.OwnerID).
		Str("token_prefix", TokenPrefix(p.Token)).
		Str("kind", string(kind)).
		Str("summary", clipRunes(rec.Summary, 200)).
		Msg("anonymous message")

	if ferr := s.forward(ctx, p.OwnerID, content, now); ferr != nil {
		observability.RelaysTotal.WithLabelValues(string(kind), observability.OutcomeFailed).Inc()
		log.Error().Err(ferr).Int64("recipient_id", p.OwnerID).Str("kind", string(kind)).Msg("forward failed")
		return kind, ErrDeliveryFailed
	}
	observability.RelaysTotal.WithLabelValues(string(kind), observability.OutcomeDelivered).Inc()
	return kind, nil
}

// forward delivers c to the owner. Only the content itself decides the
// outcome; a lost follow-up notice is logged.
func (s *RelayService) forward(ctx context.Context, to int64, c domain.Content, now time.Time) error {
	d := Compose(c, now.In(s.Location))

	var err error
	if c.Kind() == domain.KindText {
		err = s.Out.SendText(ctx, to, d.Caption)
	} else {
		err = s.Out.SendContent(ctx, to, c, d.Caption)
	}
	if err != nil {
		return err
	}

	if d.Notice != "" {
		if nerr := s.Out.SendText(ctx, to, d.Notice); nerr != nil {
			log.Warn().Err(nerr).Int64("recipient_id", to).Str("kind", string(c.Kind())).Msg("relay notice not delivered")
		}
	}
	return nil
}

func displayName(s domain.Sender) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Username
}
