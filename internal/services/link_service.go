// Package services – LinkService
//
// LinkService is the link registry: it hands every owner one reusable token
// and maps tokens back to owners.
//
// When the store is unavailable, IssueOrFetch falls back to a non-persisted
// token of the form "temp_<ownerID>_<random>". Resolve recognizes that shape
// and decodes the owner id straight from the string without a store lookup.
// Anyone can therefore craft a fallback token for an arbitrary id; this is a
// known trust relaxation kept so that links handed out during an outage keep
// working, and such tokens do not survive a switch back to stored links.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
	"github.com/tbourn/go-anon-relay/internal/observability"
	"github.com/tbourn/go-anon-relay/internal/repo"
)

const (
	// FallbackPrefix marks tokens issued while the store was unavailable.
	FallbackPrefix = "temp_"

	tokenBytes         = 12
	fallbackTokenBytes = 8
	ownerLockStripes   = 64
)

// LinkRepo defines the repository contract required by LinkService.
type LinkRepo interface {
	// GetOrCreateLink returns the owner's active link, inserting one if needed.
	GetOrCreateLink(ctx context.Context, db *gorm.DB, ownerID int64, gen repo.TokenFunc, now time.Time) (*domain.Link, bool, error)

	// ResolveToken maps an active token to its owner.
	ResolveToken(ctx context.Context, db *gorm.DB, token string) (int64, error)
}

// LinkService issues and resolves link tokens.
type LinkService struct {
	DB   *gorm.DB
	Repo LinkRepo

	// BaseURL and BotName form links as <BaseURL>/<BotName>?start=<token>.
	BaseURL string
	BotName string

	NewToken repo.TokenFunc
	Now      func() time.Time

	locks [ownerLockStripes]sync.Mutex
}

// NewLinkService constructs a LinkService with crypto/rand tokens.
func NewLinkService(db *gorm.DB, r LinkRepo, baseURL, botName string) *LinkService {
	return &LinkService{
		DB:       db,
		Repo:     r,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		BotName:  strings.TrimPrefix(botName, "@"),
		NewToken: NewToken,
		Now:      time.Now,
	}
}

// IssueOrFetch returns ownerID's link token, creating it on first use.
// Repeated calls return the same token. It never fails: a storage error
// yields a fallback token instead.
func (s *LinkService) IssueOrFetch(ctx context.Context, ownerID int64) string {
	ctx, span := observability.StartSpan(ctx, "LinkService.IssueOrFetch", attribute.Int64("owner.id", ownerID))
	defer span.End()

	// Serializes same-owner requests within this process; the partial
	// unique index covers concurrent replicas.
	mu := &s.locks[uint64(ownerID)%ownerLockStripes]
	mu.Lock()
	defer mu.Unlock()

	link, created, err := s.Repo.GetOrCreateLink(ctx, s.DB, ownerID, s.NewToken, s.Now())
	if err != nil {
		span.RecordError(err)
		observability.StorageErrorsTotal.WithLabelValues("get_or_create_link").Inc()
		log.Error().Err(err).Int64("owner_id", ownerID).Msg("link store unavailable, issuing fallback token")

		tok := FallbackToken(ownerID)
		observability.LinksIssuedTotal.WithLabelValues("fallback").Inc()
		span.SetAttributes(attribute.String("link.source", "fallback"))
		return tok
	}

	source := "existing"
	if created {
		source = "created"
		log.Info().Int64("owner_id", ownerID).Str("token_prefix", TokenPrefix(link.Token)).Msg("link created")
	}
	observability.LinksIssuedTotal.WithLabelValues(source).Inc()
	span.SetAttributes(attribute.String("link.source", source))
	return link.Token
}

// Resolve maps token to its owner. Unknown, inactive, or blank tokens yield
// ErrLinkNotFound; so does a store failure, which is logged.
func (s *LinkService) Resolve(ctx context.Context, token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrLinkNotFound
	}
	if owner, ok := FallbackOwner(token); ok {
		return owner, nil
	}

	owner, err := s.Repo.ResolveToken(ctx, s.DB, token)
	switch {
	case err == nil:
		return owner, nil
	case errors.Is(err, repo.ErrNotFound):
		return 0, ErrLinkNotFound
	default:
		observability.StorageErrorsTotal.WithLabelValues("resolve_token").Inc()
		log.Error().Err(err).Str("token_prefix", TokenPrefix(token)).Msg("resolve token failed")
		return 0, ErrLinkNotFound
	}
}

// LinkURL renders the shareable deep link for token.
func (s *LinkService) LinkURL(token string) string {
	return s.BaseURL + "/" + s.BotName + "?start=" + token
}

// NewToken returns a random URL-safe token carrying 96 bits of entropy.
func NewToken() (string, error) {
	return randomString(tokenBytes)
}

// FallbackToken builds a self-describing token for ownerID.
func FallbackToken(ownerID int64) string {
	suffix, err := randomString(fallbackTokenBytes)
	if err != nil {
		suffix = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return FallbackPrefix + strconv.FormatInt(ownerID, 10) + "_" + suffix
}

// FallbackOwner decodes the owner id embedded in a fallback token. The
// random suffix is optional and never checked.
func FallbackOwner(token string) (int64, bool) {
	rest, ok := strings.CutPrefix(token, FallbackPrefix)
	if !ok {
		return 0, false
	}
	idPart, _, _ := strings.Cut(rest, "_")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// TokenPrefix is the part of a token safe to show in logs and reports.
func TokenPrefix(token string) string {
	const n = 8
	if len(token) <= n {
		return token
	}
	return token[:n]
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
