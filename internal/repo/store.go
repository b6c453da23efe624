package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

// Store exposes the package functions as methods so services can depend on
// small interfaces and tests can swap in fakes.
type Store struct{}

func (Store) UpsertUser(ctx context.Context, db *gorm.DB, u domain.User, now time.Time) error {
	return UpsertUser(ctx, db, u, now)
}

func (Store) GetOrCreateLink(ctx context.Context, db *gorm.DB, ownerID int64, gen TokenFunc, now time.Time) (*domain.Link, bool, error) {
	return GetOrCreateLink(ctx, db, ownerID, gen, now)
}

func (Store) ResolveToken(ctx context.Context, db *gorm.DB, token string) (int64, error) {
	return ResolveToken(ctx, db, token)
}

func (Store) AppendRelayRecord(ctx context.Context, db *gorm.DB, rec *domain.RelayRecord, now time.Time) error {
	return AppendRelayRecord(ctx, db, rec, now)
}

func (Store) RecentRelayRecords(ctx context.Context, db *gorm.DB, limit int) ([]domain.RelayRecord, error) {
	return RecentRelayRecords(ctx, db, limit)
}

func (Store) RelayStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return RelayStats(ctx, db)
}
