// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only RelayRecord audit trail.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

// ErrInvalidKind rejects records whose kind is not a supported content kind.
var ErrInvalidKind = errors.New("invalid content kind")

// AppendRelayRecord inserts rec. Timestamp is filled from now when empty;
// the generated ID is written back into rec.
func AppendRelayRecord(ctx context.Context, db *gorm.DB, rec *domain.RelayRecord, now time.Time) error {
	if !rec.Kind.Valid() {
		return ErrInvalidKind
	}
	if rec.Timestamp == "" {
		rec.Timestamp = domain.FormatTimestamp(now)
	}
	return db.WithContext(ctx).Create(rec).Error
}

// RecentRelayRecords returns at most limit records, newest first
// (timestamp DESC, then ID DESC for records sharing a timestamp).
// A non-positive limit yields an empty slice without touching the DB.
func RecentRelayRecords(ctx context.Context, db *gorm.DB, limit int) ([]domain.RelayRecord, error) {
	if limit <= 0 {
		return []domain.RelayRecord{}, nil
	}
	var out []domain.RelayRecord
	err := db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
