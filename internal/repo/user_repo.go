// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the idempotent user upsert.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

// UpsertUser inserts u or, when a row with the same ID exists, refreshes its
// display name, username and last-seen time. FirstSeen of an existing row is
// never overwritten.
func UpsertUser(ctx context.Context, db *gorm.DB, u domain.User, now time.Time) error {
	ts := domain.FormatTimestamp(now)
	u.FirstSeen = ts
	u.LastSeen = ts
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "username", "last_seen"}),
		}).
		Create(&u).Error
}
