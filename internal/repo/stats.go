// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries over the relay
// audit trail, used by the privileged report footer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

// RelayStats returns the total number of relay records and the timestamp of
// the newest one. When the table is empty, the count is 0 and latest is nil.
//
// Return values:
//   - count:  total relay records
//   - latest: pointer to the newest record time, or nil if no rows
//   - err:    database error, if any
func RelayStats(ctx context.Context, db *gorm.DB) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.RelayRecord{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Timestamps are fixed-width text, so ORDER BY matches time order.
	var row struct {
		Timestamp string
	}
	if err = db.WithContext(ctx).Model(&domain.RelayRecord{}).
		Select("timestamp").Order("timestamp DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	t, err := domain.ParseTimestamp(row.Timestamp)
	if err != nil {
		return count, nil, nil
	}
	return count, &t, nil
}
