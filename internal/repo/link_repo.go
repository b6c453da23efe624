// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Link model.
//
// Error semantics:
//   - When a link is not found (or is inactive), functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - Unique-constraint violations surface as ErrDuplicate.
//   - Other DB errors are propagated as-is.
//
// Functions:
//
//   - GetActiveLink(ctx, db, ownerID) -> *domain.Link, error
//     Returns the owner's active link, or ErrNotFound.
//
//   - GetOrCreateLink(ctx, db, ownerID, gen, now) -> *domain.Link, created, error
//     Returns the active link for ownerID, inserting one with a token from gen
//     when none exists. Concurrent callers for the same owner converge on a
//     single row: the partial unique index on (owner_id WHERE active) rejects
//     the loser, which then re-reads the winner's row.
//
//   - ResolveToken(ctx, db, token) -> ownerID, error
//     Maps an active token to its owner, or ErrNotFound.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation (token collision or a
// second active link for the same owner).
var ErrDuplicate = errors.New("duplicate")

// TokenFunc produces a fresh candidate link token.
type TokenFunc func() (string, error)

// maxCreateAttempts bounds retries after token collisions.
const maxCreateAttempts = 3

// GetActiveLink returns the active link owned by ownerID.
func GetActiveLink(ctx context.Context, db *gorm.DB, ownerID int64) (*domain.Link, error) {
	var l domain.Link
	err := db.WithContext(ctx).
		Where("owner_id = ? AND active = ?", ownerID, true).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetOrCreateLink returns the owner's active link, creating it if needed.
// The boolean reports whether a new row was inserted.
func GetOrCreateLink(ctx context.Context, db *gorm.DB, ownerID int64, gen TokenFunc, now time.Time) (*domain.Link, bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		var (
			out     *domain.Link
			created bool
		)
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := GetActiveLink(ctx, tx, ownerID)
			if err == nil {
				out = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			token, err := gen()
			if err != nil {
				return err
			}
			l := &domain.Link{
				Token:     token,
				OwnerID:   ownerID,
				CreatedAt: domain.FormatTimestamp(now),
				Active:    true,
			}
			if err := tx.Create(l).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return err
			}
			out, created = l, true
			return nil
		})
		if err == nil {
			return out, created, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, false, err
		}
		lastErr = err

		// Either another writer created the owner's link first, or the random
		// token collided with an existing one. Prefer the winner's row.
		if l, err := GetActiveLink(ctx, db, ownerID); err == nil {
			return l, false, nil
		}
	}
	return nil, false, lastErr
}

// ResolveToken returns the owner of an active link.
func ResolveToken(ctx context.Context, db *gorm.DB, token string) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, ErrNotFound
	}
	var l domain.Link
	err := db.WithContext(ctx).
		Where("token = ? AND active = ?", token, true).
		First(&l).Error
	if err != nil {
		return 0, err
	}
	return l.OwnerID, nil
}

// isUniqueViolation matches unique-constraint errors across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}
