// Package domain defines the persistence models for users, anonymous links,
// and relay audit records. These types are mapped with GORM and form the core
// data layer of the relay bot.
package domain

import (
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC layout used for every persisted
// timestamp. Values formatted with it sort lexicographically in time order,
// which keeps ORDER BY on the text column correct in every dialect.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in TimestampLayout (always UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp. RFC 3339 values
// are accepted too so rows written by other tools still render.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// User is a platform account that interacted with the bot at least once.
// Rows are upserted on every interaction and never deleted.
//
// Fields:
//   - ID: platform user identity (primary key).
//   - DisplayName: full name as reported by the platform.
//   - Username: optional public handle (without '@').
//   - FirstSeen: first interaction; preserved across upserts.
//   - LastSeen: most recent interaction.
type User struct {
	ID          int64  `json:"id"           gorm:"primaryKey;autoIncrement:false"`
	DisplayName string `json:"display_name" gorm:"type:varchar(255);not null;default:''"`
	Username    string `json:"username"     gorm:"type:varchar(64);not null;default:''"`
	FirstSeen   string `json:"first_seen"   gorm:"type:varchar(32);not null"`
	LastSeen    string `json:"last_seen"    gorm:"type:varchar(32);not null"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Handle returns the label used for a user in audit output: "@username"
// when a public handle exists, otherwise the display name.
func (u User) Handle() string {
	if u.Username != "" {
		return "@" + strings.TrimPrefix(u.Username, "@")
	}
	return u.DisplayName
}

// Link maps an opaque token to the user who receives messages sent through
// it. At most one active link exists per owner (partial unique index); the
// owner of a link never changes.
type Link struct {
	Token     string `json:"token"      gorm:"type:varchar(64);primaryKey"`
	OwnerID   int64  `json:"owner_id"   gorm:"not null;index:idx_links_owner;uniqueIndex:ux_links_owner_active,where:active = true"`
	CreatedAt string `json:"created_at" gorm:"type:varchar(32);not null"`
	Active    bool   `json:"active"     gorm:"not null;default:true"`
}

// TableName returns the database table name for Link.
func (Link) TableName() string { return "links" }

// RelayRecord is the append-only audit entry written for every relayed
// message. It carries metadata only; media bytes are never stored.
type RelayRecord struct {
	ID                int64       `json:"id"                  gorm:"primaryKey;autoIncrement"`
	Token             string      `json:"token"               gorm:"type:varchar(64);not null;index:idx_messages_token"`
	SenderID          int64       `json:"sender_id"           gorm:"not null"`
	SenderDisplayName string      `json:"sender_display_name" gorm:"type:varchar(255);not null;default:''"`
	Kind              ContentKind `json:"kind"                gorm:"type:varchar(16);not null"`
	Summary           string      `json:"summary"             gorm:"type:text;not null"`
	Timestamp         string      `json:"timestamp"           gorm:"type:varchar(32);not null;index:idx_messages_ts"`
}

// TableName returns the database table name for RelayRecord.
func (RelayRecord) TableName() string { return "messages" }
