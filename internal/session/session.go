// Package session holds compose sessions: the per-sender (token, owner) pair
// remembered between opening someone's link and sending the one message that
// link visit authorizes.
//
// A sender has at most one pending session. Opening a new link replaces the
// previous one, and Consume hands a session out exactly once. Sessions live
// until consumed or cleared; a store-level TTL can bound that lifetime, but
// the default (zero) keeps them indefinitely.
package session

import (
	"context"
	"strconv"
)

// Pending is the compose state of one sender.
type Pending struct {
	Token   string `json:"token"`
	OwnerID int64  `json:"owner_id"`
}

// Store is implemented by MemoryStore and RedisStore.
type Store interface {
	// Open records p for senderID, replacing any pending session.
	Open(ctx context.Context, senderID int64, p Pending) error
	// Consume atomically reads and removes the sender's session. The boolean
	// is false when no session was pending.
	Consume(ctx context.Context, senderID int64) (Pending, bool, error)
	// Clear drops the sender's session, if any.
	Clear(ctx context.Context, senderID int64) error
}

func senderKey(senderID int64) string {
	return strconv.FormatInt(senderID, 10)
}
