// Package services defines the relay's business logic: issuing and resolving
// links, the one-shot compose flow, and the privileged audit report.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing texts is performed by the bot layer.
// Storage failures are never surfaced through these values; they are logged
// and absorbed where they happen.
package services

import "errors"

var (
	// ErrLinkNotFound indicates an unknown or inactive link token.
	ErrLinkNotFound = errors.New("link not found")

	// ErrUnauthorized is returned when a privileged operation is invoked by
	// an identity other than the configured administrator.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnsupportedContent is returned for payloads outside the supported
	// content kinds. No audit record is written for them.
	ErrUnsupportedContent = errors.New("unsupported content")

	// ErrNoSession is returned when a payload arrives without a pending
	// compose session.
	ErrNoSession = errors.New("no compose session")

	// ErrDeliveryFailed reports that forwarding to the link owner failed.
	ErrDeliveryFailed = errors.New("delivery failed")
)
