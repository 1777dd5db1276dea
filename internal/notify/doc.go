// Package notify provides an in-memory queue of ephemeral status
// events with optional auto-expiry, ordered most-recent-first.
package notify
