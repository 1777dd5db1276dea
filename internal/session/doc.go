// Package session provides bounded, persisted conversation histories.
//
// A Session is the ordered sequence of turns for one logical
// conversation, scoped by a stable key (one per agent). Histories are
// persisted through the kv port on every mutation and truncated to a
// configurable maximum so the persisted size stays constant. Persistence
// failures are never fatal: a corrupt payload falls back to the seed
// turn, and a failed write leaves the in-memory conversation intact.
package session
