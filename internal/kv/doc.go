// Package kv provides the key-value persistence port used for session
// history and job tracking, with SQLite-backed and in-memory implementations.
package kv
