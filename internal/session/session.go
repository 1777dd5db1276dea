// ABOUTME: Session store for persisted conversation histories
// ABOUTME: Append-only turns with FIFO truncation, persisted via the kv port

package session

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdeck/askdeck/internal/kv"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// DefaultMaxTurns is the persisted-history cap when none is configured.
const DefaultMaxTurns = 50

const keyPrefix = "session:"

// Turn is one message in a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the bounded, persisted turn sequence for one conversation.
// All mutation goes through the owning Store.
type Session struct {
	mu    sync.RWMutex
	key   string
	seed  *Turn
	turns []Turn
}

// Key returns the stable identifier scoping this session's persistence.
func (s *Session) Key() string {
	return s.key
}

// Store opens sessions and owns their persistence.
type Store struct {
	kv       kv.KV
	maxTurns int
	logger   *slog.Logger
}

// NewStore creates a session store over the given KV. maxTurns <= 0
// selects DefaultMaxTurns. Pass nil logger for default.
func NewStore(store kv.KV, maxTurns int, logger *slog.Logger) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:       store,
		maxTurns: maxTurns,
		logger:   logger.With("component", "session"),
	}
}

// Open restores the session for key from persisted storage, or seeds it
// with the given initial turn (nil for empty). A corrupt persisted
// payload is treated as absent: the session falls back to the seed and
// a warning is logged.
func (s *Store) Open(key string, seed *Turn) *Session {
	sess := &Session{key: key, seed: seed}

	data, ok, err := s.kv.Get(keyPrefix + key)
	if err != nil {
		s.logger.Warn("failed to read persisted session, starting fresh",
			"session_key", key, "error", err)
	}
	if ok && err == nil {
		var turns []Turn
		if err := json.Unmarshal(data, &turns); err != nil {
			s.logger.Warn("corrupt persisted session, starting fresh",
				"session_key", key, "error", err)
		} else {
			sess.turns = turns
			return sess
		}
	}

	if seed != nil {
		sess.mu.Lock()
		sess.turns = []Turn{s.stamp(*seed)}
		s.persistLocked(sess)
		sess.mu.Unlock()
	}
	return sess
}

// Append adds one turn and persists the truncated window. The turn is
// assigned an ID and a local timestamp if it carries none. Returns the
// stored turn.
func (s *Store) Append(sess *Session, role Role, text string) Turn {
	turn := s.stamp(Turn{Role: role, Text: text})

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, turn)
	if len(sess.turns) > s.maxTurns {
		// Oldest turns are silently dropped to keep persisted size bounded.
		sess.turns = sess.turns[len(sess.turns)-s.maxTurns:]
	}
	s.persistLocked(sess)
	return turn
}

// Reset replaces all turns with just the seed (or empties the session
// if it has none) and persists immediately so a restart does not
// resurrect the prior conversation.
func (s *Store) Reset(sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.seed != nil {
		sess.turns = []Turn{s.stamp(*sess.seed)}
	} else {
		sess.turns = nil
	}
	s.persistLocked(sess)
}

// Turns returns a copy of the session's turns in order.
func (s *Store) Turns(sess *Session) []Turn {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Remove deletes the persisted history for key.
func (s *Store) Remove(key string) error {
	return s.kv.Delete(keyPrefix + key)
}

// Sessions lists the keys of all persisted sessions.
func (s *Store) Sessions() ([]string, error) {
	keys, err := s.kv.Keys(keyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, keyPrefix))
	}
	return out, nil
}

// stamp fills in the generated fields of a turn.
func (s *Store) stamp(t Turn) Turn {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return t
}

// persistLocked writes the session's current turns through the kv
// port. Must be called with sess.mu held: keeping the lock through the
// Set serializes snapshots in append order, so a slow write can never
// land after (and clobber) a newer one. Write failures are logged and
// swallowed: the conversation continues in memory but may not survive
// a restart.
func (s *Store) persistLocked(sess *Session) {
	data, err := json.Marshal(sess.turns)
	if err != nil {
		s.logger.Warn("failed to encode session", "session_key", sess.key, "error", err)
		return
	}

	if err := s.kv.Set(keyPrefix+sess.key, data); err != nil {
		s.logger.Warn("failed to persist session", "session_key", sess.key, "error", err)
	}
}
