// ABOUTME: In-memory notification queue with per-event TTL auto-expiry
// ABOUTME: Publish/dismiss/update/clear with an unread flag for the consumer

package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification event.
type Kind string

const (
	KindSuccess    Kind = "success"
	KindError      Kind = "error"
	KindWarning    Kind = "warning"
	KindInfo       Kind = "info"
	KindProcessing Kind = "processing"
)

// DefaultTTL is the auto-expiry delay when an event carries none.
const DefaultTTL = 5 * time.Second

// Event is one transient status message.
type Event struct {
	ID            string
	Kind          Kind
	Title         string
	Message       string
	CorrelationID string // optional job/task identifier
	CreatedAt     time.Time
	AutoExpire    *bool // nil resolves to true only for KindSuccess
	TTL           time.Duration
}

// expires reports whether this event should self-dismiss.
func (e *Event) expires() bool {
	if e.AutoExpire != nil {
		return *e.AutoExpire
	}
	return e.Kind == KindSuccess
}

// Patch carries partial fields for transitioning an existing event in
// place (e.g. processing -> success). Nil fields are left unchanged.
type Patch struct {
	Kind    *Kind
	Title   *string
	Message *string
}

// Queue is a process-wide, in-memory ordered collection of events.
// List order is most-recent-first; auto-expirations fire independently
// at their own deadlines and may complete out of publish order.
type Queue struct {
	mu     sync.RWMutex
	events []*Event
	timers map[string]*time.Timer
	unread bool
	closed bool
	ttl    time.Duration
	logger *slog.Logger
}

// NewQueue creates a queue. ttl <= 0 selects DefaultTTL for events that
// carry no explicit TTL. Pass nil logger for default.
func NewQueue(ttl time.Duration, logger *slog.Logger) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		timers: make(map[string]*time.Timer),
		ttl:    ttl,
		logger: logger.With("component", "notify"),
	}
}

// Publish assigns the event an ID and creation time, prepends it, and
// sets the unread flag. If the event auto-expires, a dismissal is
// scheduled after its TTL. Returns the assigned ID.
func (q *Queue) Publish(event Event) string {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now()
	if event.TTL <= 0 {
		event.TTL = q.ttl
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return event.ID
	}

	q.events = append([]*Event{&event}, q.events...)
	q.unread = true

	if event.expires() {
		q.scheduleExpiryLocked(&event)
	}

	q.logger.Debug("notification published",
		"id", event.ID, "kind", string(event.Kind), "title", event.Title)
	return event.ID
}

// Dismiss removes the event by ID if still present. Dismissing an
// already-removed ID is a no-op: auto-expiry and user dismissal race.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(id)
}

// Clear removes all events, cancels their expiry timers, and resets
// the unread flag.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.events = nil
	q.unread = false
}

// MarkAllRead resets the unread flag without altering entries.
func (q *Queue) MarkAllRead() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.unread = false
}

// Update transitions an existing event in place, refreshing CreatedAt
// (which reorders it to the front) and re-marking unread when the new
// kind is success or error. Expiry is rescheduled from the new kind.
// Updating an absent ID is a no-op and returns false.
func (q *Queue) Update(id string, patch Patch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, e := range q.events {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	event := q.events[idx]
	if patch.Kind != nil {
		event.Kind = *patch.Kind
		event.AutoExpire = nil
	}
	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Message != nil {
		event.Message = *patch.Message
	}
	event.CreatedAt = time.Now()

	// Move to front to keep most-recent-first ordering
	q.events = append(q.events[:idx], q.events[idx+1:]...)
	q.events = append([]*Event{event}, q.events...)

	if event.Kind == KindSuccess || event.Kind == KindError {
		q.unread = true
	}

	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	if event.expires() {
		q.scheduleExpiryLocked(event)
	}
	return true
}

// List returns the events most-recent-first.
func (q *Queue) List() []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Event, len(q.events))
	for i, e := range q.events {
		out[i] = *e
	}
	return out
}

// HasUnread reports whether anything was published or re-marked since
// the last MarkAllRead or Clear.
func (q *Queue) HasUnread() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.unread
}

// Close cancels all outstanding expiry timers and rejects further
// publishes. It is safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
}

// scheduleExpiryLocked arms the auto-dismiss timer. Must be called with
// mu held.
func (q *Queue) scheduleExpiryLocked(event *Event) {
	id := event.ID
	q.timers[id] = time.AfterFunc(event.TTL, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.removeLocked(id)
	})
}

// removeLocked deletes an event and its timer. Must be called with mu
// held. Absent IDs are ignored.
func (q *Queue) removeLocked(id string) {
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	for i, e := range q.events {
		if e.ID == id {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return
		}
	}
}
