// ABOUTME: Tracker owns the job ID -> status mapping for async backend jobs
// ABOUTME: Tracked IDs persist via the kv port so tracking survives a restart

package jobs

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/askdeck/askdeck/internal/kv"
)

// State is the lifecycle state of a tracked job.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

const keyPrefix = "job:"

// Status is the last known state of one tracked job.
type Status struct {
	JobID         string
	State         State
	Detail        string
	Warnings      []string
	Result        json.RawMessage
	LastCheckedAt time.Time
}

// Tracker is the sole writer of job statuses. Job IDs are registered by
// an external submitter via Track.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]*Status
	kv       kv.KV
	logger   *slog.Logger
}

// NewTracker creates a tracker and restores the tracked-ID set from
// persisted storage. Restored jobs start as pending until the next poll.
func NewTracker(store kv.KV, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		statuses: make(map[string]*Status),
		kv:       store,
		logger:   logger.With("component", "jobs"),
	}

	keys, err := store.Keys(keyPrefix)
	if err != nil {
		t.logger.Warn("failed to restore tracked jobs", "error", err)
		return t
	}
	for _, k := range keys {
		id := strings.TrimPrefix(k, keyPrefix)
		t.statuses[id] = &Status{JobID: id, State: StatePending}
	}
	if len(keys) > 0 {
		t.logger.Debug("restored tracked jobs", "count", len(keys))
	}
	return t
}

// Track registers a job ID for polling. Tracking an already-tracked ID
// is a no-op. The ID is persisted so tracking survives a restart;
// a persistence failure is logged and tracking continues in memory.
func (t *Tracker) Track(jobID string) {
	t.mu.Lock()
	if _, ok := t.statuses[jobID]; ok {
		t.mu.Unlock()
		return
	}
	t.statuses[jobID] = &Status{JobID: jobID, State: StatePending}
	t.mu.Unlock()

	if err := t.kv.Set(keyPrefix+jobID, []byte(jobID)); err != nil {
		t.logger.Warn("failed to persist tracked job", "job_id", jobID, "error", err)
	}
}

// Untrack stops tracking a job entirely, removing both its persisted
// registration and its in-memory status.
func (t *Tracker) Untrack(jobID string) {
	t.mu.Lock()
	delete(t.statuses, jobID)
	t.mu.Unlock()

	if err := t.kv.Delete(keyPrefix + jobID); err != nil {
		t.logger.Warn("failed to remove tracked job", "job_id", jobID, "error", err)
	}
}

// PendingIDs returns the IDs still awaiting a terminal status.
func (t *Tracker) PendingIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, st := range t.statuses {
		if st.State == StatePending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every known status, sorted by job ID.
func (t *Tracker) Snapshot() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Status, 0, len(t.statuses))
	for _, st := range t.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// setStatus records the result of one poll. A job reaching a terminal
// state is dropped from the persisted set on that read (its in-memory
// status remains until restart or Untrack).
func (t *Tracker) setStatus(status Status) {
	t.mu.Lock()
	existing, ok := t.statuses[status.JobID]
	if !ok {
		// Untracked while the request was in flight; drop the result.
		t.mu.Unlock()
		return
	}
	wasTerminal := existing.State != StatePending
	*existing = status
	t.mu.Unlock()

	if status.State != StatePending && !wasTerminal {
		if err := t.kv.Delete(keyPrefix + status.JobID); err != nil {
			t.logger.Warn("failed to drop terminal job from persisted set",
				"job_id", status.JobID, "error", err)
		}
		t.logger.Debug("job reached terminal state",
			"job_id", status.JobID, "state", string(status.State))
	}
}
