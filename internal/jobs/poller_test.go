// ABOUTME: Tests for the job tracker and status poller
// ABOUTME: Validates per-job isolation, idle start, stop-discard semantics, and terminal retention

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdeck/askdeck/internal/backend"
	"github.com/askdeck/askdeck/internal/kv"
)

// fakeFetcher serves canned results per job ID and counts requests.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]*backend.JobResult
	errs    map[string]error
	calls   int32
	block   chan struct{} // when set, JobStatus waits until closed
	started chan struct{} // signalled once a blocked call has begun
}

func (f *fakeFetcher) JobStatus(ctx context.Context, jobID string) (*backend.JobResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		if f.started != nil {
			select {
			case f.started <- struct{}{}:
			default:
			}
		}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[jobID]; ok {
		return nil, err
	}
	if res, ok := f.results[jobID]; ok {
		return res, nil
	}
	return nil, errors.New("unknown job")
}

func findStatus(t *testing.T, tracker *Tracker, jobID string) Status {
	t.Helper()
	for _, st := range tracker.Snapshot() {
		if st.JobID == jobID {
			return st
		}
	}
	t.Fatalf("no status for job %s", jobID)
	return Status{}
}

func TestTracker_TrackRestoresAfterRestart(t *testing.T) {
	mem := kv.NewMemory()

	tracker := NewTracker(mem, nil)
	tracker.Track("job-a")
	tracker.Track("job-b")
	tracker.Track("job-a") // duplicate is a no-op

	restored := NewTracker(mem, nil)
	assert.Equal(t, []string{"job-a", "job-b"}, restored.PendingIDs())
}

func TestTracker_Untrack(t *testing.T) {
	mem := kv.NewMemory()
	tracker := NewTracker(mem, nil)
	tracker.Track("job-a")

	tracker.Untrack("job-a")

	assert.Empty(t, tracker.PendingIDs())
	assert.Empty(t, tracker.Snapshot())
	keys, err := mem.Keys(keyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPoller_PerJobIsolation(t *testing.T) {
	tracker := NewTracker(kv.NewMemory(), nil)
	tracker.Track("job-ok")
	tracker.Track("job-bad")

	fetcher := &fakeFetcher{
		results: map[string]*backend.JobResult{
			"job-ok": {Success: true, Message: "done", Data: json.RawMessage(`{"rows":3}`)},
		},
		errs: map[string]error{
			"job-bad": &backend.HTTPError{StatusCode: 500, Detail: "exploded"},
		},
	}

	poller := NewPoller(tracker, fetcher, time.Hour, nil)
	poller.tick(context.Background())

	ok := findStatus(t, tracker, "job-ok")
	assert.Equal(t, StateSucceeded, ok.State)
	assert.Equal(t, "done", ok.Detail)
	assert.JSONEq(t, `{"rows":3}`, string(ok.Result))
	assert.False(t, ok.LastCheckedAt.IsZero())

	bad := findStatus(t, tracker, "job-bad")
	assert.Equal(t, StateFailed, bad.State)
	assert.Contains(t, bad.Detail, "exploded")
}

func TestPoller_BackendFailureFieldRecordsFailed(t *testing.T) {
	tracker := NewTracker(kv.NewMemory(), nil)
	tracker.Track("job-x")

	fetcher := &fakeFetcher{
		results: map[string]*backend.JobResult{
			"job-x": {Success: false, Error: "index corrupted", Warnings: []string{"partial"}},
		},
	}

	NewPoller(tracker, fetcher, time.Hour, nil).tick(context.Background())

	st := findStatus(t, tracker, "job-x")
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "index corrupted", st.Detail)
	assert.Equal(t, []string{"partial"}, st.Warnings)
}

func TestPoller_NotReadyStaysPending(t *testing.T) {
	tracker := NewTracker(kv.NewMemory(), nil)
	tracker.Track("job-x")

	fetcher := &fakeFetcher{
		results: map[string]*backend.JobResult{
			"job-x": {Success: false, Message: "still processing"},
		},
	}

	NewPoller(tracker, fetcher, time.Hour, nil).tick(context.Background())

	st := findStatus(t, tracker, "job-x")
	assert.Equal(t, StatePending, st.State)
	assert.Equal(t, []string{"job-x"}, tracker.PendingIDs())
}

func TestPoller_EmptySetSchedulesNothing(t *testing.T) {
	tracker := NewTracker(kv.NewMemory(), nil)
	fetcher := &fakeFetcher{}

	poller := NewPoller(tracker, fetcher, time.Millisecond, nil)
	poller.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fetcher.calls), "idle poller must not issue requests")
	poller.Stop()
}

func TestPoller_StartPollsAndRepeats(t *testing.T) {
	tracker := NewTracker(kv.NewMemory(), nil)
	tracker.Track("job-slow")

	fetcher := &fakeFetcher{
		results: map[string]*backend.JobResult{
			"job-slow": {Success: false, Message: "processing"},
		},
	}

	poller := NewPoller(tracker, fetcher, 5*time.Millisecond, nil)
	poller.Start(context.Background())
	defer poller.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fetcher.calls) >= 2
	}, time.Second, time.Millisecond, "poller should fire on every interval")
}

func TestPoller_StopDiscardsInFlightResults(t *testing.T) {
	tracker := NewTracker(kv.NewMemory(), nil)
	tracker.Track("job-a")

	fetcher := &fakeFetcher{
		results: map[string]*backend.JobResult{
			"job-a": {Success: true, Message: "done"},
		},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}

	poller := NewPoller(tracker, fetcher, time.Hour, nil)
	poller.Start(context.Background())

	// Wait for the first request to be in flight
	<-fetcher.started

	stopDone := make(chan struct{})
	go func() {
		poller.Stop()
		close(stopDone)
	}()

	// Let the in-flight request complete after Stop has begun
	time.Sleep(10 * time.Millisecond)
	close(fetcher.block)
	<-stopDone

	st := findStatus(t, tracker, "job-a")
	assert.Equal(t, StatePending, st.State, "results arriving after stop are discarded")
}

func TestPoller_TerminalJobDroppedFromPersistedSet(t *testing.T) {
	mem := kv.NewMemory()
	tracker := NewTracker(mem, nil)
	tracker.Track("job-done")

	fetcher := &fakeFetcher{
		results: map[string]*backend.JobResult{
			"job-done": {Success: true, Message: "complete"},
		},
	}

	NewPoller(tracker, fetcher, time.Hour, nil).tick(context.Background())

	// The persisted registration is gone, so a restart won't re-poll it
	keys, err := mem.Keys(keyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// But the last status remains in memory for display
	st := findStatus(t, tracker, "job-done")
	assert.Equal(t, StateSucceeded, st.State)
	assert.Empty(t, tracker.PendingIDs())
}

func TestPoller_StopBeforeStart(t *testing.T) {
	tracker := NewTracker(kv.NewMemory(), nil)
	poller := NewPoller(tracker, &fakeFetcher{}, time.Millisecond, nil)

	poller.Stop()
	poller.Start(context.Background())
	poller.Stop()
}
