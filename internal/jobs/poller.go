// ABOUTME: Background poller that queries the remote status endpoint per tracked job
// ABOUTME: One independent request per job per tick; results after Stop are discarded

package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/askdeck/askdeck/internal/backend"
)

// StatusFetcher is what the poller needs from the backend client.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*backend.JobResult, error)
}

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = 10 * time.Second

// Poller periodically refreshes the status of every tracked job.
type Poller struct {
	tracker  *Tracker
	fetcher  StatusFetcher
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller over the given tracker and status client.
// interval <= 0 selects DefaultInterval. Pass nil logger for default.
func NewPoller(tracker *Tracker, fetcher StatusFetcher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		tracker:  tracker,
		fetcher:  fetcher,
		interval: interval,
		logger:   logger.With("component", "poller"),
	}
}

// Start polls once immediately, then on every interval, until ctx is
// cancelled or Stop is called. If no jobs are pending at start time the
// poller schedules nothing: no timer, no requests.
func (p *Poller) Start(ctx context.Context) {
	if len(p.tracker.PendingIDs()) == 0 {
		p.logger.Debug("no tracked jobs, poller idle")
		return
	}

	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.stopped || p.done != nil {
		p.mu.Unlock()
		cancel()
		return
	}
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)

		p.tick(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop cancels the interval timer and marks the poller stopped.
// In-flight requests are allowed to complete but their results are
// discarded. Safe to call multiple times and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// tick issues one status request per pending job, concurrently and
// independently, and waits for all of them.
func (p *Poller) tick(ctx context.Context) {
	ids := p.tracker.PendingIDs()
	if len(ids) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			p.poll(ctx, jobID)
		}(id)
	}
	wg.Wait()
}

// poll fetches one job's status and applies it. A request or HTTP
// failure records state=failed with the error detail captured.
func (p *Poller) poll(ctx context.Context, jobID string) {
	result, err := p.fetcher.JobStatus(ctx, jobID)

	status := Status{JobID: jobID, LastCheckedAt: time.Now()}
	switch {
	case err != nil:
		status.State = StateFailed
		status.Detail = err.Error()
	case result.Success:
		status.State = StateSucceeded
		status.Detail = result.Message
		status.Warnings = result.Warnings
		status.Result = result.Data
	case result.Error != "":
		status.State = StateFailed
		status.Detail = result.Error
		status.Warnings = result.Warnings
	default:
		// Not successful and no error reported: still processing.
		status.State = StatePending
		status.Detail = result.Message
	}

	p.apply(status)
}

// apply records a poll result unless the poller has been stopped in the
// meantime: no update after Stop.
func (p *Poller) apply(status Status) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		p.logger.Debug("discarding poll result after stop", "job_id", status.JobID)
		return
	}

	p.tracker.setStatus(status)
}
