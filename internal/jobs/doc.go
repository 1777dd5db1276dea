// Package jobs tracks asynchronous backend jobs and polls their status.
//
// The Tracker owns the job-ID -> status mapping and persists the set of
// tracked IDs through the kv port so tracking survives a restart. The
// Poller queries the remote status endpoint for every tracked job on a
// fixed interval; each job's request is independent, so one failure
// never blocks the others. Jobs that reach a terminal state are dropped
// from the persisted set on that read; their last status stays in
// memory for display.
package jobs
