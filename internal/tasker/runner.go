package tasker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner owns a fixed-size pool of Tasker goroutines, all polling the same
// Repository independently — concurrency-safe because claim_test_result's
// at-most-one-writer guarantee lives in the database, not in this process.
type Runner struct {
	podID   string
	taskers []*Tasker
	metrics Recorder

	started bool
	wg      sync.WaitGroup
}

// NewRunner builds a Runner with workerCount Taskers, each named
// "<podID>-tasker-<n>".
func NewRunner(podID string, repo Repository, eval Compressor, metrics Recorder, workerCount int, interval, jitter time.Duration) *Runner {
	taskers := make([]*Tasker, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		id := fmt.Sprintf("%s-tasker-%d", podID, i)
		taskers = append(taskers, NewTasker(id, repo, eval, metrics, interval, jitter))
	}
	return &Runner{podID: podID, taskers: taskers, metrics: metrics}
}

// Start spawns every Tasker's polling loop in its own goroutine. Safe to
// call only once; subsequent calls are no-ops.
func (r *Runner) Start(ctx context.Context) {
	if r.started {
		slog.Warn("runner already started, ignoring duplicate Start call", "pod_id", r.podID)
		return
	}
	r.started = true

	slog.Info("starting tasker runner", "pod_id", r.podID, "worker_count", len(r.taskers))
	for _, t := range r.taskers {
		r.wg.Add(1)
		go func(t *Tasker) {
			defer r.wg.Done()
			t.Run(ctx)
		}(t)
	}
}

// Stop signals every Tasker to stop and waits for all of them to return.
func (r *Runner) Stop() {
	slog.Info("stopping tasker runner gracefully", "pod_id", r.podID)
	for _, t := range r.taskers {
		t.Stop()
	}
	r.wg.Wait()
	slog.Info("tasker runner stopped", "pod_id", r.podID)
}

// Health aggregates every Tasker's health snapshot.
func (r *Runner) Health() PoolHealth {
	stats := make([]TaskerHealth, len(r.taskers))
	active := 0
	for i, t := range r.taskers {
		h := t.Health()
		stats[i] = h
		if h.Status == StatusWorking {
			active++
		}
	}
	return PoolHealth{
		IsHealthy:     len(r.taskers) > 0,
		PodID:         r.podID,
		ActiveWorkers: active,
		TotalWorkers:  len(r.taskers),
		WorkerStats:   stats,
	}
}
