package tasker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/klntsky/compression-bench/internal/models"
)

// Tasker is a single polling goroutine that claims and processes Attempts.
// It has no concept of "capacity" beyond the single-attempt-at-a-time
// sequential contract it runs — unlike a session worker bounding a shared
// concurrent-session budget, a Tasker's only resource constraint is
// itself.
type Tasker struct {
	id       string
	repo     Repository
	eval     Compressor
	metrics  Recorder
	interval time.Duration
	jitter   time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.RWMutex
	status            TaskerStatus
	currentAttemptID  int64
	attemptsProcessed int
	lastActivity      time.Time
}

// NewTasker builds a Tasker. interval/jitter configure the sleep applied
// after a poll that found no eligible attempt or returned an error.
func NewTasker(id string, repo Repository, eval Compressor, metrics Recorder, interval, jitter time.Duration) *Tasker {
	return &Tasker{
		id:           id,
		repo:         repo,
		eval:         eval,
		metrics:      metrics,
		interval:     interval,
		jitter:       jitter,
		stopCh:       make(chan struct{}),
		status:       StatusIdle,
		lastActivity: time.Now(),
	}
}

// Run starts the polling loop in the calling goroutine and blocks until
// ctx is cancelled or Stop is called.
func (t *Tasker) Run(ctx context.Context) {
	t.wg.Add(1)
	defer t.wg.Done()

	log := slog.With("tasker_id", t.id)
	log.Info("tasker started")

	for {
		select {
		case <-t.stopCh:
			log.Info("tasker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, tasker shutting down")
			return
		default:
		}

		processed, err := t.pollAndProcess(ctx)
		if err != nil {
			log.Error("error polling for work", "error", err)
			t.sleep(t.pollInterval())
			continue
		}
		if !processed {
			t.sleep(t.pollInterval())
		}
	}
}

// Stop signals the tasker to stop and waits for it to return. The signal
// is observed between polls, so an attempt already being processed runs
// through all of its tests (or until it aborts) before the tasker exits.
func (t *Tasker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

// Health reports the tasker's current activity snapshot.
func (t *Tasker) Health() TaskerHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TaskerHealth{
		ID:                t.id,
		Status:            t.status,
		CurrentAttemptID:  t.currentAttemptID,
		AttemptsProcessed: t.attemptsProcessed,
		LastActivity:      t.lastActivity,
	}
}

func (t *Tasker) sleep(d time.Duration) {
	select {
	case <-t.stopCh:
	case <-time.After(d):
	}
}

func (t *Tasker) pollInterval() time.Duration {
	if t.jitter <= 0 {
		return t.interval
	}
	offset := time.Duration(rand.Int64N(int64(2 * t.jitter)))
	return t.interval - t.jitter + offset
}

// pollAndProcess runs one iteration of the outer loop: claim the next
// eligible attempt and run it to completion or abort. It reports the
// eligibility observed on this poll (0 or 1, since the selection query
// returns at most one attempt) through the pending-attempts gauge.
// The returned bool reports whether an attempt was found (false means the
// caller should sleep for the poll interval).
func (t *Tasker) pollAndProcess(ctx context.Context) (bool, error) {
	attempt, err := t.repo.NextAttemptWithPendingWork(ctx)
	if err != nil {
		return false, fmt.Errorf("tasker: next attempt with pending work: %w", err)
	}
	if attempt == nil {
		t.metrics.SetPendingAttempts(0)
		return false, nil
	}
	t.metrics.SetPendingAttempts(1)

	t.metrics.AttemptClaimed()
	t.setStatus(StatusWorking, attempt.ID)
	defer t.setStatus(StatusIdle, 0)

	tests, err := t.repo.UnfinishedActiveTests(ctx, attempt.ID)
	if err != nil {
		return true, fmt.Errorf("tasker: unfinished active tests: %w", err)
	}

	if err := t.processAttempt(ctx, attempt, tests); err != nil {
		return true, err
	}

	t.mu.Lock()
	t.attemptsProcessed++
	t.mu.Unlock()

	return true, nil
}

// processAttempt claims and runs each unfinished active test for attempt,
// given the test list already fetched by the caller, then finalizes the
// attempt with the average compression ratio over the tests that passed.
func (t *Tasker) processAttempt(ctx context.Context, attempt *models.Attempt, tests []models.Test) error {
	if len(tests) == 0 {
		return t.repo.MarkAttemptComplete(ctx, attempt.ID, 0)
	}

	var testsPassed int
	var ratioSum float64

	for _, test := range tests {
		claimed, err := t.repo.ClaimTestResult(ctx, attempt.ID, test.ID)
		if err != nil {
			return fmt.Errorf("tasker: claim test result: %w", err)
		}
		if !claimed {
			continue
		}
		t.metrics.TestClaimed()

		outcome, aborted := t.runClaimedTest(ctx, attempt, test)
		if aborted {
			return nil
		}
		if outcome.valid {
			testsPassed++
			ratioSum += outcome.ratio
		}
	}

	average := 0.0
	if testsPassed > 0 {
		average = ratioSum / float64(testsPassed)
	}
	return t.repo.MarkAttemptComplete(ctx, attempt.ID, average)
}

type testOutcome struct {
	valid bool
	ratio float64
}

// runClaimedTest evaluates one already-claimed test and writes its
// terminal TestResult. aborted reports whether the caller must stop the
// per-test loop (any FAILED outcome aborts the rest of the attempt).
func (t *Tasker) runClaimedTest(ctx context.Context, attempt *models.Attempt, test models.Test) (testOutcome, bool) {
	tc, err := test.Case()
	if err != nil {
		t.finalizeFailed(ctx, attempt.ID, test.ID)
		return testOutcome{}, true
	}

	var uncompressedTotal int64
	if test.TotalTokens != nil {
		uncompressedTotal = *test.TotalTokens
	}

	result, err := t.eval.EvaluateCompression(ctx, tc, attempt.CompressingPrompt, attempt.Model, test.Model, uncompressedTotal)
	t.metrics.LLMRequest("compress")
	if err != nil {
		// EvaluateCompression errors when the compression call fails
		// (before the answer phase runs) or when the two request records
		// cannot be combined into one request_json.
		t.finalizeFailed(ctx, attempt.ID, test.ID)
		return testOutcome{}, true
	}
	t.metrics.LLMRequest("answer")

	if !result.Evaluation.Passed {
		t.finalizeFailed(ctx, attempt.ID, test.ID)
		return testOutcome{}, true
	}

	requestJSON := string(result.RequestJSON)
	if err := t.repo.FinalizeTestResult(ctx, models.TestResult{
		AttemptID:        attempt.ID,
		TestID:           test.ID,
		Status:           models.StatusValid,
		CompressedPrompt: &result.CompressedTask,
		CompressionRatio: &result.CompressionRatio,
		RequestJSON:      &requestJSON,
	}); err != nil {
		slog.Error("tasker: finalize valid test result failed", "attempt_id", attempt.ID, "test_id", test.ID, "error", err)
		return testOutcome{}, true
	}

	t.metrics.TestValid()
	return testOutcome{valid: true, ratio: result.CompressionRatio}, false
}

func (t *Tasker) finalizeFailed(ctx context.Context, attemptID, testID int64) {
	if err := t.repo.FinalizeTestResult(ctx, models.TestResult{
		AttemptID: attemptID,
		TestID:    testID,
		Status:    models.StatusFailed,
	}); err != nil {
		slog.Error("tasker: finalize failed test result failed", "attempt_id", attemptID, "test_id", testID, "error", err)
	}
	t.metrics.TestFailed()
}

func (t *Tasker) setStatus(status TaskerStatus, attemptID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.currentAttemptID = attemptID
	t.lastActivity = time.Now()
}
