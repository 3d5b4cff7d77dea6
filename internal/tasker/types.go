// Package tasker implements the polling scheduler that drives Attempts
// through the compress/evaluate pipeline and persists TestResults.
package tasker

import (
	"context"
	"time"

	"github.com/klntsky/compression-bench/internal/evaluator"
	"github.com/klntsky/compression-bench/internal/models"
)

// TaskerStatus is the current activity of one Tasker goroutine.
type TaskerStatus string

const (
	StatusIdle    TaskerStatus = "idle"
	StatusWorking TaskerStatus = "working"
)

// Repository is the subset of store.Repository the tasker depends on,
// declared locally so tests can substitute a fake without importing the
// Postgres-backed implementation.
type Repository interface {
	NextAttemptWithPendingWork(ctx context.Context) (*models.Attempt, error)
	UnfinishedActiveTests(ctx context.Context, attemptID int64) ([]models.Test, error)
	ClaimTestResult(ctx context.Context, attemptID, testID int64) (bool, error)
	FinalizeTestResult(ctx context.Context, result models.TestResult) error
	MarkAttemptComplete(ctx context.Context, attemptID int64, averageCompressionRatio float64) error
}

// Compressor is the subset of evaluator.Evaluator the tasker calls.
type Compressor interface {
	EvaluateCompression(ctx context.Context, tc models.TestCase, compressingPrompt, compressionModel, evaluationModel string, uncompressedTotalTokens int64) (evaluator.TestCompressionResult, error)
}

// Recorder is the metrics sink the tasker reports into. internal/metrics.Tasker
// satisfies this; tests may substitute a no-op.
type Recorder interface {
	AttemptClaimed()
	TestClaimed()
	TestValid()
	TestFailed()
	LLMRequest(op string)
	SetPendingAttempts(n int)
}

// PoolHealth is the aggregate health snapshot for the /healthz surface:
// the tasker has no concurrent-session cap to report, so it carries the
// fields that remain meaningful for a polling scheduler.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	PodID         string         `json:"pod_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	WorkerStats   []TaskerHealth `json:"worker_stats"`
}

// TaskerHealth is the health snapshot for one Tasker goroutine.
type TaskerHealth struct {
	ID                string       `json:"id"`
	Status            TaskerStatus `json:"status"`
	CurrentAttemptID  int64        `json:"current_attempt_id,omitempty"`
	AttemptsProcessed int          `json:"attempts_processed"`
	LastActivity      time.Time    `json:"last_activity"`
}
