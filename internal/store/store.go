// Package store implements the Repository operations against PostgreSQL
// through database/sql with the pgx driver, rather than through an ORM:
// generated query/mutation code produced by a codegen step from schema
// declarations is out of reach here, so the relational layer is
// hand-written SQL over jackc/pgx/v5 instead — see DESIGN.md for the
// full justification. The transactional-claim idiom (claim a row via
// INSERT ... ON CONFLICT DO NOTHING, decide the winner by RowsAffected)
// and the client/migration wiring follow an established worker-pool
// database layer's approach to the same problem.
package store

import (
	"context"

	"github.com/klntsky/compression-bench/internal/models"
)

// Repository is the typed persistence surface the tasker, evaluator
// driver, and admin seeder depend on. It is implemented by *Postgres.
type Repository interface {
	// UpsertTests bulk-inserts Tests keyed by the (model, payload)
	// uniqueness invariant; existing rows are left untouched. Returns the
	// number of newly inserted rows.
	UpsertTests(ctx context.Context, rows []models.Test) (int, error)

	// NextAttemptWithPendingWork returns the oldest-timestamped Attempt
	// with pending work, or (nil, nil) when none exists.
	NextAttemptWithPendingWork(ctx context.Context) (*models.Attempt, error)

	// UnfinishedActiveTests returns every active Test for which this
	// attempt has no TestResult, or only a PENDING one.
	UnfinishedActiveTests(ctx context.Context, attemptID int64) ([]models.Test, error)

	// ClaimTestResult atomically inserts a PENDING TestResult row,
	// returning true on success and false when another worker already
	// owns the (attempt, test) slot.
	ClaimTestResult(ctx context.Context, attemptID, testID int64) (bool, error)

	// FinalizeTestResult updates the PENDING row in place with a
	// terminal status. Idempotent when invoked with the same status.
	FinalizeTestResult(ctx context.Context, result models.TestResult) error

	// MarkAttemptComplete sets the Attempt's terminal field.
	MarkAttemptComplete(ctx context.Context, attemptID int64, averageCompressionRatio float64) error

	// FindUserByLoginOrEmail looks up a User for the admin seeder's
	// idempotency check.
	FindUserByLoginOrEmail(ctx context.Context, login, email string) (*models.User, bool, error)

	// InsertUser inserts a new User row.
	InsertUser(ctx context.Context, u models.User) error
}
