package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/klntsky/compression-bench/internal/models"
)

// Postgres implements Repository over a *sql.DB opened through the pgx
// driver. It holds no ORM layer: every operation is a hand-written
// query against the same driver-level connection an ORM client would
// otherwise wrap.
type Postgres struct {
	db *sql.DB
}

// DB exposes the underlying connection for health checks.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// UpsertTests implements store.Repository.
func (p *Postgres) UpsertTests(ctx context.Context, rows []models.Test) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin upsert tests: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, row := range rows {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tests (model, payload, is_active, total_tokens)
			VALUES ($1, $2::jsonb, $3, $4)
			ON CONFLICT (model, payload) DO NOTHING`,
			row.Model, row.Payload, row.IsActive, row.TotalTokens,
		)
		if err != nil {
			return 0, fmt.Errorf("store: upsert test: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("store: upsert test rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit upsert tests: %w", err)
	}
	return inserted, nil
}

// NextAttemptWithPendingWork implements store.Repository. It runs at
// Serializable isolation so the eligibility check is consistent as of one
// point in time. Returns (nil, nil) when no attempt qualifies. An attempt
// with zero active tests is eligible too, so processAttempt can finalize
// it with an average of 0 on first selection instead of sitting forever
// with its completion ratio unset.
func (p *Postgres) NextAttemptWithPendingWork(ctx context.Context) (*models.Attempt, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("store: begin next attempt: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT a.id, a."timestamp", a.compressing_prompt, a.model, a.login, a.average_compression_ratio
		FROM attempts a
		WHERE a.average_compression_ratio IS NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM test_results tr
		      WHERE tr.attempt_id = a.id AND tr.status = 'failed'
		  )
		  AND (
		      (
		          SELECT count(DISTINCT tr.test_id)
		          FROM test_results tr
		          JOIN tests t ON t.id = tr.test_id AND t.is_active
		          WHERE tr.attempt_id = a.id
		      ) < (
		          SELECT count(*) FROM tests t WHERE t.is_active
		      )
		      OR (SELECT count(*) FROM tests t WHERE t.is_active) = 0
		  )
		ORDER BY a."timestamp" ASC
		LIMIT 1`)

	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan next attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit next attempt: %w", err)
	}
	return attempt, nil
}

// UnfinishedActiveTests implements store.Repository.
func (p *Postgres) UnfinishedActiveTests(ctx context.Context, attemptID int64) ([]models.Test, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.model, t.payload::text, t.is_active, t.total_tokens
		FROM tests t
		WHERE t.is_active
		  AND NOT EXISTS (
		      SELECT 1 FROM test_results tr
		      WHERE tr.attempt_id = $1 AND tr.test_id = t.id AND tr.status != 'pending'
		  )
		ORDER BY t.id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("store: query unfinished active tests: %w", err)
	}
	defer rows.Close()

	var tests []models.Test
	for rows.Next() {
		var t models.Test
		if err := rows.Scan(&t.ID, &t.Model, &t.Payload, &t.IsActive, &t.TotalTokens); err != nil {
			return nil, fmt.Errorf("store: scan test: %w", err)
		}
		tests = append(tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate unfinished active tests: %w", err)
	}
	return tests, nil
}

// ClaimTestResult implements store.Repository. It relies solely on the
// composite primary key on test_results(attempt_id, test_id) to make the
// claim atomic: no existence check precedes the insert.
func (p *Postgres) ClaimTestResult(ctx context.Context, attemptID, testID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO test_results (attempt_id, test_id, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (attempt_id, test_id) DO NOTHING`,
		attemptID, testID)
	if err != nil {
		return false, fmt.Errorf("store: claim test result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim test result rows affected: %w", err)
	}
	return n == 1, nil
}

// FinalizeTestResult implements store.Repository.
func (p *Postgres) FinalizeTestResult(ctx context.Context, result models.TestResult) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE test_results
		SET status = $3,
		    compressed_prompt = $4,
		    compression_ratio = $5,
		    request_json = $6::jsonb,
		    last_modified = now()
		WHERE attempt_id = $1 AND test_id = $2`,
		result.AttemptID, result.TestID, string(result.Status),
		result.CompressedPrompt, result.CompressionRatio, result.RequestJSON)
	if err != nil {
		return fmt.Errorf("store: finalize test result: %w", err)
	}
	return nil
}

// MarkAttemptComplete implements store.Repository.
func (p *Postgres) MarkAttemptComplete(ctx context.Context, attemptID int64, averageCompressionRatio float64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE attempts SET average_compression_ratio = $2 WHERE id = $1`,
		attemptID, averageCompressionRatio)
	if err != nil {
		return fmt.Errorf("store: mark attempt complete: %w", err)
	}
	return nil
}

// FindUserByLoginOrEmail implements store.Repository.
func (p *Postgres) FindUserByLoginOrEmail(ctx context.Context, login, email string) (*models.User, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT login, email, password_hash, is_admin
		FROM users WHERE login = $1 OR email = $2 LIMIT 1`, login, email)

	var u models.User
	if err := row.Scan(&u.Login, &u.Email, &u.PasswordHash, &u.IsAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: find user: %w", err)
	}
	return &u, true, nil
}

// InsertUser implements store.Repository.
func (p *Postgres) InsertUser(ctx context.Context, u models.User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (login, email, password_hash, is_admin)
		VALUES ($1, $2, $3, $4)`,
		u.Login, u.Email, u.PasswordHash, u.IsAdmin)
	if err != nil {
		return fmt.Errorf("store: insert user: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows so scanAttempt can
// serve single- and multi-row callers alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*models.Attempt, error) {
	var a models.Attempt
	if err := row.Scan(&a.ID, &a.Timestamp, &a.CompressingPrompt, &a.Model, &a.Login, &a.AverageCompressionRatio); err != nil {
		return nil, err
	}
	return &a, nil
}
