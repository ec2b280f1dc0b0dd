// Package postgres implements queue.Queue on PostgreSQL.
//
// Claiming relies on `FOR UPDATE SKIP LOCKED`, so that concurrent workers
// never see the same Waiting run. Everything that touches a run's status
// re-checks legality (domain.FlowRunStatus.CanTransitTo) inside the same
// transaction which reads the current status.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kpool "github.com/flowpool/flowpool/pkg/conn/db/postgres/pool"
	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/domain/queue"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
)

type runQueue struct {
	pool kpool.Pool
}

var _ queue.Queue = &runQueue{}

// New connects to the database at dsn, applies the schema and returns
// the queue.
func New(ctx context.Context, dsn string) (queue.Queue, error) {
	p, err := kpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return Wrap(ctx, p)
}

// Wrap builds the queue over an existing connection pool.
func Wrap(ctx context.Context, p kpool.Pool) (queue.Queue, error) {
	if err := ensureSchema(ctx, p); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &runQueue{pool: p}, nil
}

func pgErrCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func (q *runQueue) Submit(ctx context.Context, pool string, spec domain.RunSpec) (string, error) {
	runID := uuid.NewString()

	command, err := json.Marshal(spec.Command)
	if err != nil {
		return "", err
	}
	volumes, err := json.Marshal(spec.Volumes)
	if err != nil {
		return "", err
	}
	env, err := json.Marshal(spec.Env)
	if err != nil {
		return "", err
	}
	params, err := json.Marshal(map[string]any(spec.Params))
	if err != nil {
		return "", err
	}

	var prevRunID *string
	if spec.PrevRunID != "" {
		prevRunID = &spec.PrevRunID
	}

	_, err = q.pool.Exec(
		ctx,
		`
		INSERT INTO "run" (
			"run_id", "pool_name", "status",
			"image", "command", "volumes", "env", "network",
			"params", "prev_run_id"
		)
		VALUES ($1, $2, 'waiting', $3, $4, $5, $6, $7, $8, $9)
		`,
		runID, pool,
		spec.Image, command, volumes, env, spec.Network,
		params, prevRunID,
	)
	if err != nil {
		if pgErrCode(err, pgerrcode.ForeignKeyViolation) {
			return "", fmt.Errorf("pool %s: %w", pool, domain.ErrMissing)
		}
		return "", err
	}
	return runID, nil
}

func (q *runQueue) Claim(
	ctx context.Context, pool string, workerName string, lease time.Duration,
) (domain.FlowRun, bool, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return domain.FlowRun{}, false, err
	}
	defer tx.Rollback(ctx)

	// the pool row lock serializes claims per pool, so the processing
	// count below cannot be outrun by a concurrent claim
	var paused bool
	var maxConcurrency int
	if err := tx.QueryRow(
		ctx,
		`SELECT "paused", "max_concurrency" FROM "pool" WHERE "name" = $1 FOR UPDATE`,
		pool,
	).Scan(&paused, &maxConcurrency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FlowRun{}, false, fmt.Errorf("pool %s: %w", pool, domain.ErrMissing)
		}
		return domain.FlowRun{}, false, err
	}
	if paused {
		return domain.FlowRun{}, false, fmt.Errorf("pool %s: %w", pool, domain.ErrPoolPaused)
	}

	if 0 < maxConcurrency {
		var processing int
		if err := tx.QueryRow(
			ctx,
			`
			SELECT count(*) FROM "run"
			WHERE "pool_name" = $1
				AND "status" IN ('claimed', 'starting', 'running', 'completing', 'aborting')
			`,
			pool,
		).Scan(&processing); err != nil {
			return domain.FlowRun{}, false, err
		}
		if maxConcurrency <= processing {
			return domain.FlowRun{}, false, nil
		}
	}

	row := tx.QueryRow(
		ctx,
		`
		WITH "target" AS (
			SELECT "run_id" FROM "run"
			WHERE "pool_name" = $1 AND "status" = 'waiting'
			ORDER BY "submitted_at"
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE "run" SET
			"status" = 'claimed',
			"worker_name" = $2,
			"lease_until" = now() + make_interval(secs => $3),
			"updated_at" = now()
		WHERE "run_id" IN (SELECT "run_id" FROM "target")
		RETURNING `+runColumns,
		pool, workerName, lease.Seconds(),
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FlowRun{}, false, nil
		}
		return domain.FlowRun{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.FlowRun{}, false, err
	}
	return run, true, nil
}

func (q *runQueue) ExtendLease(
	ctx context.Context, runID string, workerName string, lease time.Duration,
) error {
	tag, err := q.pool.Exec(
		ctx,
		`
		UPDATE "run" SET
			"lease_until" = now() + make_interval(secs => $3),
			"updated_at" = now()
		WHERE "run_id" = $1
			AND "worker_name" = $2
			AND "status" IN ('claimed', 'starting', 'running', 'completing', 'aborting')
		`,
		runID, workerName, lease.Seconds(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// distinguish "missing" from "lost"
	var found int
	if err := q.pool.QueryRow(
		ctx, `SELECT 1 FROM "run" WHERE "run_id" = $1`, runID,
	).Scan(&found); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("run %s: %w", runID, domain.ErrMissing)
		}
		return err
	}
	return fmt.Errorf("run %s: %w", runID, domain.ErrLeaseLost)
}

func (q *runQueue) SetStatus(ctx context.Context, runID string, next domain.FlowRunStatus) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	if err := tx.QueryRow(
		ctx,
		`SELECT "status" FROM "run" WHERE "run_id" = $1 FOR UPDATE`,
		runID,
	).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("run %s: %w", runID, domain.ErrMissing)
		}
		return err
	}

	currentStatus, err := domain.AsFlowRunStatus(current)
	if err != nil {
		return err
	}
	if !currentStatus.CanTransitTo(next) {
		return fmt.Errorf(
			"run %s: %s -> %s: %w",
			runID, currentStatus, next, domain.ErrInvalidStatusChange,
		)
	}

	if next.Processing() {
		_, err = tx.Exec(
			ctx,
			`UPDATE "run" SET "status" = $2, "updated_at" = now() WHERE "run_id" = $1`,
			runID, next.String(),
		)
	} else {
		// leaving processing drops the worker's lease
		_, err = tx.Exec(
			ctx,
			`
			UPDATE "run" SET
				"status" = $2, "lease_until" = NULL, "updated_at" = now()
			WHERE "run_id" = $1
			`,
			runID, next.String(),
		)
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (q *runQueue) SetExit(ctx context.Context, runID string, exit domain.RunExit) error {
	tag, err := q.pool.Exec(
		ctx,
		`
		UPDATE "run" SET
			"exit_code" = $2, "exit_reason" = $3, "updated_at" = now()
		WHERE "run_id" = $1
		`,
		runID, int16(exit.Code), exit.Reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("run %s: %w", runID, domain.ErrMissing)
	}
	return nil
}

func (q *runQueue) AppendLog(ctx context.Context, runID string, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	_, err := q.pool.Exec(
		ctx,
		`INSERT INTO "run_log" ("run_id", "chunk") VALUES ($1, $2)`,
		runID, chunk,
	)
	if err != nil && pgErrCode(err, pgerrcode.ForeignKeyViolation) {
		return fmt.Errorf("run %s: %w", runID, domain.ErrMissing)
	}
	return err
}

func (q *runQueue) Log(ctx context.Context, runID string) ([]byte, error) {
	rows, err := q.pool.Query(
		ctx,
		`SELECT "chunk" FROM "run_log" WHERE "run_id" = $1 ORDER BY "seq"`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	log := []byte{}
	for rows.Next() {
		var chunk []byte
		if err := rows.Scan(&chunk); err != nil {
			return nil, err
		}
		log = append(log, chunk...)
	}
	return log, rows.Err()
}

func (q *runQueue) Get(ctx context.Context, runID string) (domain.FlowRun, error) {
	row := q.pool.QueryRow(
		ctx,
		`SELECT `+runColumns+` FROM "run" WHERE "run_id" = $1`,
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FlowRun{}, fmt.Errorf("run %s: %w", runID, domain.ErrMissing)
	}
	return run, err
}

func (q *runQueue) Find(
	ctx context.Context, pool string, statuses []domain.FlowRunStatus,
) ([]domain.FlowRun, error) {
	statusNames := make([]string, len(statuses))
	for i, s := range statuses {
		statusNames[i] = s.String()
	}

	rows, err := q.pool.Query(
		ctx,
		`
		SELECT `+runColumns+` FROM "run"
		WHERE "pool_name" = $1
			AND (cardinality($2::varchar[]) = 0 OR "status" = ANY ($2::varchar[]))
		ORDER BY "submitted_at"
		`,
		pool, statusNames,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.FlowRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (q *runQueue) Requeue(ctx context.Context) (int, error) {
	recovered := 0

	// claimed but never started: back to the line
	tag, err := q.pool.Exec(
		ctx,
		`
		UPDATE "run" SET
			"status" = 'waiting', "worker_name" = '',
			"lease_until" = NULL, "updated_at" = now()
		WHERE "status" = 'claimed' AND "lease_until" < now()
		`,
	)
	if err != nil {
		return recovered, err
	}
	recovered += int(tag.RowsAffected())

	// aborted by a previous pass and still expired: fail them out
	tag, err = q.pool.Exec(
		ctx,
		`
		UPDATE "run" SET
			"status" = 'failed',
			"exit_code" = 255, "exit_reason" = 'worker lease expired',
			"lease_until" = NULL, "updated_at" = now()
		WHERE "status" = 'aborting' AND "lease_until" < now()
		`,
	)
	if err != nil {
		return recovered, err
	}
	recovered += int(tag.RowsAffected())

	// started but the worker is gone: container state unknown, abort.
	// this runs after the fail-out pass so a freshly aborted run stays
	// observable as 'aborting' until the next sweep.
	tag, err = q.pool.Exec(
		ctx,
		`
		UPDATE "run" SET "status" = 'aborting', "updated_at" = now()
		WHERE "status" IN ('starting', 'running', 'completing')
			AND "lease_until" < now()
		`,
	)
	if err != nil {
		return recovered, err
	}
	recovered += int(tag.RowsAffected())

	return recovered, nil
}

func (q *runQueue) CreatePool(ctx context.Context, pool domain.WorkPool) error {
	_, err := q.pool.Exec(
		ctx,
		`
		INSERT INTO "pool" ("name", "worker_type", "max_concurrency", "paused")
		VALUES ($1, $2, $3, $4)
		`,
		pool.Name, pool.WorkerType.String(), pool.MaxConcurrency, pool.Paused,
	)
	if err != nil && pgErrCode(err, pgerrcode.UniqueViolation) {
		return fmt.Errorf("pool %s: %w", pool.Name, domain.ErrConflict)
	}
	return err
}

func (q *runQueue) GetPool(ctx context.Context, name string) (domain.WorkPool, error) {
	pool := domain.WorkPool{}
	var workerType string
	err := q.pool.QueryRow(
		ctx,
		`SELECT "name", "worker_type", "max_concurrency", "paused" FROM "pool" WHERE "name" = $1`,
		name,
	).Scan(&pool.Name, &workerType, &pool.MaxConcurrency, &pool.Paused)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkPool{}, fmt.Errorf("pool %s: %w", name, domain.ErrMissing)
		}
		return domain.WorkPool{}, err
	}
	pool.WorkerType, err = domain.AsWorkerType(workerType)
	return pool, err
}

func (q *runQueue) SetPoolPaused(ctx context.Context, name string, paused bool) error {
	tag, err := q.pool.Exec(
		ctx,
		`UPDATE "pool" SET "paused" = $2 WHERE "name" = $1`,
		name, paused,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("pool %s: %w", name, domain.ErrMissing)
	}
	return nil
}

func (q *runQueue) Pools(ctx context.Context) ([]domain.WorkPool, error) {
	rows, err := q.pool.Query(
		ctx,
		`SELECT "name", "worker_type", "max_concurrency", "paused" FROM "pool" ORDER BY "name"`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pools := []domain.WorkPool{}
	for rows.Next() {
		pool := domain.WorkPool{}
		var workerType string
		if err := rows.Scan(&pool.Name, &workerType, &pool.MaxConcurrency, &pool.Paused); err != nil {
			return nil, err
		}
		if pool.WorkerType, err = domain.AsWorkerType(workerType); err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

const runColumns = `
	"run_id", "pool_name", "status", "worker_name", "lease_until",
	"image", "command", "volumes", "env", "network",
	"params", "prev_run_id", "exit_code", "exit_reason",
	"submitted_at", "updated_at"
`

func scanRun(row pgx.Row) (domain.FlowRun, error) {
	run := domain.FlowRun{}

	var status string
	var leaseUntil *time.Time
	var command, volumes, env, params []byte
	var prevRunID *string
	var exitCode *int16
	var exitReason *string

	if err := row.Scan(
		&run.ID, &run.Pool, &status, &run.WorkerName, &leaseUntil,
		&run.Spec.Image, &command, &volumes, &env, &run.Spec.Network,
		&params, &prevRunID, &exitCode, &exitReason,
		&run.SubmittedAt, &run.UpdatedAt,
	); err != nil {
		return domain.FlowRun{}, err
	}

	var err error
	if run.Status, err = domain.AsFlowRunStatus(status); err != nil {
		return domain.FlowRun{}, err
	}
	if leaseUntil != nil {
		run.LeaseUntil = *leaseUntil
	}
	if err := json.Unmarshal(command, &run.Spec.Command); err != nil {
		return domain.FlowRun{}, err
	}
	if err := json.Unmarshal(volumes, &run.Spec.Volumes); err != nil {
		return domain.FlowRun{}, err
	}
	if err := json.Unmarshal(env, &run.Spec.Env); err != nil {
		return domain.FlowRun{}, err
	}
	p := map[string]any{}
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.FlowRun{}, err
	}
	run.Spec.Params = domain.RunParams(p)
	if prevRunID != nil {
		run.Spec.PrevRunID = *prevRunID
	}
	if exitCode != nil {
		reason := ""
		if exitReason != nil {
			reason = *exitReason
		}
		run.Exit = &domain.RunExit{Code: uint8(*exitCode), Reason: reason}
	}

	return run, nil
}
