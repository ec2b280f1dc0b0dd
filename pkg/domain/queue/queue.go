// Package queue declares the persistence interface of work pools and
// flow runs. The canonical implementation is postgres; tests use mock.
package queue

import (
	"context"
	"time"

	"github.com/flowpool/flowpool/pkg/domain"
)

type RunInterface interface {
	// Submit inserts a new run in Waiting status into a pool.
	//
	// Returns
	//
	// - string: run id which is newly created.
	//
	// - error: domain.ErrMissing when the pool does not exist.
	Submit(ctx context.Context, pool string, spec domain.RunSpec) (string, error)

	// Claim picks the oldest Waiting run of the pool and moves it to
	// Claimed under a lease for workerName.
	//
	// A run claimed once is invisible to other workers (SKIP LOCKED in
	// postgres), so double claims cannot happen. Claims are refused when
	// the pool is paused (domain.ErrPoolPaused) or its concurrency limit
	// is reached (ok = false, no error).
	//
	// Returns
	//
	// - domain.FlowRun: the claimed run. Zero value when ok is false.
	//
	// - bool: true when a run was claimed.
	//
	// - error
	Claim(ctx context.Context, pool string, workerName string, lease time.Duration) (domain.FlowRun, bool, error)

	// ExtendLease pushes the lease deadline of a processing run.
	//
	// Returns domain.ErrLeaseLost when the run is not processing anymore
	// or is held by another worker, and domain.ErrMissing when it does
	// not exist.
	ExtendLease(ctx context.Context, runID string, workerName string, lease time.Duration) error

	// SetStatus moves the run to next.
	//
	// Returns domain.ErrInvalidStatusChange when next is not a legal
	// successor, domain.ErrMissing when the run is not found.
	SetStatus(ctx context.Context, runID string, next domain.FlowRunStatus) error

	// SetExit records the observed exit of the run.
	SetExit(ctx context.Context, runID string, exit domain.RunExit) error

	// AppendLog appends a chunk of the run's log.
	AppendLog(ctx context.Context, runID string, chunk []byte) error

	// Log returns the whole log of the run, in order of appending.
	Log(ctx context.Context, runID string) ([]byte, error)

	Get(ctx context.Context, runID string) (domain.FlowRun, error)

	// Find lists runs of the pool in any of statuses
	// (no status filter when statuses is empty), oldest first.
	Find(ctx context.Context, pool string, statuses []domain.FlowRunStatus) ([]domain.FlowRun, error)

	// Requeue recovers runs whose lease expired: Claimed runs return to
	// Waiting; Starting/Running/Completing runs are moved to Aborting
	// (their worker is gone, the container state is unknown).
	//
	// Returns the number of recovered runs.
	Requeue(ctx context.Context) (int, error)
}

type PoolInterface interface {
	// CreatePool registers a work pool.
	//
	// Returns domain.ErrConflict when the name is taken.
	CreatePool(ctx context.Context, pool domain.WorkPool) error

	GetPool(ctx context.Context, name string) (domain.WorkPool, error)

	SetPoolPaused(ctx context.Context, name string, paused bool) error

	Pools(ctx context.Context) ([]domain.WorkPool, error)
}

type Queue interface {
	RunInterface
	PoolInterface
}
