package mock

import (
	"context"
	"errors"
	"time"

	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/domain/queue"
)

type CallLog[T any] []T

func (c CallLog[T]) Times() int {
	return len(c)
}

// Queue is a hand-written mock of queue.Queue.
//
// Set the Impl fields your test expects to be called; everything else
// panics when invoked.
type Queue struct {
	Impl struct {
		Submit      func(ctx context.Context, pool string, spec domain.RunSpec) (string, error)
		Claim       func(ctx context.Context, pool string, workerName string, lease time.Duration) (domain.FlowRun, bool, error)
		ExtendLease func(ctx context.Context, runID string, workerName string, lease time.Duration) error
		SetStatus   func(ctx context.Context, runID string, next domain.FlowRunStatus) error
		SetExit     func(ctx context.Context, runID string, exit domain.RunExit) error
		AppendLog   func(ctx context.Context, runID string, chunk []byte) error
		Log         func(ctx context.Context, runID string) ([]byte, error)
		Get         func(ctx context.Context, runID string) (domain.FlowRun, error)
		Find        func(ctx context.Context, pool string, statuses []domain.FlowRunStatus) ([]domain.FlowRun, error)
		Requeue     func(ctx context.Context) (int, error)

		CreatePool    func(ctx context.Context, pool domain.WorkPool) error
		GetPool       func(ctx context.Context, name string) (domain.WorkPool, error)
		SetPoolPaused func(ctx context.Context, name string, paused bool) error
		Pools         func(ctx context.Context) ([]domain.WorkPool, error)
	}

	Calls struct {
		Submit CallLog[struct {
			Pool string
			Spec domain.RunSpec
		}]
		Claim CallLog[struct {
			Pool       string
			WorkerName string
			Lease      time.Duration
		}]
		ExtendLease CallLog[struct {
			RunID      string
			WorkerName string
		}]
		SetStatus CallLog[struct {
			RunID string
			Next  domain.FlowRunStatus
		}]
		SetExit CallLog[struct {
			RunID string
			Exit  domain.RunExit
		}]
		AppendLog CallLog[struct {
			RunID string
			Chunk []byte
		}]
		Log     CallLog[string]
		Get     CallLog[string]
		Find    CallLog[string]
		Requeue CallLog[struct{}]

		CreatePool    CallLog[domain.WorkPool]
		GetPool       CallLog[string]
		SetPoolPaused CallLog[struct {
			Name   string
			Paused bool
		}]
		Pools CallLog[struct{}]
	}
}

func New() *Queue {
	return &Queue{}
}

var _ queue.Queue = &Queue{}

func (m *Queue) Submit(ctx context.Context, pool string, spec domain.RunSpec) (string, error) {
	m.Calls.Submit = append(m.Calls.Submit, struct {
		Pool string
		Spec domain.RunSpec
	}{Pool: pool, Spec: spec})
	if m.Impl.Submit != nil {
		return m.Impl.Submit(ctx, pool, spec)
	}
	panic(errors.New("Submit should not be called"))
}

func (m *Queue) Claim(ctx context.Context, pool string, workerName string, lease time.Duration) (domain.FlowRun, bool, error) {
	m.Calls.Claim = append(m.Calls.Claim, struct {
		Pool       string
		WorkerName string
		Lease      time.Duration
	}{Pool: pool, WorkerName: workerName, Lease: lease})
	if m.Impl.Claim != nil {
		return m.Impl.Claim(ctx, pool, workerName, lease)
	}
	panic(errors.New("Claim should not be called"))
}

func (m *Queue) ExtendLease(ctx context.Context, runID string, workerName string, lease time.Duration) error {
	m.Calls.ExtendLease = append(m.Calls.ExtendLease, struct {
		RunID      string
		WorkerName string
	}{RunID: runID, WorkerName: workerName})
	if m.Impl.ExtendLease != nil {
		return m.Impl.ExtendLease(ctx, runID, workerName, lease)
	}
	panic(errors.New("ExtendLease should not be called"))
}

func (m *Queue) SetStatus(ctx context.Context, runID string, next domain.FlowRunStatus) error {
	m.Calls.SetStatus = append(m.Calls.SetStatus, struct {
		RunID string
		Next  domain.FlowRunStatus
	}{RunID: runID, Next: next})
	if m.Impl.SetStatus != nil {
		return m.Impl.SetStatus(ctx, runID, next)
	}
	panic(errors.New("SetStatus should not be called"))
}

func (m *Queue) SetExit(ctx context.Context, runID string, exit domain.RunExit) error {
	m.Calls.SetExit = append(m.Calls.SetExit, struct {
		RunID string
		Exit  domain.RunExit
	}{RunID: runID, Exit: exit})
	if m.Impl.SetExit != nil {
		return m.Impl.SetExit(ctx, runID, exit)
	}
	panic(errors.New("SetExit should not be called"))
}

func (m *Queue) AppendLog(ctx context.Context, runID string, chunk []byte) error {
	m.Calls.AppendLog = append(m.Calls.AppendLog, struct {
		RunID string
		Chunk []byte
	}{RunID: runID, Chunk: append([]byte{}, chunk...)})
	if m.Impl.AppendLog != nil {
		return m.Impl.AppendLog(ctx, runID, chunk)
	}
	panic(errors.New("AppendLog should not be called"))
}

func (m *Queue) Log(ctx context.Context, runID string) ([]byte, error) {
	m.Calls.Log = append(m.Calls.Log, runID)
	if m.Impl.Log != nil {
		return m.Impl.Log(ctx, runID)
	}
	panic(errors.New("Log should not be called"))
}

func (m *Queue) Get(ctx context.Context, runID string) (domain.FlowRun, error) {
	m.Calls.Get = append(m.Calls.Get, runID)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, runID)
	}
	panic(errors.New("Get should not be called"))
}

func (m *Queue) Find(ctx context.Context, pool string, statuses []domain.FlowRunStatus) ([]domain.FlowRun, error) {
	m.Calls.Find = append(m.Calls.Find, pool)
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx, pool, statuses)
	}
	panic(errors.New("Find should not be called"))
}

func (m *Queue) Requeue(ctx context.Context) (int, error) {
	m.Calls.Requeue = append(m.Calls.Requeue, struct{}{})
	if m.Impl.Requeue != nil {
		return m.Impl.Requeue(ctx)
	}
	panic(errors.New("Requeue should not be called"))
}

func (m *Queue) CreatePool(ctx context.Context, pool domain.WorkPool) error {
	m.Calls.CreatePool = append(m.Calls.CreatePool, pool)
	if m.Impl.CreatePool != nil {
		return m.Impl.CreatePool(ctx, pool)
	}
	panic(errors.New("CreatePool should not be called"))
}

func (m *Queue) GetPool(ctx context.Context, name string) (domain.WorkPool, error) {
	m.Calls.GetPool = append(m.Calls.GetPool, name)
	if m.Impl.GetPool != nil {
		return m.Impl.GetPool(ctx, name)
	}
	panic(errors.New("GetPool should not be called"))
}

func (m *Queue) SetPoolPaused(ctx context.Context, name string, paused bool) error {
	m.Calls.SetPoolPaused = append(m.Calls.SetPoolPaused, struct {
		Name   string
		Paused bool
	}{Name: name, Paused: paused})
	if m.Impl.SetPoolPaused != nil {
		return m.Impl.SetPoolPaused(ctx, name, paused)
	}
	panic(errors.New("SetPoolPaused should not be called"))
}

func (m *Queue) Pools(ctx context.Context) ([]domain.WorkPool, error) {
	m.Calls.Pools = append(m.Calls.Pools, struct{}{})
	if m.Impl.Pools != nil {
		return m.Impl.Pools(ctx)
	}
	panic(errors.New("Pools should not be called"))
}
