package worker_test

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/domain/queue/mock"
	"github.com/flowpool/flowpool/pkg/engine"
	"github.com/flowpool/flowpool/pkg/worker"
)

type fakeHandle struct {
	exit engine.Exit
	logs string

	blockUntilStopped bool

	mu      sync.Mutex
	stopped chan struct{}
}

var _ engine.Handle = &fakeHandle{}

func newFakeHandle(exit engine.Exit, logs string) *fakeHandle {
	return &fakeHandle{exit: exit, logs: logs, stopped: make(chan struct{})}
}

func (h *fakeHandle) Logs(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(h.logs)), nil
}

func (h *fakeHandle) Wait(ctx context.Context) (engine.Exit, error) {
	if h.blockUntilStopped {
		select {
		case <-h.stopped:
		case <-ctx.Done():
			return engine.Exit{}, ctx.Err()
		}
	}
	return h.exit, nil
}

func (h *fakeHandle) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.stopped:
	default:
		close(h.stopped)
	}
	return nil
}

func (h *fakeHandle) Close() error { return nil }

type fakeRunner struct {
	handle   *fakeHandle
	startErr error

	specs []engine.RunSpec
}

var _ engine.Runner = &fakeRunner{}

func (r *fakeRunner) Start(_ context.Context, spec engine.RunSpec) (engine.Handle, error) {
	r.specs = append(r.specs, spec)
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.handle, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testRun(id string) domain.FlowRun {
	return domain.FlowRun{
		ID:     id,
		Pool:   "beamline",
		Status: domain.Claimed,
		Spec: domain.RunSpec{
			Image:   "ghcr.io/example/reducer:v2",
			Command: []string{"python", "reduce.py"},
			Volumes: []string{"/data/raw:/data/raw:ro"},
			Env:     map[string]string{"MODE": "fast"},
			Params:  domain.RunParams{"io_parameters": map[string]any{"uid_retrieve": ""}},

			PrevRunID: "prev-run",
		},
	}
}

func claimOnce(q *mock.Queue, run domain.FlowRun) {
	claimed := false
	q.Impl.Claim = func(context.Context, string, string, time.Duration) (domain.FlowRun, bool, error) {
		if claimed {
			return domain.FlowRun{}, false, nil
		}
		claimed = true
		return run, true, nil
	}
}

func newTestWorker(t *testing.T, q *mock.Queue, r engine.Runner) *worker.Worker {
	t.Helper()
	return &worker.Worker{
		Name:         "test-worker-0000",
		Pool:         "beamline",
		Queue:        q,
		Runner:       r,
		Translator:   engine.Translator{ContainerWorkDir: t.TempDir(), HostWorkDir: "/host/flowpool"},
		PollInterval: time.Millisecond,
		Lease:        time.Minute,
		Heartbeat:    30 * time.Second,
		Logger:       quietLogger(),
	}
}

func statuses(q *mock.Queue) []domain.FlowRunStatus {
	out := []domain.FlowRunStatus{}
	for _, call := range q.Calls.SetStatus {
		out = append(out, call.Next)
	}
	return out
}

func TestWorker(t *testing.T) {
	t.Run("a successful run walks starting->running->completing->done", func(t *testing.T) {
		ctx := context.Background()

		q := mock.New()
		claimOnce(q, testRun("run-ok"))
		q.Impl.SetStatus = func(context.Context, string, domain.FlowRunStatus) error { return nil }
		q.Impl.SetExit = func(context.Context, string, domain.RunExit) error { return nil }
		q.Impl.AppendLog = func(context.Context, string, []byte) error { return nil }
		q.Impl.ExtendLease = func(context.Context, string, string, time.Duration) error { return nil }

		runner := &fakeRunner{handle: newFakeHandle(engine.Exit{Code: 0}, "all good\n")}
		w := newTestWorker(t, q, runner)
		w.WorkDir = w.Translator.ContainerWorkDir

		claimed, err := worker.ProcessOne(ctx, w)
		if err != nil {
			t.Fatal(err)
		}
		if !claimed {
			t.Fatal("no run claimed")
		}

		expected := []domain.FlowRunStatus{
			domain.Starting, domain.Running, domain.Completing, domain.Done,
		}
		actual := statuses(q)
		if len(actual) != len(expected) {
			t.Fatalf("status calls\n===actual===\n%v\n===expected===\n%v", actual, expected)
		}
		for i := range expected {
			if actual[i] != expected[i] {
				t.Errorf("status calls\n===actual===\n%v\n===expected===\n%v", actual, expected)
				break
			}
		}

		if q.Calls.SetExit.Times() != 1 {
			t.Fatalf("exit recorded %d times", q.Calls.SetExit.Times())
		}
		if exit := q.Calls.SetExit[0].Exit; exit.Code != 0 {
			t.Errorf("unexpected exit: %+v", exit)
		}

		logged := []byte{}
		for _, call := range q.Calls.AppendLog {
			logged = append(logged, call.Chunk...)
		}
		if string(logged) != "all good\n" {
			t.Errorf("unexpected log: %q", string(logged))
		}
	})

	t.Run("the launched spec carries params file and translated bind", func(t *testing.T) {
		ctx := context.Background()

		q := mock.New()
		claimOnce(q, testRun("run-spec"))
		q.Impl.SetStatus = func(context.Context, string, domain.FlowRunStatus) error { return nil }
		q.Impl.SetExit = func(context.Context, string, domain.RunExit) error { return nil }
		q.Impl.AppendLog = func(context.Context, string, []byte) error { return nil }

		runner := &fakeRunner{handle: newFakeHandle(engine.Exit{Code: 0}, "")}
		w := newTestWorker(t, q, runner)
		w.WorkDir = w.Translator.ContainerWorkDir

		if _, err := worker.ProcessOne(ctx, w); err != nil {
			t.Fatal(err)
		}

		if len(runner.specs) != 1 {
			t.Fatalf("runner started %d times", len(runner.specs))
		}
		spec := runner.specs[0]

		last := spec.Command[len(spec.Command)-1]
		if last != worker.ParamsMountPath {
			t.Errorf("params path is not appended to command: %v", spec.Command)
		}

		expectedBind := "/host/flowpool/tmp/params-run-spec.yaml:" + worker.ParamsMountPath + ":ro"
		found := false
		for _, bind := range spec.Binds {
			if bind == expectedBind {
				found = true
			}
		}
		if !found {
			t.Errorf("translated params bind is missing:\n===actual===\n%v\n===expected contains===\n%s",
				spec.Binds, expectedBind)
		}

		// submitter volumes pass through untranslated
		if spec.Binds[0] != "/data/raw:/data/raw:ro" {
			t.Errorf("submitter volume is rewritten: %v", spec.Binds[0])
		}
	})

	t.Run("params file content is chained before launch", func(t *testing.T) {
		ctx := context.Background()

		q := mock.New()
		claimOnce(q, testRun("run-chain"))
		q.Impl.SetStatus = func(context.Context, string, domain.FlowRunStatus) error { return nil }
		q.Impl.SetExit = func(context.Context, string, domain.RunExit) error { return nil }
		q.Impl.AppendLog = func(context.Context, string, []byte) error { return nil }

		var paramsContent []byte
		handle := newFakeHandle(engine.Exit{Code: 0}, "")
		runner := &fakeRunner{handle: handle}
		w := newTestWorker(t, q, runner)
		w.WorkDir = w.Translator.ContainerWorkDir

		// snatch the file while the run "executes": read it from Logs
		snatcher := &paramsSnatchingRunner{inner: runner, path: filepath.Join(w.WorkDir, "tmp", "params-run-chain.yaml"), into: &paramsContent}

		w.Runner = snatcher
		if _, err := worker.ProcessOne(ctx, w); err != nil {
			t.Fatal(err)
		}

		params, err := domain.ParseRunParams(paramsContent)
		if err != nil {
			t.Fatal(err)
		}
		iop, ok := params["io_parameters"].(map[string]any)
		if !ok {
			t.Fatalf("io_parameters missing: %v", params)
		}
		if iop["uid_save"] != "run-chain" {
			t.Errorf("uid_save is not the run id: %v", iop["uid_save"])
		}
		if iop["uid_retrieve"] != "prev-run" {
			t.Errorf("uid_retrieve is not chained: %v", iop["uid_retrieve"])
		}
	})

	t.Run("non-zero exit walks aborting->failed with exit recorded", func(t *testing.T) {
		ctx := context.Background()

		q := mock.New()
		claimOnce(q, testRun("run-ng"))
		q.Impl.SetStatus = func(context.Context, string, domain.FlowRunStatus) error { return nil }
		q.Impl.SetExit = func(context.Context, string, domain.RunExit) error { return nil }
		q.Impl.AppendLog = func(context.Context, string, []byte) error { return nil }

		runner := &fakeRunner{handle: newFakeHandle(engine.Exit{Code: 2, Reason: "exit code 2"}, "boom\n")}
		w := newTestWorker(t, q, runner)
		w.WorkDir = w.Translator.ContainerWorkDir

		if _, err := worker.ProcessOne(ctx, w); err != nil {
			t.Fatal(err)
		}

		actual := statuses(q)
		expected := []domain.FlowRunStatus{
			domain.Starting, domain.Running, domain.Aborting, domain.Failed,
		}
		if len(actual) != len(expected) {
			t.Fatalf("status calls\n===actual===\n%v\n===expected===\n%v", actual, expected)
		}

		if exit := q.Calls.SetExit[0].Exit; exit.Code != 2 {
			t.Errorf("unexpected exit: %+v", exit)
		}
	})

	t.Run("launch failure fails the run with exit 255", func(t *testing.T) {
		ctx := context.Background()

		q := mock.New()
		claimOnce(q, testRun("run-nolaunch"))
		q.Impl.SetStatus = func(context.Context, string, domain.FlowRunStatus) error { return nil }
		q.Impl.SetExit = func(context.Context, string, domain.RunExit) error { return nil }

		runner := &fakeRunner{startErr: errors.New("no such image")}
		w := newTestWorker(t, q, runner)
		w.WorkDir = w.Translator.ContainerWorkDir

		if _, err := worker.ProcessOne(ctx, w); err != nil {
			t.Fatal(err)
		}

		actual := statuses(q)
		expected := []domain.FlowRunStatus{
			domain.Starting, domain.Aborting, domain.Failed,
		}
		if len(actual) != len(expected) {
			t.Fatalf("status calls\n===actual===\n%v\n===expected===\n%v", actual, expected)
		}
		if exit := q.Calls.SetExit[0].Exit; exit.Code != 255 {
			t.Errorf("unexpected exit: %+v", exit)
		}
	})

	t.Run("it reports no claim when the pool is empty", func(t *testing.T) {
		ctx := context.Background()

		q := mock.New()
		q.Impl.Claim = func(context.Context, string, string, time.Duration) (domain.FlowRun, bool, error) {
			return domain.FlowRun{}, false, nil
		}

		w := newTestWorker(t, q, &fakeRunner{})
		claimed, err := worker.ProcessOne(ctx, w)
		if err != nil {
			t.Fatal(err)
		}
		if claimed {
			t.Error("claimed against an empty pool")
		}
	})

	t.Run("a lost lease stops the running container", func(t *testing.T) {
		ctx := context.Background()

		q := mock.New()
		claimOnce(q, testRun("run-lost"))
		q.Impl.SetStatus = func(context.Context, string, domain.FlowRunStatus) error { return nil }
		q.Impl.SetExit = func(context.Context, string, domain.RunExit) error { return nil }
		q.Impl.AppendLog = func(context.Context, string, []byte) error { return nil }
		q.Impl.ExtendLease = func(context.Context, string, string, time.Duration) error {
			return domain.ErrLeaseLost
		}

		handle := newFakeHandle(engine.Exit{Code: 0}, "")
		handle.blockUntilStopped = true
		runner := &fakeRunner{handle: handle}

		w := newTestWorker(t, q, runner)
		w.WorkDir = w.Translator.ContainerWorkDir
		w.Heartbeat = time.Millisecond

		if _, err := worker.ProcessOne(ctx, w); err != nil {
			t.Fatal(err)
		}

		select {
		case <-handle.StoppedC():
		default:
			t.Error("container is not stopped after lease loss")
		}

		actual := statuses(q)
		if actual[len(actual)-1] != domain.Failed {
			t.Errorf("run does not end failed: %v", actual)
		}
	})
}

type paramsSnatchingRunner struct {
	inner engine.Runner
	path  string
	into  *[]byte
}

func (r *paramsSnatchingRunner) Start(ctx context.Context, spec engine.RunSpec) (engine.Handle, error) {
	content, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	*r.into = content
	return r.inner.Start(ctx, spec)
}

func (h *fakeHandle) StoppedC() <-chan struct{} {
	return h.stopped
}
