// Package worker implements the claim/execute loop of a work-pool worker.
//
// A worker serves exactly one pool. It claims Waiting runs under a
// lease, launches each one through an engine.Runner (sibling container
// or subprocess), heartbeats the lease while the run lives, streams the
// run's log into the queue and records the exit.
package worker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/flowpool/flowpool/pkg/domain"
	"github.com/flowpool/flowpool/pkg/domain/queue"
	"github.com/flowpool/flowpool/pkg/engine"
	"github.com/flowpool/flowpool/pkg/loop"
)

// ParamsMountPath is where runs find their params file.
// Run commands get this path appended as their last argument.
const ParamsMountPath = "/app/work/config/params.yaml"

type Worker struct {
	// Name identifies this worker in claims and leases.
	Name string

	// Pool is the work pool this worker serves.
	Pool string

	Queue  queue.Queue
	Runner engine.Runner

	// Translator maps worker-side paths to engine-host paths
	// (engine.Identity() for process runners and uncontainerized workers).
	Translator engine.Translator

	// WorkDir is the shared work dir as this worker sees it. Params
	// files are materialized under WorkDir/tmp.
	WorkDir string

	// PollInterval is the sleep between empty claim attempts.
	PollInterval time.Duration

	// Lease is the claim lease duration; Heartbeat is how often it is
	// extended. Heartbeat must be well below Lease.
	Lease     time.Duration
	Heartbeat time.Duration

	Logger *log.Logger
}

// NewName builds a worker name from the hostname and a random suffix.
func NewName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return host + "-" + hex.EncodeToString(suffix)
}

// Run claims and executes runs until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	_, err := loop.Start(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (struct{}, loop.Next) {
		claimed, err := w.processOne(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return struct{}{}, loop.Break(err)
		case errors.Is(err, domain.ErrPoolPaused):
			return struct{}{}, loop.Continue(w.PollInterval)
		case err != nil:
			w.Logger.Printf("run processing failed: %v", err)
			return struct{}{}, loop.Continue(w.PollInterval)
		case !claimed:
			return struct{}{}, loop.Continue(w.PollInterval)
		default:
			return struct{}{}, loop.Continue(0)
		}
	})
	return err
}

// processOne claims at most one run and sees it through to a terminal
// status. It returns whether a run was claimed.
func (w *Worker) processOne(ctx context.Context) (bool, error) {
	run, ok, err := w.Queue.Claim(ctx, w.Pool, w.Name, w.Lease)
	if err != nil || !ok {
		return false, err
	}

	w.Logger.Printf("claimed run %s", run.ID)
	if err := w.execute(ctx, run); err != nil {
		w.abort(ctx, run.ID, err)
		return true, nil
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, run domain.FlowRun) error {
	if err := w.Queue.SetStatus(ctx, run.ID, domain.Starting); err != nil {
		return err
	}

	paramsPath, err := w.writeParams(run)
	if err != nil {
		return err
	}
	defer os.Remove(paramsPath) // best effort

	hostParamsPath, err := w.Translator.Translate(paramsPath)
	if err != nil {
		return err
	}

	spec := engine.RunSpec{
		Name:    "flowpool-run-" + run.ID,
		Image:   run.Spec.Image,
		Command: append(append([]string{}, run.Spec.Command...), ParamsMountPath),
		Binds: append(
			append([]string{}, run.Spec.Volumes...),
			hostParamsPath+":"+ParamsMountPath+":ro",
		),
		Env:     run.Spec.Env,
		Network: run.Spec.Network,
	}

	handle, err := w.Runner.Start(ctx, spec)
	if err != nil {
		return fmt.Errorf("launching run %s: %w", run.ID, err)
	}
	defer handle.Close()

	if err := w.Queue.SetStatus(ctx, run.ID, domain.Running); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = handle.Stop(stopCtx)
		return err
	}

	// the run's context dies with the lease
	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)
	go w.keepLease(runCtx, cancelRun, run.ID)

	logDone := make(chan struct{})
	go func() {
		defer close(logDone)
		w.streamLogs(runCtx, handle, run.ID)
	}()

	exit, err := handle.Wait(runCtx)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = handle.Stop(stopCtx)
		<-logDone
		if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return fmt.Errorf("run %s: %w", run.ID, cause)
		}
		return fmt.Errorf("waiting run %s: %w", run.ID, err)
	}
	<-logDone

	// record the exit with a context that survives shutdown
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := w.Queue.SetExit(recCtx, run.ID, domain.RunExit{
		Code: exit.Code, Reason: exit.Reason,
	}); err != nil {
		return err
	}

	if exit.Code == 0 {
		if err := w.Queue.SetStatus(recCtx, run.ID, domain.Completing); err != nil {
			return err
		}
		if err := w.Queue.SetStatus(recCtx, run.ID, domain.Done); err != nil {
			return err
		}
		w.Logger.Printf("run %s: done", run.ID)
		return nil
	}

	if err := w.Queue.SetStatus(recCtx, run.ID, domain.Aborting); err != nil {
		return err
	}
	if err := w.Queue.SetStatus(recCtx, run.ID, domain.Failed); err != nil {
		return err
	}
	w.Logger.Printf("run %s: failed (%s)", run.ID, exit.Reason)
	return nil
}

// keepLease extends the claim lease every Heartbeat until ctx is done.
// Losing the lease cancels the run context with domain.ErrLeaseLost.
func (w *Worker) keepLease(ctx context.Context, cancel context.CancelCauseFunc, runID string) {
	ticker := time.NewTicker(w.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.Queue.ExtendLease(ctx, runID, w.Name, w.Lease)
			switch {
			case err == nil:
				continue
			case errors.Is(err, domain.ErrLeaseLost), errors.Is(err, domain.ErrMissing):
				w.Logger.Printf("run %s: lease lost, stopping", runID)
				cancel(domain.ErrLeaseLost)
				return
			default:
				// transient; the lease has slack until the next beat
				w.Logger.Printf("run %s: lease heartbeat failed: %v", runID, err)
			}
		}
	}
}

func (w *Worker) streamLogs(ctx context.Context, handle engine.Handle, runID string) {
	logs, err := handle.Logs(ctx)
	if err != nil {
		w.Logger.Printf("run %s: cannot stream logs: %v", runID, err)
		return
	}
	defer logs.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := logs.Read(buf)
		if 0 < n {
			if aerr := w.Queue.AppendLog(ctx, runID, buf[:n]); aerr != nil {
				w.Logger.Printf("run %s: log append failed: %v", runID, aerr)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				w.Logger.Printf("run %s: log stream broken: %v", runID, err)
			}
			return
		}
	}
}

// abort moves the run to Failed, recording err as the reason.
func (w *Worker) abort(ctx context.Context, runID string, cause error) {
	w.Logger.Printf("run %s: aborting: %v", runID, cause)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := w.Queue.SetExit(ctx, runID, domain.RunExit{
		Code: 255, Reason: cause.Error(),
	}); err != nil {
		w.Logger.Printf("run %s: cannot record exit: %v", runID, err)
	}
	if err := w.Queue.SetStatus(ctx, runID, domain.Aborting); err != nil {
		w.Logger.Printf("run %s: cannot abort: %v", runID, err)
		return
	}
	if err := w.Queue.SetStatus(ctx, runID, domain.Failed); err != nil {
		w.Logger.Printf("run %s: cannot fail: %v", runID, err)
	}
}

// writeParams materializes the run's chained params document under
// WorkDir/tmp.
func (w *Worker) writeParams(run domain.FlowRun) (string, error) {
	params := run.Spec.Params.Chained(run.ID, run.Spec.PrevRunID)
	content, err := params.Bytes()
	if err != nil {
		return "", fmt.Errorf("marshalling params of run %s: %w", run.ID, err)
	}

	dir := filepath.Join(w.WorkDir, "tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "params-"+run.ID+".yaml")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
