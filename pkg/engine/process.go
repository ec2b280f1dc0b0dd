package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcessRunner executes runs as local subprocesses.
//
// Pools of type "process" use this where engine-type workers cannot run:
// on macOS hosts the engine lives in a VM, so host paths cannot be
// bind-mounted into sibling containers. Binds are ignored (the process
// reads the worker's files in place) and Image is unused.
type ProcessRunner struct {
	// Dir is the working directory of spawned processes. Empty = inherit.
	Dir string
}

var _ Runner = &ProcessRunner{}

func (r *ProcessRunner) Start(ctx context.Context, spec RunSpec) (Handle, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("process run has no command")
	}

	// detach from ctx: cancellation is Handle.Stop's job, not the
	// process group's
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("starting process %s: %w", spec.Command[0], err)
	}

	h := &processHandle{
		cmd:  cmd,
		logs: pr,
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		err := cmd.Wait()
		pw.Close()
		h.setExit(err)
	}()
	return h, nil
}

type processHandle struct {
	cmd  *exec.Cmd
	logs *io.PipeReader
	done chan struct{}

	mu   sync.Mutex
	exit Exit
	err  error
}

var _ Handle = &processHandle{}

func (h *processHandle) setExit(waitErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch err := waitErr.(type) {
	case nil:
		h.exit = Exit{Code: 0}
	case *exec.ExitError:
		code := err.ExitCode()
		if code < 0 {
			// killed by signal
			h.exit = Exit{Code: 255, Reason: err.Error()}
			return
		}
		h.exit = Exit{Code: clampExitCode(int64(code)), Reason: err.Error()}
	default:
		h.err = waitErr
	}
}

func (h *processHandle) Logs(ctx context.Context) (io.ReadCloser, error) {
	return h.logs, nil
}

func (h *processHandle) Wait(ctx context.Context) (Exit, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exit, h.err
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

func (h *processHandle) Stop(ctx context.Context) error {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	grace := time.NewTimer(10 * time.Second)
	defer grace.Stop()
	select {
	case <-h.done:
		return nil
	case <-grace.C:
		return h.cmd.Process.Kill()
	case <-ctx.Done():
		return h.cmd.Process.Kill()
	}
}

func (h *processHandle) Close() error {
	return h.logs.Close()
}
