// Package engine launches flow runs on a container engine reachable over
// a Docker-compatible API socket, or as plain subprocesses.
//
// The engine flavor (Docker or Podman) is informational only: Podman
// serves the same API on its socket, so one client serves both. That
// socket indirection is the whole point of the package.
package engine

import (
	"context"
	"io"
)

// RunSpec is everything a Runner needs to start one run.
type RunSpec struct {
	// Name is used for the container name (engine runners).
	Name string

	// Image is a container image reference. Unused by process runners.
	Image string

	Command []string

	// Binds are "hostSrc:dst[:opts]" specs, already host-side
	// (path translation is the caller's job).
	Binds []string

	Env map[string]string

	// Network is the engine network to attach. Empty = engine default.
	Network string
}

// Exit is the final state of a finished run.
type Exit struct {
	Code   uint8
	Reason string
}

// Handle is a started run.
type Handle interface {
	// Logs streams the run's combined stdout/stderr from its start.
	Logs(ctx context.Context) (io.ReadCloser, error)

	// Wait blocks until the run stops, and returns its exit.
	Wait(ctx context.Context) (Exit, error)

	// Stop terminates the run, forcefully after a grace period.
	Stop(ctx context.Context) error

	// Close releases the run's resources (engine runners remove the
	// container). The handle is unusable afterwards.
	Close() error
}

// Runner starts runs.
type Runner interface {
	Start(ctx context.Context, spec RunSpec) (Handle, error)
}
