package domain

import "fmt"

// WorkerType tells how a pool's workers execute runs.
type WorkerType string

const (
	// Runs are launched as sibling containers via a container engine
	// socket (Docker, or Podman serving the compatible API).
	EngineWorker WorkerType = "engine"

	// Runs are executed as local subprocesses. Required on hosts where
	// the engine runs inside a VM and host paths cannot be bind-mounted
	// (macOS, notably).
	ProcessWorker WorkerType = "process"
)

func (t WorkerType) String() string {
	return string(t)
}

func AsWorkerType(s string) (WorkerType, error) {
	switch s {
	case string(EngineWorker):
		return EngineWorker, nil
	case string(ProcessWorker):
		return ProcessWorker, nil
	default:
		return "", fmt.Errorf("'%s' is not WorkerType", s)
	}
}

// WorkPool is a named queue workers attach to and claim runs from.
type WorkPool struct {
	Name string

	WorkerType WorkerType

	// MaxConcurrency limits how many runs of this pool may be processing
	// at once. 0 means unlimited.
	MaxConcurrency int

	// Paused pools accept submissions but refuse claims.
	Paused bool
}
