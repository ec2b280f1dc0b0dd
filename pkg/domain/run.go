package domain

import (
	"fmt"
	"time"
)

type FlowRunStatus string

const (
	// This run is waiting to be claimed by a worker.
	Waiting FlowRunStatus = "waiting"

	// A worker has claimed this run under a lease.
	//
	// - WorkerName is decided
	// - LeaseUntil is decided
	Claimed FlowRunStatus = "claimed"

	// The worker is materializing run params and creating the container.
	Starting FlowRunStatus = "starting"

	// The run's container (or process) is running.
	Running FlowRunStatus = "running"

	// It is observed that the run has stopped successfully.
	Completing FlowRunStatus = "completing"

	// It is observed, or should be done, that the run has stopped unsuccessfully.
	Aborting FlowRunStatus = "aborting"

	// This run has been done, successfully.
	Done FlowRunStatus = "done"

	// This run stopped with error.
	Failed FlowRunStatus = "failed"

	// This run was discarded before any worker claimed it.
	Invalidated FlowRunStatus = "invalidated"
)

func (s FlowRunStatus) String() string {
	return string(s)
}

func AsFlowRunStatus(status string) (FlowRunStatus, error) {
	switch status {
	case string(Waiting):
		return Waiting, nil
	case string(Claimed):
		return Claimed, nil
	case string(Starting):
		return Starting, nil
	case string(Running):
		return Running, nil
	case string(Completing):
		return Completing, nil
	case string(Aborting):
		return Aborting, nil
	case string(Done):
		return Done, nil
	case string(Failed):
		return Failed, nil
	case string(Invalidated):
		return Invalidated, nil
	default:
		return "", fmt.Errorf("'%s' is not FlowRunStatus", status)
	}
}

func (s FlowRunStatus) HasStarted() bool {
	switch s {
	case Waiting, Claimed, Starting, Invalidated:
		return false
	default:
		return true
	}
}

// Processing statuses hold a worker lease; their leases can expire.
func (s FlowRunStatus) Processing() bool {
	switch s {
	case Claimed, Starting, Running, Completing, Aborting:
		return true
	default:
		return false
	}
}

func (s FlowRunStatus) Finished() bool {
	switch s {
	case Done, Failed, Invalidated:
		return true
	default:
		return false
	}
}

// CanTransitTo reports whether next is a legal successor of s.
//
// The graph is linear with a success and a failure tail:
//
//	waiting -> claimed -> starting -> running -> completing -> done
//	                  \-> aborting (from claimed..completing)  -> failed
//	waiting -> invalidated
func (s FlowRunStatus) CanTransitTo(next FlowRunStatus) bool {
	switch s {
	case Waiting:
		return next == Claimed || next == Invalidated
	case Claimed:
		return next == Starting || next == Aborting || next == Waiting
	case Starting:
		return next == Running || next == Aborting
	case Running:
		return next == Completing || next == Aborting
	case Completing:
		return next == Done || next == Aborting
	case Aborting:
		return next == Failed
	default:
		// done, failed, invalidated: terminal
		return false
	}
}

// RunExit is the observed exit of a run's container or process.
type RunExit struct {
	Code   uint8
	Reason string
}

// RunSpec is what a submitter provides.
type RunSpec struct {
	// Image is a container image reference ("repo/name:tag").
	// Ignored by process-type pools, where Command[0] is the executable.
	Image string

	Command []string

	// Volumes are bind specs "src:dst[:opts]", with src as seen by the
	// submitter (= container-side path when the submitter runs containerized).
	Volumes []string

	Env     map[string]string
	Network string

	// Params is an arbitrary document handed to the run as a YAML file.
	Params RunParams

	// PrevRunID chains this run to the output of a previous one.
	PrevRunID string
}

type FlowRun struct {
	ID   string
	Pool string

	Spec RunSpec

	Status     FlowRunStatus
	WorkerName string
	LeaseUntil time.Time
	Exit       *RunExit

	SubmittedAt time.Time
	UpdatedAt   time.Time
}

func (r FlowRun) Equal(other FlowRun) bool {
	if !(r.ID == other.ID &&
		r.Pool == other.Pool &&
		r.Status == other.Status &&
		r.WorkerName == other.WorkerName) {
		return false
	}
	if (r.Exit == nil) != (other.Exit == nil) {
		return false
	}
	if r.Exit != nil && *r.Exit != *other.Exit {
		return false
	}
	return true
}
