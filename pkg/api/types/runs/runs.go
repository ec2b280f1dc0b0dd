// Package runs holds the wire representation of flow runs.
package runs

import (
	"fmt"
	"time"

	"github.com/flowpool/flowpool/pkg/domain"
)

type RunSpec struct {
	Image     string            `json:"image,omitempty"`
	Command   []string          `json:"command"`
	Volumes   []string          `json:"volumes,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Network   string            `json:"network,omitempty"`
	Params    map[string]any    `json:"params,omitempty"`
	PrevRunID string            `json:"prev_run_id,omitempty"`
}

func (s RunSpec) ToDomain() (domain.RunSpec, error) {
	if len(s.Command) == 0 {
		return domain.RunSpec{}, fmt.Errorf("command is required")
	}
	return domain.RunSpec{
		Image:     s.Image,
		Command:   s.Command,
		Volumes:   s.Volumes,
		Env:       s.Env,
		Network:   s.Network,
		Params:    domain.RunParams(s.Params),
		PrevRunID: s.PrevRunID,
	}, nil
}

func SpecFromDomain(s domain.RunSpec) RunSpec {
	return RunSpec{
		Image:     s.Image,
		Command:   s.Command,
		Volumes:   s.Volumes,
		Env:       s.Env,
		Network:   s.Network,
		Params:    map[string]any(s.Params),
		PrevRunID: s.PrevRunID,
	}
}

type Exit struct {
	Code   uint8  `json:"code"`
	Reason string `json:"reason,omitempty"`
}

type Detail struct {
	RunID  string  `json:"run_id"`
	Pool   string  `json:"pool"`
	Status string  `json:"status"`
	Worker string  `json:"worker,omitempty"`
	Exit   *Exit   `json:"exit,omitempty"`
	Spec   RunSpec `json:"spec"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func FromDomain(r domain.FlowRun) Detail {
	d := Detail{
		RunID:       r.ID,
		Pool:        r.Pool,
		Status:      r.Status.String(),
		Worker:      r.WorkerName,
		Spec:        SpecFromDomain(r.Spec),
		SubmittedAt: r.SubmittedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Exit != nil {
		d.Exit = &Exit{Code: r.Exit.Code, Reason: r.Exit.Reason}
	}
	return d
}

type Submitted struct {
	RunID string `json:"run_id"`
}
