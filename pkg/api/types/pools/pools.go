// Package pools holds the wire representation of work pools.
package pools

import (
	"fmt"

	"github.com/flowpool/flowpool/pkg/domain"
)

type WorkPool struct {
	Name           string `json:"name"`
	WorkerType     string `json:"worker_type"`
	MaxConcurrency int    `json:"max_concurrency"`
	Paused         bool   `json:"paused"`
}

func FromDomain(p domain.WorkPool) WorkPool {
	return WorkPool{
		Name:           p.Name,
		WorkerType:     p.WorkerType.String(),
		MaxConcurrency: p.MaxConcurrency,
		Paused:         p.Paused,
	}
}

func (p WorkPool) ToDomain() (domain.WorkPool, error) {
	workerType, err := domain.AsWorkerType(p.WorkerType)
	if err != nil {
		return domain.WorkPool{}, err
	}
	if p.Name == "" {
		return domain.WorkPool{}, fmt.Errorf("pool name is required")
	}
	if p.MaxConcurrency < 0 {
		return domain.WorkPool{}, fmt.Errorf("max_concurrency must not be negative")
	}
	return domain.WorkPool{
		Name:           p.Name,
		WorkerType:     workerType,
		MaxConcurrency: p.MaxConcurrency,
		Paused:         p.Paused,
	}, nil
}

// Paused flag updates travel on their own.
type PauseRequest struct {
	Paused bool `json:"paused"`
}
