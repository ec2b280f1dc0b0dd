// Package pipeline wires the result stream: a listener decodes
// two-frame results from an upstream WebSocket and hands them to
// Operators, which republish or persist them.
package pipeline

import (
	"context"
	"errors"

	"github.com/flowpool/flowpool/pkg/pipeline/event"
)

// Result is a decoded two-frame result plus what the listener derives
// from it.
type Result struct {
	Meta   event.Metadata
	Bundle event.Bundle

	// SliceURL addresses the shot_mean frame of this result in the
	// array store.
	SliceURL string
}

// Operator consumes the result stream. Implementations must tolerate
// Result and Stop without a preceding Start (the upstream may already
// be mid-scan when we connect).
type Operator interface {
	OnStart(ctx context.Context, start event.Start) error
	OnResult(ctx context.Context, result Result) error
	OnStop(ctx context.Context) error
}

type tee []Operator

// Tee fans each event out to every operator. All operators see every
// event; errors are joined.
func Tee(operators ...Operator) Operator {
	return tee(operators)
}

func (t tee) OnStart(ctx context.Context, start event.Start) error {
	errs := []error{}
	for _, op := range t {
		errs = append(errs, op.OnStart(ctx, start))
	}
	return errors.Join(errs...)
}

func (t tee) OnResult(ctx context.Context, result Result) error {
	errs := []error{}
	for _, op := range t {
		errs = append(errs, op.OnResult(ctx, result))
	}
	return errors.Join(errs...)
}

func (t tee) OnStop(ctx context.Context) error {
	errs := []error{}
	for _, op := range t {
		errs = append(errs, op.OnStop(ctx))
	}
	return errors.Join(errs...)
}
