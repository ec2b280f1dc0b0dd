package domain

import "errors"

// ErrMissing means the requested run or pool does not exist.
var ErrMissing = errors.New("missing")

// ErrConflict means the resource exists already.
var ErrConflict = errors.New("conflict")

// ErrInvalidStatusChange means the requested status is not a legal
// successor of the run's current status.
var ErrInvalidStatusChange = errors.New("invalid run status changing")

// ErrLeaseLost means the worker's claim lease has expired or was taken
// over, and the worker must stop processing the run.
var ErrLeaseLost = errors.New("run lease lost")

// ErrPoolPaused means the pool does not accept claims now.
var ErrPoolPaused = errors.New("pool is paused")
