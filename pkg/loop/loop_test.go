package loop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowpool/flowpool/pkg/loop"
	"github.com/flowpool/flowpool/pkg/utils/try"
)

func TestStart(t *testing.T) {
	t.Run("it repeats tasks until task breaks", func(t *testing.T) {
		ctx := context.Background()

		actual := try.To(loop.Start(
			ctx, 1, func(_ context.Context, v int) (int, loop.Next) {
				if 10 <= v {
					return v, loop.Break(nil)
				}
				return v + 1, loop.Continue(0)
			},
		)).OrFatal(t)

		if actual != 10 {
			t.Errorf("task loop stopped at wrong value (actual, expected) = (%d, 10)", actual)
		}
	})

	t.Run("it breaks with the error the task returns", func(t *testing.T) {
		ctx := context.Background()
		expectedErr := errors.New("fake error")

		actual, err := loop.Start(
			ctx, 0, func(_ context.Context, v int) (int, loop.Next) {
				if v == 3 {
					return v, loop.Break(expectedErr)
				}
				return v + 1, loop.Continue(0)
			},
		)

		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if actual != 3 {
			t.Errorf("last value is not kept on error (actual, expected) = (%d, 3)", actual)
		}
	})

	t.Run("it breaks with ctx.Err when context gets done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		actual, err := loop.Start(
			ctx, 0, func(_ context.Context, v int) (int, loop.Next) {
				if v == 5 {
					cancel() // loop should notice before the next iteration
				}
				return v + 1, loop.Continue(10 * time.Millisecond)
			},
		)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected error (Canceled) is not returned: %v", err)
		}
		if actual != 6 {
			t.Errorf("loop ran after cancel (actual, expected) = (%d, 6)", actual)
		}
	})

	t.Run("it does not call task when context is done already", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		_, err := loop.Start(
			ctx, 0, func(_ context.Context, v int) (int, loop.Next) {
				called = true
				return v, loop.Break(nil)
			},
		)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
		if called {
			t.Error("task is called against done context")
		}
	})

	t.Run("it passes deadlined context when WithTimeout is passed", func(t *testing.T) {
		ctx := context.Background()
		timeout := 100 * time.Millisecond

		try.To(loop.Start(
			ctx, 1, func(ctx context.Context, v int) (int, loop.Next) {
				now := time.Now()

				if deadline, ok := ctx.Deadline(); !ok {
					t.Errorf("deadline is not set")
				} else if !(deadline.Sub(now) <= timeout) {
					t.Errorf(
						"unexpected deadline\n===actual===\n%s\n===expected===\n(near) %s",
						deadline, now.Add(timeout),
					)
				}

				if 3 <= v {
					return v + 1, loop.Break(nil)
				}
				return v + 1, loop.Continue(0)
			},
			loop.WithTimeout(timeout),
		)).OrFatal(t)
	})
}
