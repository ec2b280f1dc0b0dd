package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowpool/flowpool/pkg/utils/retry"
)

func TestBlocking(t *testing.T) {
	t.Run("it retries until f succeeds", func(t *testing.T) {
		ctx := context.Background()

		calls := 0
		actual, err := retry.Blocking(
			ctx, retry.StaticBackoff(1*time.Millisecond),
			func() (string, error) {
				calls += 1
				if calls < 3 {
					return "", retry.ErrRetry
				}
				return "done", nil
			},
		)

		if err != nil {
			t.Fatal(err)
		}
		if actual != "done" {
			t.Errorf("unexpected value: %s", actual)
		}
		if calls != 3 {
			t.Errorf("f is called wrong times (actual, expected) = (%d, 3)", calls)
		}
	})

	t.Run("it stops on non-retry error", func(t *testing.T) {
		ctx := context.Background()
		expectedErr := errors.New("fake error")

		calls := 0
		_, err := retry.Blocking(
			ctx, retry.StaticBackoff(1*time.Millisecond),
			func() (string, error) {
				calls += 1
				return "", expectedErr
			},
		)

		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("f is called wrong times (actual, expected) = (%d, 1)", calls)
		}
	})

	t.Run("it stops when context gets done during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		_, err := retry.Blocking(
			ctx, retry.StaticBackoff(10*time.Millisecond),
			func() (int, error) {
				called = true
				return 0, retry.ErrRetry
			},
		)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
		if called {
			t.Error("f is called against done context")
		}
	})
}

func TestGo(t *testing.T) {
	t.Run("it sends the result of f over channel", func(t *testing.T) {
		ctx := context.Background()

		promise := retry.Go(
			ctx, retry.StaticBackoff(1*time.Millisecond),
			func() (int, error) { return 42, nil },
		)

		result := <-promise
		if result.Err != nil {
			t.Fatal(result.Err)
		}
		if result.Value != 42 {
			t.Errorf("unexpected value: %d", result.Value)
		}
	})

	t.Run("it recovers panic in f as error", func(t *testing.T) {
		ctx := context.Background()

		promise := retry.Go(
			ctx, retry.StaticBackoff(1*time.Millisecond),
			func() (int, error) { panic(errors.New("boom")) },
		)

		result := <-promise
		if result.Err == nil {
			t.Fatal("panic is not converted to error")
		}
	})
}

func TestJitter(t *testing.T) {
	t.Run("it keeps the wrapped backoff's verdict", func(t *testing.T) {
		ctx := context.Background()

		b := retry.Jitter(retry.StaticBackoff(1*time.Millisecond), 2*time.Millisecond)
		if err := b(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it honours context during the extra wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		b := retry.Jitter(retry.StaticBackoff(1*time.Millisecond), 1*time.Hour)
		if err := b(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
