package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func testRunner(opts ...Option) *Runner {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithRetry(3, time.Millisecond, 2*time.Millisecond)}, opts...)
	return NewRunner(log, opts...)
}

func TestRun_AllStepsSucceed(t *testing.T) {
	var calls []string
	step := func(name string) Step {
		return Step{
			Name: name,
			Do: func(ctx context.Context) error {
				calls = append(calls, "do:"+name)
				return nil
			},
			Compensate: func(ctx context.Context) error {
				calls = append(calls, "undo:"+name)
				return nil
			},
		}
	}

	if err := testRunner().Run(context.Background(), "book", step("a"), step("b")); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []string{"do:a", "do:b"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestRun_CompensatesCompletedStepsInReverse(t *testing.T) {
	boom := errors.New("boom")
	var calls []string
	ok := func(name string) Step {
		return Step{
			Name: name,
			Do: func(ctx context.Context) error {
				calls = append(calls, "do:"+name)
				return nil
			},
			Compensate: func(ctx context.Context) error {
				calls = append(calls, "undo:"+name)
				return nil
			},
		}
	}
	failing := Step{
		Name: "c",
		Do: func(ctx context.Context) error {
			calls = append(calls, "do:c")
			return boom
		},
		Compensate: func(ctx context.Context) error {
			t.Fatalf("failed step must not be compensated")
			return nil
		},
	}

	err := testRunner().Run(context.Background(), "book", ok("a"), ok("b"), failing)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	want := []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestRun_CompensationRetriesTransientFailures(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	steps := []Step{
		{
			Name: "reserve",
			Do:   func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				attempts++
				if attempts < 3 {
					return errors.New("transient")
				}
				return nil
			},
			Abandoned: func(ctx context.Context, err error) {
				t.Fatalf("Abandoned called for recovered compensation: %v", err)
			},
		},
		{Name: "persist", Do: func(ctx context.Context) error { return boom }},
	}

	err := testRunner().Run(context.Background(), "book", steps...)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRun_AbandonedCompensationIsReported(t *testing.T) {
	boom := errors.New("boom")
	stuck := errors.New("store down")
	var abandoned error
	steps := []Step{
		{
			Name:       "reserve",
			Do:         func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return stuck },
			Abandoned:  func(ctx context.Context, err error) { abandoned = err },
		},
		{Name: "persist", Do: func(ctx context.Context) error { return boom }},
	}

	err := testRunner().Run(context.Background(), "book", steps...)
	if !errors.Is(err, boom) || !errors.Is(err, stuck) {
		t.Fatalf("error = %v, want both %v and %v", err, boom, stuck)
	}
	if !errors.Is(abandoned, stuck) {
		t.Fatalf("abandoned = %v, want %v", abandoned, stuck)
	}
}

func TestRun_IgnoredCompensationErrorCountsAsSuccess(t *testing.T) {
	boom := errors.New("boom")
	gone := errors.New("gone")
	attempts := 0
	steps := []Step{
		{
			Name: "reserve",
			Do:   func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				attempts++
				return gone
			},
		},
		{Name: "persist", Do: func(ctx context.Context) error { return boom }},
	}

	r := testRunner(WithIgnore(func(err error) bool { return errors.Is(err, gone) }))
	err := r.Run(context.Background(), "book", steps...)
	if !errors.Is(err, boom) || errors.Is(err, gone) {
		t.Fatalf("error = %v, want only %v", err, boom)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestRun_CompensatesAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	compensated := false
	steps := []Step{
		{
			Name: "reserve",
			Do:   func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				compensated = true
				return nil
			},
		},
		{
			Name: "persist",
			Do: func(ctx context.Context) error {
				cancel()
				return ctx.Err()
			},
		},
	}

	err := testRunner().Run(ctx, "book", steps...)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want %v", err, context.Canceled)
	}
	if !compensated {
		t.Fatalf("compensation did not run after cancellation")
	}
}
