// Package saga runs short multi-step workflows whose steps touch records that
// cannot share one store transaction. When a step fails, the steps that
// already completed are compensated in reverse order.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Step is one unit of a saga. Compensate may be nil for steps with no side
// effect worth undoing. Abandoned is called when Compensate keeps failing
// after every retry.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context) error
	Abandoned  func(ctx context.Context, err error)
}

type Runner struct {
	log      *slog.Logger
	maxTries uint
	initial  time.Duration
	maxDelay time.Duration
	ignore   func(error) bool
}

type Option func(*Runner)

// WithRetry bounds compensation retries.
func WithRetry(maxTries uint, initial, maxDelay time.Duration) Option {
	return func(r *Runner) {
		if maxTries > 0 {
			r.maxTries = maxTries
		}
		if initial > 0 {
			r.initial = initial
		}
		if maxDelay > 0 {
			r.maxDelay = maxDelay
		}
	}
}

// WithIgnore marks compensation errors that count as success, such as a
// record that is already gone.
func WithIgnore(fn func(error) bool) Option {
	return func(r *Runner) {
		r.ignore = fn
	}
}

func NewRunner(log *slog.Logger, opts ...Option) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		log:      log.With(slog.String("component", "saga")),
		maxTries: 5,
		initial:  50 * time.Millisecond,
		maxDelay: time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes steps in order. On the first failure it compensates every
// completed step in reverse and returns the step error joined with any
// compensation errors.
func (r *Runner) Run(ctx context.Context, name string, steps ...Step) error {
	done := make([]Step, 0, len(steps))
	for _, step := range steps {
		if err := step.Do(ctx); err != nil {
			stepErr := fmt.Errorf("%s: %s: %w", name, step.Name, err)
			compErr := r.compensate(ctx, name, done)
			return errors.Join(stepErr, compErr)
		}
		done = append(done, step)
	}
	return nil
}

func (r *Runner) compensate(ctx context.Context, name string, done []Step) error {
	// Compensation must still run when the caller's context is already done.
	cctx := context.WithoutCancel(ctx)

	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		err := r.retry(cctx, step)
		if err == nil {
			r.log.Info("step compensated", slog.String("saga", name), slog.String("step", step.Name))
			continue
		}

		r.log.Error("compensation failed",
			slog.String("saga", name),
			slog.String("step", step.Name),
			slog.Any("err", err),
		)
		if step.Abandoned != nil {
			step.Abandoned(cctx, err)
		}
		errs = append(errs, fmt.Errorf("%s: compensate %s: %w", name, step.Name, err))
	}
	return errors.Join(errs...)
}

func (r *Runner) retry(ctx context.Context, step Step) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.maxDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := step.Compensate(ctx)
		if err == nil || (r.ignore != nil && r.ignore(err)) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("compensation attempt failed",
				slog.String("step", step.Name),
				slog.Duration("retry_in", next),
				slog.Any("err", err),
			)
		}),
	)
	return err
}
