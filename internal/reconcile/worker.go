// Package reconcile frees slots that a failed booking left reserved with no
// appointment behind them.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type BookingIndex interface {
	ExistsActiveForSlot(ctx context.Context, key domain.SlotKey, clientID string) (bool, error)
}

type SlotReleaser interface {
	Release(ctx context.Context, key domain.SlotKey, clientID string) error
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Worker struct {
	orphans   store.OrphanRepository
	bookings  BookingIndex
	slots     SlotReleaser
	log       *slog.Logger
	interval  time.Duration
	batchSize int
}

// Result counts the outcome of one pass.
type Result struct {
	Released int
	Kept     int
	Failed   int
}

func NewWorker(orphans store.OrphanRepository, bookings BookingIndex, slots SlotReleaser, log *slog.Logger, cfg Config) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		orphans:   orphans,
		bookings:  bookings,
		slots:     slots,
		log:       log.With(slog.String("component", "reconcile")),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is done. Pass failures are logged and retried on the
// next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("reconciler started", slog.Duration("interval", w.interval), slog.Int("batch_size", w.batchSize))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Error("reconcile pass failed", slog.Any("err", err))
				continue
			}
			if res != (Result{}) {
				w.log.Info("reconcile pass",
					slog.Int("released", res.Released),
					slog.Int("kept", res.Kept),
					slog.Int("failed", res.Failed),
				)
			}
		}
	}
}

// RunOnce works through one batch of unresolved orphans. An orphan whose
// client has since booked the same slot again is resolved without a release.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	rows, err := w.orphans.ListUnresolved(ctx, w.batchSize)
	if err != nil {
		return res, err
	}

	for _, o := range rows {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log := w.log.With(
			slog.String("orphan_id", o.ID.String()),
			slog.String("service_id", o.ServiceID),
			slog.String("date", o.Date.String()),
			slog.String("start_time", o.StartTime),
			slog.String("client_id", o.ClientID),
		)

		booked, err := w.bookings.ExistsActiveForSlot(ctx, o.Key(), o.ClientID)
		if err != nil {
			res.Failed++
			w.markAttempt(ctx, log, o, err)
			continue
		}
		if booked {
			if err := w.orphans.MarkResolved(ctx, o.ID); err != nil {
				return res, err
			}
			res.Kept++
			log.Info("orphan resolved; slot backs a live appointment")
			continue
		}

		if err := w.slots.Release(ctx, o.Key(), o.ClientID); err != nil {
			res.Failed++
			w.markAttempt(ctx, log, o, err)
			continue
		}
		if err := w.orphans.MarkResolved(ctx, o.ID); err != nil {
			return res, err
		}
		res.Released++
		log.Info("orphaned slot released", slog.Int("attempts", o.Attempts+1))
	}
	return res, nil
}

func (w *Worker) markAttempt(ctx context.Context, log *slog.Logger, o domain.OrphanedReservation, cause error) {
	log.Warn("orphan release attempt failed", slog.Int("attempts", o.Attempts+1), slog.Any("err", cause))
	if err := w.orphans.MarkAttempt(ctx, o.ID, cause.Error()); err != nil {
		log.Error("orphan attempt could not be recorded", slog.Any("err", err))
	}
}
