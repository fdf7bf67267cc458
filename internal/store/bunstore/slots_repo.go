package bunstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type SlotRepo struct {
	db *bun.DB
}

func NewSlotRepo(db *bun.DB) *SlotRepo {
	return &SlotRepo{db: db}
}

type slotTx struct {
	tx bun.Tx
}

func (r *SlotRepo) Get(ctx context.Context, id uuid.UUID) (domain.ServiceSlot, error) {
	var out domain.ServiceSlot
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.ServiceSlot{}, mapError(err)
	}
	return out, nil
}

func (r *SlotRepo) ListByKey(ctx context.Context, key domain.SlotKey) ([]domain.ServiceSlot, error) {
	var rows []domain.ServiceSlot
	err := r.db.NewSelect().
		Model(&rows).
		Where("service_id = ?", key.ServiceID).
		Where("day = ?", key.Date).
		Where("start_time = ?", key.StartTime).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SlotRepo) ListAvailable(ctx context.Context, serviceID string, date domain.Date) ([]domain.ServiceSlot, error) {
	var rows []domain.ServiceSlot
	q := r.db.NewSelect().
		Model(&rows).
		Where("service_id = ?", serviceID).
		Where("status = ?", domain.SlotStatusAvailable)
	if !date.IsZero() {
		q = q.Where("day = ?", date)
	}
	if err := q.OrderExpr("day ASC, start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SlotRepo) ListByProvider(ctx context.Context, providerID string, date domain.Date) ([]domain.ServiceSlot, error) {
	return listForProviderDay(ctx, r.db, providerID, date)
}

func (r *SlotRepo) Reserve(ctx context.Context, key domain.SlotKey, clientID string) (domain.ServiceSlot, error) {
	var candidates []domain.ServiceSlot
	err := r.db.NewSelect().
		Model(&candidates).
		Column("id").
		Where("service_id = ?", key.ServiceID).
		Where("day = ?", key.Date).
		Where("start_time = ?", key.StartTime).
		Where("status = ?", domain.SlotStatusAvailable).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return domain.ServiceSlot{}, err
	}

	// Each update is guarded on the row still being available, so two
	// concurrent callers can never both take the same slot.
	for _, c := range candidates {
		res, err := r.db.NewUpdate().
			Model((*domain.ServiceSlot)(nil)).
			Set("status = ?", domain.SlotStatusReserved).
			Set("client_id = ?", clientID).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", c.ID).
			Where("status = ?", domain.SlotStatusAvailable).
			Exec(ctx)
		if err != nil {
			return domain.ServiceSlot{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return domain.ServiceSlot{}, err
		}
		if n == 1 {
			return r.Get(ctx, c.ID)
		}
	}
	return domain.ServiceSlot{}, store.ErrConflict
}

func (r *SlotRepo) Release(ctx context.Context, key domain.SlotKey, clientID string) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.ServiceSlot)(nil)).
		Set("status = ?", domain.SlotStatusAvailable).
		Set("client_id = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("service_id = ?", key.ServiceID).
		Where("day = ?", key.Date).
		Where("start_time = ?", key.StartTime).
		Where("client_id = ?", clientID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SlotRepo) CompareAndSwap(ctx context.Context, expected domain.SlotStatus, next domain.ServiceSlot) (domain.ServiceSlot, error) {
	m := next
	res, err := r.db.NewUpdate().
		Model(&m).
		Column("status", "client_id", "notes", "updated_at").
		WherePK().
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	if n == 0 {
		return domain.ServiceSlot{}, store.ErrConflict
	}
	return r.Get(ctx, m.ID)
}

func (r *SlotRepo) InProviderDayTransaction(ctx context.Context, providerID string, date domain.Date, fn func(ctx context.Context, tx store.SlotTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockKey(ctx, tx, "provider-day:"+providerID+":"+date.String()); err != nil {
			return err
		}
		return fn(ctx, slotTx{tx: tx})
	})
}

func (t slotTx) ListForProviderDay(ctx context.Context, providerID string, date domain.Date) ([]domain.ServiceSlot, error) {
	return listForProviderDay(ctx, t.tx, providerID, date)
}

func (t slotTx) InsertSlots(ctx context.Context, slots []domain.ServiceSlot) ([]domain.ServiceSlot, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	rows := make([]domain.ServiceSlot, len(slots))
	copy(rows, slots)
	// Per-row inserts keep the model hooks running on every element.
	for i := range rows {
		if _, err := t.tx.NewInsert().Model(&rows[i]).Exec(ctx); err != nil {
			return nil, mapError(err)
		}
	}
	return rows, nil
}

func listForProviderDay(ctx context.Context, db bun.IDB, providerID string, date domain.Date) ([]domain.ServiceSlot, error) {
	var rows []domain.ServiceSlot
	q := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID)
	if !date.IsZero() {
		q = q.Where("day = ?", date)
	}
	if err := q.OrderExpr("day ASC, start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

type OrphanRepo struct {
	db *bun.DB
}

func NewOrphanRepo(db *bun.DB) *OrphanRepo {
	return &OrphanRepo{db: db}
}

func (r *OrphanRepo) RecordOrphan(ctx context.Context, o domain.OrphanedReservation) (domain.OrphanedReservation, error) {
	m := o
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.OrphanedReservation{}, mapError(err)
	}
	return m, nil
}

func (r *OrphanRepo) ListUnresolved(ctx context.Context, limit int) ([]domain.OrphanedReservation, error) {
	var rows []domain.OrphanedReservation
	q := r.db.NewSelect().
		Model(&rows).
		Where("resolved_at IS NULL").
		OrderExpr("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OrphanRepo) MarkResolved(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model((*domain.OrphanedReservation)(nil)).
		Set("resolved_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r *OrphanRepo) MarkAttempt(ctx context.Context, id uuid.UUID, lastErr string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.OrphanedReservation)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", lastErr).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
