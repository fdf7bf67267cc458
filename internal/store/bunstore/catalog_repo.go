package bunstore

import (
	"context"

	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
)

type CatalogRepo struct {
	db *bun.DB
}

func NewCatalogRepo(db *bun.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) GetService(ctx context.Context, id string) (domain.ServiceInfo, error) {
	var out domain.ServiceInfo
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.ServiceInfo{}, mapError(err)
	}
	return out, nil
}

func (r *CatalogRepo) GetUser(ctx context.Context, id string) (domain.UserInfo, error) {
	var out domain.UserInfo
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.UserInfo{}, mapError(err)
	}
	return out, nil
}

// PutService upserts a catalog service row. Used by seeding and tests.
func (r *CatalogRepo) PutService(ctx context.Context, s domain.ServiceInfo) error {
	m := s
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("duration_minutes = EXCLUDED.duration_minutes").
		Set("provider_id = EXCLUDED.provider_id").
		Exec(ctx)
	return err
}

// PutUser upserts a catalog user row. Used by seeding and tests.
func (r *CatalogRepo) PutUser(ctx context.Context, u domain.UserInfo) error {
	m := u
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("role = EXCLUDED.role").
		Set("provider_type = EXCLUDED.provider_type").
		Exec(ctx)
	return err
}
