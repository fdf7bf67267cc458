// Package catalog adapts the service and user records owned by other
// subsystems to the narrow lookups the booking engine needs.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type Directory struct {
	repo store.CatalogRepository
}

func NewDirectory(repo store.CatalogRepository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) GetService(ctx context.Context, id string) (domain.ServiceInfo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ServiceInfo{}, fmt.Errorf("%w: service id required", domain.ErrInvalidInput)
	}
	svc, err := d.repo.GetService(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ServiceInfo{}, fmt.Errorf("service %s: %w", id, domain.ErrServiceNotFound)
	}
	if err != nil {
		return domain.ServiceInfo{}, err
	}
	return svc, nil
}

// GetUser fails with domain.ErrNotFound for unknown ids; callers translate it
// to the role-specific error they report.
func (d *Directory) GetUser(ctx context.Context, id string) (domain.UserInfo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.UserInfo{}, fmt.Errorf("%w: user id required", domain.ErrInvalidInput)
	}
	u, err := d.repo.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.UserInfo{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.UserInfo{}, err
	}
	return u, nil
}
