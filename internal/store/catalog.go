package store

import (
	"context"

	"agenda/backend/internal/domain"
)

// CatalogRepository reads the service and user records owned by other
// subsystems. The engine never writes them.
type CatalogRepository interface {
	GetService(ctx context.Context, id string) (domain.ServiceInfo, error)
	GetUser(ctx context.Context, id string) (domain.UserInfo, error)
}
