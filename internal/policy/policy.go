// Package policy holds access rules that decide which records an actor may
// act on. It never touches persistence.
package policy

import (
	"fmt"
	"strings"

	"agenda/backend/internal/domain"
)

// ResolveOwner picks the owner of a record an actor is creating. Providers
// always own what they create and may not act for another provider. Admins
// must name an owner. Other roles are refused.
func ResolveOwner(actorRole domain.Role, actorID, requestedOwnerID string) (string, error) {
	requested := strings.TrimSpace(requestedOwnerID)

	switch actorRole {
	case domain.RoleProvider:
		if actorID == "" {
			return "", fmt.Errorf("%w: provider id required", domain.ErrInvalidInput)
		}
		if requested != "" && requested != actorID {
			return "", fmt.Errorf("%w: provider %s may not act for %s", domain.ErrForbidden, actorID, requested)
		}
		return actorID, nil
	case domain.RoleAdmin:
		if requested == "" {
			return "", fmt.Errorf("%w: owner id required", domain.ErrInvalidInput)
		}
		return requested, nil
	default:
		return "", fmt.Errorf("%w: role %q may not manage slots", domain.ErrForbidden, actorRole)
	}
}

// CanModify reports whether actor may change a record owned by ownerID.
func CanModify(actor domain.Actor, ownerID string) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleProvider:
		if actor.ID != "" && actor.ID == ownerID {
			return nil
		}
		return fmt.Errorf("%w: provider %s does not own this record", domain.ErrForbidden, actor.ID)
	default:
		return fmt.Errorf("%w: role %q may not modify this record", domain.ErrForbidden, actor.Role)
	}
}
