package rights

import (
	"context"
	"fmt"
)

// Resolver answers permission questions against a Store.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver reading from store
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// IsAllowed reports whether the user holds every bit of required for the
// right type on the resource. No grant means false; store faults are errors.
func (r *Resolver) IsAllowed(ctx context.Context, userID, resourceID string, rightType RightType, required Permission) (bool, error) {
	right, err := r.store.Get(ctx, userID, resourceID, rightType)
	if err != nil {
		return false, fmt.Errorf("resolve %s for user %s on %s: %w", rightType, userID, resourceID, err)
	}
	if right == nil {
		return false, nil
	}
	return Allow(right.Rights, required), nil
}

// Effective returns every permission the user holds on the resource, keyed by
// right type.
func (r *Resolver) Effective(ctx context.Context, userID, resourceID string) (map[RightType]Permission, error) {
	rights, err := r.store.GetAll(ctx, userID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("effective rights for user %s on %s: %w", userID, resourceID, err)
	}

	effective := make(map[RightType]Permission, len(rights))
	for _, right := range rights {
		effective[right.Type] = right.Rights
	}
	return effective, nil
}
