package rights

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// DefaultCreatorPermission is what the creator of a resource receives on it.
const DefaultCreatorPermission = FullCreatorOwner

// ComputeInitialGrants returns the rights a creator receives on a new
// resource: creatorPermission on resourceType, plus every collection right.
// A collection right on resourceType itself is rejected with
// ErrGrantCollision rather than silently overwriting the primary grant.
func ComputeInitialGrants(creatorID string, resourceType RightType, creatorPermission Permission, collectionRights map[RightType]Permission) (map[RightType]Permission, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, fmt.Errorf("%w: creator id is required", ErrInvalidRight)
	}
	if !resourceType.Valid() {
		return nil, fmt.Errorf("%w: unknown right type %d", ErrInvalidRight, int(resourceType))
	}

	grants := make(map[RightType]Permission, len(collectionRights)+1)
	grants[resourceType] = creatorPermission

	for t, p := range collectionRights {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown right type %d", ErrInvalidRight, int(t))
		}
		if t == resourceType {
			return nil, fmt.Errorf("%w: %s", ErrGrantCollision, t)
		}
		grants[t] = p
	}
	return grants, nil
}

// CreateRequest describes a newly created resource.
type CreateRequest struct {
	CreatorID         string
	ResourceID        string
	Type              RightType
	CreatorPermission Permission
	CollectionRights  map[RightType]Permission
	Inherit           *InheritForm
}

// Propagator persists the initial grants of newly created resources.
type Propagator struct {
	store Store
}

// NewPropagator creates a propagator writing to store
func NewPropagator(store Store) *Propagator {
	return &Propagator{store: store}
}

// Create computes the creator's grants and persists them. A zero
// CreatorPermission means DefaultCreatorPermission.
func (p *Propagator) Create(ctx context.Context, req CreateRequest) (map[RightType]Permission, error) {
	perm := req.CreatorPermission
	if perm == None {
		perm = DefaultCreatorPermission
	}

	grants, err := ComputeInitialGrants(req.CreatorID, req.Type, perm, req.CollectionRights)
	if err != nil {
		return nil, err
	}

	inherit := req.Inherit
	if inherit != nil {
		form := *inherit
		form.ChildType = req.Type
		inherit = &form
	}

	if err := p.store.CreateRights(ctx, req.CreatorID, req.ResourceID, grants, inherit); err != nil {
		return nil, err
	}
	return grants, nil
}

// inheritLookup fetches one inheritance rule; nil means no rule.
type inheritLookup func(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) (*UserInheritRight, error)

// rightsPlan is the full set of rows CreateRights writes.
type rightsPlan struct {
	rights []UserRight
	copies []UserInheritRight
}

// planRights expands granted with whatever the parent's inheritance rules
// give the user. Rows are ordered by right type.
func planRights(ctx context.Context, lookup inheritLookup, userID, resourceID string, granted map[RightType]Permission, inherit *InheritForm) (*rightsPlan, error) {
	merged := make(map[RightType]Permission, len(granted))
	for t, p := range granted {
		if err := validateKey(userID, resourceID, t); err != nil {
			return nil, err
		}
		merged[t] = p
	}

	plan := &rightsPlan{}
	if inherit != nil {
		for _, t := range inherit.InheritedTypes {
			rule, err := lookup(ctx, userID, inherit.ResourceID, inherit.Type, t)
			if err != nil {
				return nil, err
			}
			if rule == nil {
				continue
			}
			merged[t] = merged[t] | rule.Rights | Inherited
		}

		for _, t := range inherit.CopyInheritTypes {
			rule, err := lookup(ctx, userID, inherit.ResourceID, inherit.Type, t)
			if err != nil {
				return nil, err
			}
			if rule == nil {
				continue
			}
			plan.copies = append(plan.copies, UserInheritRight{
				ResourceID:  resourceID,
				Type:        inherit.ChildType,
				UserID:      userID,
				Rights:      rule.Rights,
				InheritType: t,
			})
		}
	}

	for t, p := range merged {
		plan.rights = append(plan.rights, UserRight{
			ResourceID: resourceID,
			Type:       t,
			UserID:     userID,
			Rights:     p,
		})
	}
	sort.Slice(plan.rights, func(i, j int) bool { return plan.rights[i].Type < plan.rights[j].Type })
	return plan, nil
}

// writeSequential applies a plan one row at a time through store and reports
// how far it got when a write fails.
func writeSequential(ctx context.Context, store Store, userID, resourceID string, plan *rightsPlan) error {
	granted := make([]RightType, 0, len(plan.rights))
	for _, r := range plan.rights {
		if _, err := store.SetRight(ctx, r.UserID, r.ResourceID, r.Type, r.Rights); err != nil {
			return &BatchError{UserID: userID, ResourceID: resourceID, Granted: granted, Failed: r.Type, Err: err}
		}
		granted = append(granted, r.Type)
	}
	for _, c := range plan.copies {
		if _, err := store.SetInherit(ctx, c.InheritType, c.UserID, c.ResourceID, c.Type, c.Rights); err != nil {
			return &BatchError{UserID: userID, ResourceID: resourceID, Granted: granted, Failed: c.InheritType, Err: err}
		}
	}
	return nil
}
