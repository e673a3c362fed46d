package rights

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserRight is the permission a user holds on one resource for one right type.
type UserRight struct {
	ID         string     `json:"id"`
	ResourceID string     `json:"resource_id"`
	Type       RightType  `json:"type"`
	UserID     string     `json:"user_id"`
	Rights     Permission `json:"rights"`
}

// UserInheritRight is a rule living on a parent resource: when the user creates
// a child resource, right type InheritType on that child receives Rights.
type UserInheritRight struct {
	ID          string     `json:"id"`
	ResourceID  string     `json:"resource_id"`
	Type        RightType  `json:"type"`
	UserID      string     `json:"user_id"`
	Rights      Permission `json:"rights"`
	InheritType RightType  `json:"inherit_type"`
}

// InheritForm describes the parent a new resource is created under.
type InheritForm struct {
	// Type and ResourceID locate the parent's inheritance rules.
	Type       RightType `json:"type"`
	ResourceID string    `json:"resource_id"`

	// ChildType is the right type of the resource being created. Copied rules
	// are stored under it.
	ChildType RightType `json:"child_type"`

	// InheritedTypes are evaluated against the parent's rules and granted on
	// the new resource, marked Inherited.
	InheritedTypes []RightType `json:"inherited_types,omitempty"`

	// CopyInheritTypes are parent rules copied onto the new resource so they
	// keep flowing to its own children.
	CopyInheritTypes []RightType `json:"copy_inherit_types,omitempty"`
}

// Store persists rights. A missing row is not an error: lookups return nil.
type Store interface {
	Get(ctx context.Context, userID, resourceID string, rightType RightType) (*UserRight, error)
	GetAll(ctx context.Context, userID, resourceID string) ([]UserRight, error)
	SetRight(ctx context.Context, userID, resourceID string, rightType RightType, rights Permission) (string, error)
	RemoveRight(ctx context.Context, userID, resourceID string, rightType RightType) error

	GetInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) (*UserInheritRight, error)
	GetAllInherit(ctx context.Context, userID, resourceID string) ([]UserInheritRight, error)
	SetInherit(ctx context.Context, inheritType RightType, userID, resourceID string, rightType RightType, rights Permission) (string, error)
	RemoveInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) error

	CreateRights(ctx context.Context, userID, resourceID string, granted map[RightType]Permission, inherit *InheritForm) error
	RemoveResource(ctx context.Context, resourceID string) error
}

var (
	// ErrStoreUnavailable wraps infrastructure failures of a store. Callers
	// may retry; they must not treat it as a denial.
	ErrStoreUnavailable = errors.New("rights store unavailable")

	// ErrInvalidRight is returned for writes with a blank id or unknown type.
	ErrInvalidRight = errors.New("invalid right")

	// ErrGrantCollision is returned when collection rights repeat the primary
	// right type of a new resource.
	ErrGrantCollision = errors.New("collection right collides with resource right")
)

// BatchError reports a CreateRights batch that stopped part way through.
type BatchError struct {
	UserID     string
	ResourceID string
	Granted    []RightType
	Failed     RightType
	Err        error
}

func (e *BatchError) Error() string {
	granted := make([]string, len(e.Granted))
	for i, t := range e.Granted {
		granted[i] = t.String()
	}
	return fmt.Sprintf("create rights for user %s on %s failed at %s (granted: [%s]): %v",
		e.UserID, e.ResourceID, e.Failed, strings.Join(granted, ", "), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func validateKey(userID, resourceID string, rightType RightType) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRight)
	}
	if strings.TrimSpace(resourceID) == "" {
		return fmt.Errorf("%w: resource id is required", ErrInvalidRight)
	}
	if !rightType.Valid() {
		return fmt.Errorf("%w: unknown right type %d", ErrInvalidRight, int(rightType))
	}
	return nil
}
