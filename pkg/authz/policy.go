package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
)

const (
	// DefaultResourceKey is the route parameter holding the resource id when
	// a policy does not name one.
	DefaultResourceKey = "id"

	// RootResourceKey makes a requirement check the root resource instead of
	// a route parameter.
	RootResourceKey = "root"

	policySeparator = ":"
)

var (
	// ErrNotPolicyName means the string is not in the encoded policy format
	// at all; another provider should handle it.
	ErrNotPolicyName = errors.New("not an encoded policy name")

	// ErrMalformedPolicyName means the string is in the encoded format but
	// cannot be decoded. Policy names are generated by code, so this is a bug.
	ErrMalformedPolicyName = errors.New("malformed policy name")
)

// PolicyNameError describes a policy name that failed to decode.
type PolicyNameError struct {
	Input   string
	Segment string
	Kind    error
	Err     error
}

func (e *PolicyNameError) Error() string {
	msg := fmt.Sprintf("%v %q", e.Kind, e.Input)
	if e.Segment != "" {
		msg += fmt.Sprintf(" at segment %q", e.Segment)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PolicyNameError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PolicyName is the (right type, access, resource key) triple that
// parameterises the generic rights policy.
type PolicyName struct {
	Type        rights.RightType
	Access      rights.Permission
	ResourceKey string
}

// NewPolicyName creates a policy name, defaulting the resource key. A key
// containing the separator could not be decoded again and is rejected.
func NewPolicyName(t rights.RightType, access rights.Permission, resourceKey string) (PolicyName, error) {
	if resourceKey == "" {
		resourceKey = DefaultResourceKey
	}
	if strings.Contains(resourceKey, policySeparator) {
		return PolicyName{}, &PolicyNameError{
			Input:   resourceKey,
			Segment: resourceKey,
			Kind:    ErrMalformedPolicyName,
			Err:     fmt.Errorf("resource key must not contain %q", policySeparator),
		}
	}
	return PolicyName{Type: t, Access: access, ResourceKey: resourceKey}, nil
}

// String encodes the policy name as "{Type}:{Access}:{ResourceKey}".
func (p PolicyName) String() string {
	key := p.ResourceKey
	if key == "" {
		key = DefaultResourceKey
	}
	return p.Type.String() + policySeparator + p.Access.String() + policySeparator + key
}

// Requirement returns the requirement the policy name stands for.
func (p PolicyName) Requirement() Requirement {
	key := p.ResourceKey
	if key == "" {
		key = DefaultResourceKey
	}
	return Requirement{Type: p.Type, Permission: p.Access, ResourceKey: key}
}

// ParsePolicyName decodes a string produced by PolicyName.String.
func ParsePolicyName(s string) (PolicyName, error) {
	if !strings.Contains(s, policySeparator) {
		return PolicyName{}, &PolicyNameError{Input: s, Kind: ErrNotPolicyName}
	}

	parts := strings.Split(s, policySeparator)
	if len(parts) != 3 {
		return PolicyName{}, &PolicyNameError{
			Input: s,
			Kind:  ErrMalformedPolicyName,
			Err:   fmt.Errorf("expected 3 segments, got %d", len(parts)),
		}
	}

	t, err := rights.ParseRightType(parts[0])
	if err != nil {
		return PolicyName{}, &PolicyNameError{Input: s, Segment: parts[0], Kind: ErrMalformedPolicyName, Err: err}
	}

	access, err := rights.ParsePermission(parts[1])
	if err != nil {
		return PolicyName{}, &PolicyNameError{Input: s, Segment: parts[1], Kind: ErrMalformedPolicyName, Err: err}
	}

	if strings.TrimSpace(parts[2]) == "" {
		return PolicyName{}, &PolicyNameError{
			Input: s,
			Kind:  ErrMalformedPolicyName,
			Err:   errors.New("empty resource key"),
		}
	}

	return PolicyName{Type: t, Access: access, ResourceKey: parts[2]}, nil
}
