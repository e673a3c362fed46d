package rights

import "fmt"

// RightType identifies the kind of protected resource (or resource collection)
// a grant applies to. Values are persisted: append new types at the end and
// never renumber.
type RightType int

const (
	Root RightType = iota
	RootUserCollection
	RootTenantCollection
	Tenant
	TenantUserCollection
	TenantTodoCollection
	User
	UserTodoCollection
	UserTenantCollection
	UserTagCollection
	Todo
	TodoTagCollection
	TodoCommentCollection
	Tag
	TagTodoCollection
	Comment
)

var rightTypeNames = []string{
	Root:                  "Root",
	RootUserCollection:    "RootUserCollection",
	RootTenantCollection:  "RootTenantCollection",
	Tenant:                "Tenant",
	TenantUserCollection:  "TenantUserCollection",
	TenantTodoCollection:  "TenantTodoCollection",
	User:                  "User",
	UserTodoCollection:    "UserTodoCollection",
	UserTenantCollection:  "UserTenantCollection",
	UserTagCollection:     "UserTagCollection",
	Todo:                  "Todo",
	TodoTagCollection:     "TodoTagCollection",
	TodoCommentCollection: "TodoCommentCollection",
	Tag:                   "Tag",
	TagTodoCollection:     "TagTodoCollection",
	Comment:               "Comment",
}

var rightTypesByName = func() map[string]RightType {
	m := make(map[string]RightType, len(rightTypeNames))
	for i, name := range rightTypeNames {
		m[name] = RightType(i)
	}
	return m
}()

// RightTypes returns every known right type in persisted order.
func RightTypes() []RightType {
	types := make([]RightType, len(rightTypeNames))
	for i := range rightTypeNames {
		types[i] = RightType(i)
	}
	return types
}

// Valid reports whether t is a known right type.
func (t RightType) Valid() bool {
	return t >= 0 && int(t) < len(rightTypeNames)
}

func (t RightType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("RightType(%d)", int(t))
	}
	return rightTypeNames[t]
}

// ParseRightType returns the right type with the given name.
func ParseRightType(name string) (RightType, error) {
	t, ok := rightTypesByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown right type %q", name)
	}
	return t, nil
}

// MarshalText implements encoding.TextMarshaler.
func (t RightType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid right type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RightType) UnmarshalText(text []byte) error {
	v, err := ParseRightType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
