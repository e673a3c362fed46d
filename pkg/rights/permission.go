package rights

import (
	"fmt"
	"strconv"
	"strings"
)

// Permission is a bitset of access rights held on a resource.
type Permission uint32

// Primitive rights. Patch shares the Put bit: granting Put also grants Patch.
const (
	None Permission = 0

	Get    Permission = 1 << 0
	Put    Permission = 1 << 1
	Post   Permission = 1 << 2
	Delete Permission = 1 << 3
	Patch             = Put

	GetPermissions        Permission = 1 << 16
	PutPermissions        Permission = 1 << 17
	GetInheritPermissions Permission = 1 << 18
	PutInheritPermissions Permission = 1 << 19

	// Inherited marks rights that were propagated from a parent resource.
	Inherited Permission = 1 << 29
	Owner     Permission = 1 << 30
	Creator   Permission = 1 << 31
)

// Composite rights.
const (
	View             = Get
	AllAccess        = Get | Put | Post | Delete
	ControlAccess    = GetPermissions | PutPermissions | GetInheritPermissions | PutInheritPermissions
	FullControl      = AllAccess | ControlAccess
	CreatorOwner     = Creator | Owner
	FullCreatorOwner = FullControl | CreatorOwner
)

type namedPermission struct {
	name  string
	value Permission
}

// formatOrder lists the names String emits, largest composites first so that
// decomposition prefers the most compact spelling.
var formatOrder = []namedPermission{
	{"FullCreatorOwner", FullCreatorOwner},
	{"FullControl", FullControl},
	{"AllAccess", AllAccess},
	{"ControlAccess", ControlAccess},
	{"CreatorOwner", CreatorOwner},
	{"Get", Get},
	{"Put", Put},
	{"Post", Post},
	{"Delete", Delete},
	{"GetPermissions", GetPermissions},
	{"PutPermissions", PutPermissions},
	{"GetInheritPermissions", GetInheritPermissions},
	{"PutInheritPermissions", PutInheritPermissions},
	{"Inherited", Inherited},
	{"Owner", Owner},
	{"Creator", Creator},
}

// permissionsByName also accepts aliases that String never produces.
var permissionsByName = func() map[string]Permission {
	m := map[string]Permission{
		"None":  None,
		"View":  View,
		"Patch": Patch,
	}
	for _, np := range formatOrder {
		m[np.name] = np.value
	}
	return m
}()

// Allow reports whether granted contains every bit of required.
//
// Allow(g, None) is vacuously true for any g. Never use None as a "deny"
// requirement: it allows everybody, including users with no grant at all.
func Allow(granted, required Permission) bool {
	return granted&required == required
}

// Has is Allow with the receiver as the granted side.
func (p Permission) Has(required Permission) bool {
	return Allow(p, required)
}

// Add returns p with the bits of other set.
func (p Permission) Add(other Permission) Permission {
	return p | other
}

// Remove returns p with the bits of other cleared.
func (p Permission) Remove(other Permission) Permission {
	return p &^ other
}

// String returns the canonical name of p. Values that are not a single named
// flag are rendered as a "|" separated list, composites first. Bits without a
// name are appended as a hex literal.
func (p Permission) String() string {
	if p == None {
		return "None"
	}

	var parts []string
	rest := p
	for _, np := range formatOrder {
		if rest&np.value == np.value {
			parts = append(parts, np.name)
			rest &^= np.value
		}
		if rest == 0 {
			break
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParsePermission parses the forms produced by String, plus the aliases View
// and Patch.
func ParsePermission(s string) (Permission, error) {
	if strings.TrimSpace(s) == "" {
		return None, fmt.Errorf("empty permission")
	}

	var p Permission
	for _, token := range strings.Split(s, "|") {
		token = strings.TrimSpace(token)
		if v, ok := permissionsByName[token]; ok {
			p |= v
			continue
		}
		if strings.HasPrefix(token, "0x") {
			v, err := strconv.ParseUint(token, 0, 32)
			if err == nil {
				p |= Permission(v)
				continue
			}
		}
		return None, fmt.Errorf("unknown permission %q", token)
	}
	return p, nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	v, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
