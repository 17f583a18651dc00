// Package role implements the site role names and their total order.
package role

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a site role name.
type Role string

// Default site roles, weakest first.
const (
	None          Role = ""
	Subscriber    Role = "subscriber"
	Contributor   Role = "contributor"
	Author        Role = "author"
	Editor        Role = "editor"
	Administrator Role = "administrator"
)

var (
	// ErrEmptyHierarchy is returned when a hierarchy is built without roles.
	ErrEmptyHierarchy = errors.New("role hierarchy needs at least one role")
	// ErrDuplicateRole is returned when a role appears twice in a hierarchy.
	ErrDuplicateRole = errors.New("role appears more than once in hierarchy")
	// ErrInvalidRoleName is returned for an empty role name in a hierarchy.
	ErrInvalidRoleName = errors.New("role name can not be empty")
)

// Hierarchy is an immutable total order over roles.
// None ranks below every role.
type Hierarchy struct {
	order []Role
	ranks map[Role]int
}

// NewHierarchy builds a hierarchy from roles listed weakest first.
func NewHierarchy(roles ...Role) (*Hierarchy, error) {
	if len(roles) == 0 {
		return nil, ErrEmptyHierarchy
	}

	h := &Hierarchy{
		order: make([]Role, 0, len(roles)),
		ranks: make(map[Role]int, len(roles)),
	}

	for i, r := range roles {
		if r == None {
			return nil, ErrInvalidRoleName
		}

		if _, dup := h.ranks[r]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, r)
		}

		h.order = append(h.order, r)
		h.ranks[r] = i + 1
	}

	return h, nil
}

// Default returns the subscriber < contributor < author < editor < administrator hierarchy.
func Default() *Hierarchy {
	h, _ := NewHierarchy(Subscriber, Contributor, Author, Editor, Administrator) //nolint:errcheck

	return h
}

// FromStrings builds a hierarchy from configured role names.
// An empty list yields the default hierarchy.
func FromStrings(names []string) (*Hierarchy, error) {
	if len(names) == 0 {
		return Default(), nil
	}

	roles := make([]Role, 0, len(names))
	for _, n := range names {
		roles = append(roles, Role(strings.TrimSpace(n)))
	}

	return NewHierarchy(roles...)
}

// Known reports whether r is part of the hierarchy.
func (h *Hierarchy) Known(r Role) bool {
	_, ok := h.ranks[r]

	return ok
}

// Rank returns the position of r, 0 for None.
// It panics on a role that is not part of the hierarchy.
func (h *Hierarchy) Rank(r Role) int {
	if r == None {
		return 0
	}

	rank, ok := h.ranks[r]
	if !ok {
		panic(fmt.Sprintf("role: unknown role %q", string(r)))
	}

	return rank
}

// IsStrongerOrEqual reports rank(a) >= rank(b).
func (h *Hierarchy) IsStrongerOrEqual(a, b Role) bool {
	return h.Rank(a) >= h.Rank(b)
}

// IsStronger reports rank(a) > rank(b).
func (h *Hierarchy) IsStronger(a, b Role) bool {
	return h.Rank(a) > h.Rank(b)
}

// Roles returns the roles weakest first.
func (h *Hierarchy) Roles() []Role {
	out := make([]Role, len(h.order))
	copy(out, h.order)

	return out
}

// Article returns "an" for roles starting with a vowel, "a" otherwise.
func Article(r Role) string {
	if r == None {
		return "a"
	}

	switch strings.ToLower(string(r))[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an"
	default:
		return "a"
	}
}
