package groupsync

import (
	"fmt"

	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/role"
)

// ChangeKind classifies a change log entry.
type ChangeKind uint8

const (
	// Added means a non member was given a role.
	Added ChangeKind = iota + 1
	// Upgraded means a member was given a stronger role.
	Upgraded
	// Removed means a member was removed from the site.
	Removed
	// Failed means a per user step failed and was skipped.
	Failed
)

var changeKindNames = map[ChangeKind]string{
	Added:    "added",
	Upgraded: "upgraded",
	Removed:  "removed",
	Failed:   "failed",
}

func (k ChangeKind) String() string {
	if name, ok := changeKindNames[k]; ok {
		return name
	}

	return "unknown"
}

// MarshalText renders the kind by name.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *ChangeKind) UnmarshalText(text []byte) error {
	for kind, name := range changeKindNames {
		if name == string(text) {
			*k = kind

			return nil
		}
	}

	return fmt.Errorf("unknown change kind %q", string(text))
}

// Change is one entry of the change log returned by a sync.
type Change struct {
	Kind        ChangeKind `json:"kind"`
	SiteID      uint64     `json:"site_id"`
	GroupID     string     `json:"group_id"`
	UserID      uint64     `json:"user_id"`
	Login       string     `json:"login"`
	DisplayName string     `json:"display_name"`
	Role        role.Role  `json:"role,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func newChange(kind ChangeKind, siteID uint64, groupID string, u *models.User, r role.Role) Change {
	c := Change{Kind: kind, SiteID: siteID, GroupID: groupID, Role: r}

	if u != nil {
		c.UserID = u.ID
		c.Login = u.Login
		c.DisplayName = u.DisplayName
	}

	return c
}

func (c Change) name() string {
	switch {
	case c.DisplayName != "":
		return c.DisplayName
	case c.Login != "":
		return c.Login
	default:
		return fmt.Sprintf("user %d", c.UserID)
	}
}

// String renders the entry as a sentence for display.
func (c Change) String() string {
	switch c.Kind {
	case Added:
		return fmt.Sprintf("Added %s as %s %s.", c.name(), role.Article(c.Role), c.Role)
	case Upgraded:
		return fmt.Sprintf("Changed %s to %s %s.", c.name(), role.Article(c.Role), c.Role)
	case Removed:
		return fmt.Sprintf("Removed %s.", c.name())
	case Failed:
		return fmt.Sprintf("Could not update %s: %s", c.name(), c.Error)
	default:
		return c.name()
	}
}

// Messages renders every change with String.
func Messages(changes []Change) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.String())
	}

	return out
}

// GroupResult is the outcome of one registration in a bulk sync.
type GroupResult struct {
	SiteID  uint64    `json:"site_id"`
	GroupID string    `json:"group_id"`
	Role    role.Role `json:"role"`
	Changes []Change  `json:"changes"`
	Err     error     `json:"-"`
	Error   string    `json:"error,omitempty"`
}

// UserSyncedEvent is passed to observers after SyncUserAcrossGroups.
type UserSyncedEvent struct {
	UserID  uint64
	Login   string
	Groups  []string
	Changes []Change
}
