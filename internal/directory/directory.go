// Package directory defines the contract of the external user and group
// directory and the records it returns.
//
// Group ids are opaque. Adapters may derive a label for a group, the rest of
// the system never parses an id.
package directory

import (
	"context"
)

// UserRecord is a user as the directory describes it.
type UserRecord struct {
	Login       string `json:"login" yaml:"login" validate:"required,max=191"`
	Email       string `json:"email" yaml:"email" validate:"required,email,max=191"`
	Nicename    string `json:"nicename" yaml:"nicename" validate:"required,max=100"`
	Nickname    string `json:"nickname" yaml:"nickname" validate:"required,max=100"`
	FirstName   string `json:"first_name" yaml:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" yaml:"last_name" validate:"max=100"`
	DisplayName string `json:"display_name" yaml:"display_name" validate:"required,max=255"`
}

// GroupRecord is a group found by a search.
type GroupRecord struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// Directory is implemented by every directory adapter.
//
// Lookups of a missing entity fail with apperr KindNotFound, I/O failures with
// KindTransport. GetGroupMembers on a user id fails with KindWrongEntityKind.
type Directory interface {
	SearchUsers(ctx context.Context, query string) ([]UserRecord, error)
	SearchGroups(ctx context.Context, query string) ([]GroupRecord, error)
	GetUser(ctx context.Context, login string) (UserRecord, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]UserRecord, error)
	GetGroupsForUser(ctx context.Context, login string) ([]string, error)
}
