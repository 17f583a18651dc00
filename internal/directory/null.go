package directory

import (
	"context"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
)

// Null is a directory without users or groups.
type Null struct{}

// SearchUsers returns no users.
func (Null) SearchUsers(context.Context, string) ([]UserRecord, error) { return nil, nil }

// SearchGroups returns no groups.
func (Null) SearchGroups(context.Context, string) ([]GroupRecord, error) { return nil, nil }

// GetUser always fails with NotFound.
func (Null) GetUser(_ context.Context, login string) (UserRecord, error) {
	return UserRecord{}, apperr.New(apperr.KindNotFound, "directory.Null.GetUser", login)
}

// GetGroupMembers always fails with NotFound.
func (Null) GetGroupMembers(_ context.Context, groupID string) ([]UserRecord, error) {
	return nil, apperr.New(apperr.KindNotFound, "directory.Null.GetGroupMembers", groupID)
}

// GetGroupsForUser always fails with NotFound.
func (Null) GetGroupsForUser(_ context.Context, login string) ([]string, error) {
	return nil, apperr.New(apperr.KindNotFound, "directory.Null.GetGroupsForUser", login)
}
