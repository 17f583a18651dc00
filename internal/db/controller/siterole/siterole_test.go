package siterole

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/role"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.SiteRole{}), "failed to migrate test database")

	return db
}

func TestNew(t *testing.T) {
	_, err := New(nil, role.Default())
	require.ErrorIs(t, err, ErrDBNil)

	_, err = New(setupTestDB(t), nil)
	require.ErrorIs(t, err, ErrHierarchyNil)
}

func TestGrantRole(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		existing role.Role
		grant    role.Role
		wantErr  error
		expected role.Role
	}{
		{name: "non member gets role", existing: role.None, grant: role.Editor, expected: role.Editor},
		{name: "weaker role upgraded", existing: role.Author, grant: role.Editor, expected: role.Editor},
		{name: "equal role refused", existing: role.Editor, grant: role.Editor, wantErr: apperr.ErrAlreadyStrongerRole, expected: role.Editor},
		{name: "stronger role kept", existing: role.Administrator, grant: role.Editor, wantErr: apperr.ErrAlreadyStrongerRole, expected: role.Administrator},
		{name: "unknown role rejected", existing: role.None, grant: "wizard", wantErr: apperr.ErrValidation, expected: role.None},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(setupTestDB(t), role.Default())
			require.NoError(t, err)

			if tc.existing != role.None {
				require.NoError(t, s.SetRole(ctx, 1, 100, tc.existing))
			}

			err = s.GrantRole(ctx, 1, 100, tc.grant)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}

			current, err := s.CurrentRole(ctx, 1, 100)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, current)
		})
	}
}

func TestRevokeAndMembers(t *testing.T) {
	ctx := context.Background()

	s, err := New(setupTestDB(t), role.Default())
	require.NoError(t, err)

	require.NoError(t, s.GrantRole(ctx, 2, 100, role.Author))
	require.NoError(t, s.GrantRole(ctx, 1, 100, role.Editor))
	require.NoError(t, s.GrantRole(ctx, 1, 200, role.Subscriber))

	members, err := s.Members(ctx, 100)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, uint64(1), members[0].UserID)

	require.NoError(t, s.RevokeRole(ctx, 1, 100))
	require.NoError(t, s.RevokeRole(ctx, 1, 100))

	current, err := s.CurrentRole(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, role.None, current)

	current, err = s.CurrentRole(ctx, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, role.Subscriber, current)
}
