package static

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/config"
)

const fixture = `
users:
  - login: jdoe
    email: jdoe@example.edu
    nicename: jdoe
    nickname: jdoe
    display_name: Jane Doe
  - login: rroe
    email: rroe@example.edu
    nicename: rroe
    nickname: rroe
    display_name: Richard Roe
groups:
  - id: cn=hist101,ou=groups
    label: HIST 101
    members: [jdoe, rroe, ghost]
  - id: cn=faculty,ou=groups
    label: Faculty
    members: [jdoe]
`

func loadFixture(t *testing.T) *Directory {
	t.Helper()

	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	d, err := Factory(config.Directory{Kind: config.DirectoryStatic, Static: config.Static{File: path}})
	require.NoError(t, err)

	return d.(*Directory)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestGetGroupMembers(t *testing.T) {
	ctx := context.Background()
	d := loadFixture(t)

	testCases := []struct {
		name     string
		groupID  string
		logins   []string
		wantKind apperr.Kind
	}{
		{name: "members in file order", groupID: "cn=hist101,ou=groups", logins: []string{"jdoe", "rroe", "ghost"}},
		{name: "unknown group", groupID: "cn=gone,ou=groups", wantKind: apperr.KindNotFound},
		{name: "user id instead of group", groupID: "jdoe", wantKind: apperr.KindWrongEntityKind},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			members, err := d.GetGroupMembers(ctx, tc.groupID)
			if tc.wantKind != apperr.KindUnknown {
				assert.Equal(t, tc.wantKind, apperr.KindOf(err))
				return
			}

			require.NoError(t, err)

			logins := make([]string, 0, len(members))
			for _, m := range members {
				logins = append(logins, m.Login)
			}

			assert.Equal(t, tc.logins, logins)
			assert.Equal(t, "Jane Doe", members[0].DisplayName)
			assert.Empty(t, members[2].Email)
		})
	}
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	d := loadFixture(t)

	u, err := d.GetUser(ctx, "rroe")
	require.NoError(t, err)
	assert.Equal(t, "rroe@example.edu", u.Email)

	_, err = d.GetUser(ctx, "nobody")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	groups, err := d.GetGroupsForUser(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, []string{"cn=faculty,ou=groups", "cn=hist101,ou=groups"}, groups)

	_, err = d.GetGroupsForUser(ctx, "nobody")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	users, err := d.SearchUsers(ctx, "ROE")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "rroe", users[0].Login)

	found, err := d.SearchGroups(ctx, "hist")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "HIST 101", found[0].Label)
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	d := New(Data{})

	d.SetMembers("G1", "a", "b")
	members, err := d.GetGroupMembers(ctx, "G1")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	d.RemoveGroup("G1")
	_, err = d.GetGroupMembers(ctx, "G1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
