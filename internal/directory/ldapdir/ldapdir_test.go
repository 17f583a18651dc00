package ldapdir

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/config"
)

func TestDefaults(t *testing.T) {
	d := New(config.LDAP{Host: "ldap.example.edu", BaseDN: "dc=example,dc=edu"})

	assert.Equal(t, "uid", d.cfg.UsernameAttr)
	assert.Equal(t, "member", d.cfg.GroupMemberAttr)
	assert.Equal(t, "dc=example,dc=edu", d.cfg.GroupBaseDN)
	assert.Equal(t, defaultTimeout, d.cfg.Timeout)

	custom := New(config.LDAP{UsernameAttr: "sAMAccountName", Timeout: 3, GroupBaseDN: "ou=groups"})
	assert.Equal(t, "sAMAccountName", custom.cfg.UsernameAttr)
	assert.Equal(t, 3, custom.cfg.Timeout)
	assert.Equal(t, "ou=groups", custom.cfg.GroupBaseDN)
}

func TestFilters(t *testing.T) {
	d := New(config.LDAP{})

	assert.Equal(t, "(&(objectClass=person)(uid=j\\2adoe))", d.userFilter("j*doe"))
	assert.Equal(t, "(|(uid=*hist*)(mail=*hist*))", substringFilter(" hist ", "uid", "mail"))
}

func TestToRecord(t *testing.T) {
	d := New(config.LDAP{})

	testCases := []struct {
		name    string
		attrs   map[string][]string
		display string
	}{
		{
			name: "display name attribute",
			attrs: map[string][]string{
				"uid": {"JDoe"}, "mail": {"jdoe@example.edu"}, "givenName": {"Jane"}, "sn": {"Doe"},
				"displayName": {"Dr. Jane Doe"},
			},
			display: "Dr. Jane Doe",
		},
		{
			name:    "falls back to first and last",
			attrs:   map[string][]string{"uid": {"JDoe"}, "givenName": {"Jane"}, "sn": {"Doe"}},
			display: "Jane Doe",
		},
		{
			name:    "falls back to login",
			attrs:   map[string][]string{"uid": {"JDoe"}},
			display: "JDoe",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := d.toRecord(ldap.NewEntry("uid=jdoe,ou=people,dc=example,dc=edu", tc.attrs))

			assert.Equal(t, "JDoe", rec.Login)
			assert.Equal(t, "jdoe", rec.Nicename)
			assert.Equal(t, "JDoe", rec.Nickname)
			assert.Equal(t, tc.display, rec.DisplayName)
		})
	}
}

func TestIsUserEntry(t *testing.T) {
	d := New(config.LDAP{})

	assert.True(t, d.isUserEntry(ldap.NewEntry("uid=a", map[string][]string{"uid": {"a"}})))
	assert.False(t, d.isUserEntry(ldap.NewEntry("cn=g", map[string][]string{"cn": {"g"}, "member": {"uid=a"}})))
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{name: "no such object", err: ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone")), kind: apperr.KindNotFound},
		{name: "bad dn", err: ldap.NewError(ldap.LDAPResultInvalidDNSyntax, errors.New("bad")), kind: apperr.KindValidation},
		{name: "busy", err: ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")), kind: apperr.KindTransport},
		{name: "network", err: errors.New("connection reset"), kind: apperr.KindTransport},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, apperr.KindOf(classify("op", tc.err)))
		})
	}

	assert.NoError(t, classify("op", nil))
}

func TestDialFailureIsTransport(t *testing.T) {
	d := New(config.LDAP{Host: "ldap.invalid"})
	d.dial = func() (*ldap.Conn, error) { return nil, errors.New("dial tcp: no route to host") }

	ctx := context.Background()

	_, err := d.GetGroupMembers(ctx, "cn=g,ou=groups")
	require.ErrorIs(t, err, apperr.ErrTransport)

	_, err = d.GetGroupsForUser(ctx, "jdoe")
	require.ErrorIs(t, err, apperr.ErrTransport)

	_, err = d.GetUser(ctx, "jdoe")
	require.ErrorIs(t, err, apperr.ErrTransport)

	require.ErrorIs(t, d.TestConnection(ctx), apperr.ErrTransport)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	_, err = d.SearchUsers(canceled, "jdoe")
	require.ErrorIs(t, err, apperr.ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}
