// Package ldapdir is the LDAP / Active Directory directory adapter.
//
// Every call dials, binds with the service account and closes the connection
// again. Group ids are group DNs.
package ldapdir

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/config"
	"github.com/middlebury/dynamic-add-users/internal/directory"
)

const defaultTimeout = 10

// Directory queries an LDAP server.
type Directory struct {
	cfg  config.LDAP
	dial func() (*ldap.Conn, error)
}

// applyDefaults fills the attribute names and filters left empty.
func applyDefaults(c config.LDAP) config.LDAP {
	defaults := []struct {
		field *string
		value string
	}{
		{&c.UsernameAttr, "uid"},
		{&c.EmailAttr, "mail"},
		{&c.FirstNameAttr, "givenName"},
		{&c.LastNameAttr, "sn"},
		{&c.DisplayNameAttr, "displayName"},
		{&c.GroupNameAttr, "cn"},
		{&c.GroupMemberAttr, "member"},
		{&c.UserFilter, "(uid={username})"},
		{&c.UserObjectFilter, "(objectClass=person)"},
		{&c.GroupFilter, "(member={userdn})"},
		{&c.GroupObjectFilter, "(|(objectClass=groupOfNames)(objectClass=group))"},
	}

	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	if c.GroupBaseDN == "" {
		c.GroupBaseDN = c.BaseDN
	}

	return c
}

// New returns an LDAP directory for cfg.
func New(cfg config.LDAP) *Directory {
	d := &Directory{cfg: applyDefaults(cfg)}
	d.dial = d.connect

	return d
}

// Factory builds the adapter from the directory config.
func Factory(cfg config.Directory) (directory.Directory, error) {
	return New(cfg.LDAP), nil
}

func (d *Directory) connect() (*ldap.Conn, error) {
	hostPort := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	ldapURL := "ldap://" + hostPort
	if d.cfg.UseSSL {
		ldapURL = "ldaps://" + hostPort
	}

	var tlsConfig *tls.Config
	if d.cfg.UseSSL || d.cfg.UseTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: d.cfg.SkipVerify, //nolint:gosec // configurable for test servers
			ServerName:         d.cfg.Host,
		}
	}

	timeout := time.Duration(d.cfg.Timeout) * time.Second

	conn, err := ldap.DialURL(ldapURL,
		ldap.DialWithTLSConfig(tlsConfig),
		ldap.DialWithDialer(&net.Dialer{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if !d.cfg.UseSSL && d.cfg.UseTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			closeConn(conn)

			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	conn.SetTimeout(timeout)

	if d.cfg.BindDN != "" {
		if errBind := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); errBind != nil {
			closeConn(conn)

			return nil, fmt.Errorf("failed to bind with service account: %w", errBind)
		}
	}

	return conn, nil
}

func closeConn(conn *ldap.Conn) {
	if err := conn.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close LDAP connection")
	}
}

// session opens a bound connection and runs fn on it.
func (d *Directory) session(ctx context.Context, op string, fn func(conn *ldap.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindTransport, op, err)
	}

	conn, err := d.dial()
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, op, err)
	}

	defer closeConn(conn)

	return fn(conn)
}

// classify turns an LDAP error into an apperr kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
		return apperr.Wrap(apperr.KindNotFound, op, err)
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidDNSyntax) {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}

	return apperr.Wrap(apperr.KindTransport, op, err)
}

func (d *Directory) userAttributes() []string {
	return []string{
		d.cfg.UsernameAttr,
		d.cfg.EmailAttr,
		d.cfg.FirstNameAttr,
		d.cfg.LastNameAttr,
		d.cfg.DisplayNameAttr,
		"objectClass",
	}
}

// toRecord maps an entry to a user record. Display name falls back to
// "first last", then to the login.
func (d *Directory) toRecord(e *ldap.Entry) directory.UserRecord {
	login := e.GetAttributeValue(d.cfg.UsernameAttr)
	first := e.GetAttributeValue(d.cfg.FirstNameAttr)
	last := e.GetAttributeValue(d.cfg.LastNameAttr)

	display := e.GetAttributeValue(d.cfg.DisplayNameAttr)
	if display == "" {
		display = strings.TrimSpace(first + " " + last)
	}

	if display == "" {
		display = login
	}

	return directory.UserRecord{
		Login:       login,
		Email:       e.GetAttributeValue(d.cfg.EmailAttr),
		Nicename:    strings.ToLower(login),
		Nickname:    login,
		FirstName:   first,
		LastName:    last,
		DisplayName: display,
	}
}

func (d *Directory) search(conn *ldap.Conn, base string, scope int, limit int, filter string, attrs []string) ([]*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		base,
		scope,
		ldap.NeverDerefAliases,
		limit,
		d.cfg.Timeout,
		false,
		filter,
		attrs,
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return res.Entries, nil
}

func (d *Directory) userFilter(login string) string {
	byLogin := strings.ReplaceAll(d.cfg.UserFilter, "{username}", ldap.EscapeFilter(login))

	return "(&" + d.cfg.UserObjectFilter + byLogin + ")"
}

func (d *Directory) searchUserEntry(conn *ldap.Conn, op, login string) (*ldap.Entry, error) {
	entries, err := d.search(conn, d.cfg.BaseDN, ldap.ScopeWholeSubtree, 0, d.userFilter(login), d.userAttributes())
	if err != nil {
		return nil, classify(op, err)
	}

	switch len(entries) {
	case 0:
		return nil, apperr.New(apperr.KindNotFound, op, "no user "+login)
	case 1:
		return entries[0], nil
	default:
		return nil, apperr.New(apperr.KindValidation, op, "more than one user matches "+login)
	}
}

// substringFilter builds (|(a1=*q*)(a2=*q*)...) with q escaped.
func substringFilter(query string, attrs ...string) string {
	q := ldap.EscapeFilter(strings.TrimSpace(query))

	var b strings.Builder

	b.WriteString("(|")

	for _, a := range attrs {
		b.WriteString("(" + a + "=*" + q + "*)")
	}

	b.WriteString(")")

	return b.String()
}

// SearchUsers matches login, email and display name.
func (d *Directory) SearchUsers(ctx context.Context, query string) ([]directory.UserRecord, error) {
	const op = "ldapdir.SearchUsers"

	var out []directory.UserRecord

	err := d.session(ctx, op, func(conn *ldap.Conn) error {
		filter := "(&" + d.cfg.UserObjectFilter +
			substringFilter(query, d.cfg.UsernameAttr, d.cfg.EmailAttr, d.cfg.DisplayNameAttr) + ")"

		entries, err := d.search(conn, d.cfg.BaseDN, ldap.ScopeWholeSubtree, d.cfg.SizeLimit, filter, d.userAttributes())
		if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
			return classify(op, err)
		}

		out = make([]directory.UserRecord, 0, len(entries))
		for _, e := range entries {
			out = append(out, d.toRecord(e))
		}

		return nil
	})

	return out, err
}

// SearchGroups matches the group name attribute. The label is that attribute.
func (d *Directory) SearchGroups(ctx context.Context, query string) ([]directory.GroupRecord, error) {
	const op = "ldapdir.SearchGroups"

	var out []directory.GroupRecord

	err := d.session(ctx, op, func(conn *ldap.Conn) error {
		filter := "(&" + d.cfg.GroupObjectFilter + substringFilter(query, d.cfg.GroupNameAttr) + ")"

		entries, err := d.search(conn, d.cfg.GroupBaseDN, ldap.ScopeWholeSubtree, d.cfg.SizeLimit, filter,
			[]string{d.cfg.GroupNameAttr})
		if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
			return classify(op, err)
		}

		out = make([]directory.GroupRecord, 0, len(entries))
		for _, e := range entries {
			out = append(out, directory.GroupRecord{ID: e.DN, Label: e.GetAttributeValue(d.cfg.GroupNameAttr)})
		}

		return nil
	})

	return out, err
}

// GetUser looks a user up by login.
func (d *Directory) GetUser(ctx context.Context, login string) (directory.UserRecord, error) {
	const op = "ldapdir.GetUser"

	var rec directory.UserRecord

	err := d.session(ctx, op, func(conn *ldap.Conn) error {
		e, err := d.searchUserEntry(conn, op, login)
		if err != nil {
			return err
		}

		rec = d.toRecord(e)

		return nil
	})

	return rec, err
}

// isUserEntry reports whether e looks like a user rather than a group.
func (d *Directory) isUserEntry(e *ldap.Entry) bool {
	return e.GetAttributeValue(d.cfg.UsernameAttr) != "" && len(e.GetAttributeValues(d.cfg.GroupMemberAttr)) == 0
}

// GetGroupMembers reads the member attribute of the group DN and resolves each
// member DN. Members that are not users, such as nested groups, are skipped.
func (d *Directory) GetGroupMembers(ctx context.Context, groupID string) ([]directory.UserRecord, error) {
	const op = "ldapdir.GetGroupMembers"

	var out []directory.UserRecord

	err := d.session(ctx, op, func(conn *ldap.Conn) error {
		attrs := append(d.userAttributes(), d.cfg.GroupMemberAttr)

		groups, err := d.search(conn, groupID, ldap.ScopeBaseObject, 0, "(objectClass=*)", attrs)
		if err != nil {
			return classify(op, err)
		}

		if len(groups) == 0 {
			return apperr.New(apperr.KindNotFound, op, groupID)
		}

		if d.isUserEntry(groups[0]) {
			return apperr.New(apperr.KindWrongEntityKind, op, fmt.Sprintf("%q is a user, not a group", groupID))
		}

		memberDNs := groups[0].GetAttributeValues(d.cfg.GroupMemberAttr)
		out = make([]directory.UserRecord, 0, len(memberDNs))

		for _, dn := range memberDNs {
			entries, errMember := d.search(conn, dn, ldap.ScopeBaseObject, 0, d.cfg.UserObjectFilter, d.userAttributes())
			if errMember != nil {
				if ldap.IsErrorWithCode(errMember, ldap.LDAPResultNoSuchObject) {
					log.Debug().Str("group", groupID).Str("member", dn).Msg("dangling group member skipped")
					continue
				}

				return classify(op, errMember)
			}

			if len(entries) == 0 {
				continue
			}

			out = append(out, d.toRecord(entries[0]))
		}

		return nil
	})

	return out, err
}

// GetGroupsForUser returns the DNs of the groups listing the user, sorted.
func (d *Directory) GetGroupsForUser(ctx context.Context, login string) ([]string, error) {
	const op = "ldapdir.GetGroupsForUser"

	var out []string

	err := d.session(ctx, op, func(conn *ldap.Conn) error {
		user, err := d.searchUserEntry(conn, op, login)
		if err != nil {
			return err
		}

		filter := "(&" + d.cfg.GroupObjectFilter +
			strings.ReplaceAll(d.cfg.GroupFilter, "{userdn}", ldap.EscapeFilter(user.DN)) + ")"

		entries, err := d.search(conn, d.cfg.GroupBaseDN, ldap.ScopeWholeSubtree, 0, filter, []string{"dn"})
		if err != nil {
			return classify(op, err)
		}

		out = make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.DN)
		}

		sort.Strings(out)

		return nil
	})

	return out, err
}

// TestConnection dials and binds with the service account.
func (d *Directory) TestConnection(ctx context.Context) error {
	return d.session(ctx, "ldapdir.TestConnection", func(*ldap.Conn) error { return nil })
}
