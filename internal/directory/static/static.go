// Package static is an in-memory directory loaded from a YAML file.
// It backs development setups and tests.
package static

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/config"
	"github.com/middlebury/dynamic-add-users/internal/directory"
)

// Group is a group of the YAML file. Members are logins.
type Group struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label"`
	Members []string `yaml:"members"`
}

// Data is the YAML document.
type Data struct {
	Users  []directory.UserRecord `yaml:"users"`
	Groups []Group                `yaml:"groups"`
}

// Directory serves Data. It is safe for concurrent use.
type Directory struct {
	mu     sync.RWMutex
	users  map[string]directory.UserRecord
	groups map[string]Group
}

// New builds a directory from d.
func New(d Data) *Directory {
	s := &Directory{
		users:  make(map[string]directory.UserRecord, len(d.Users)),
		groups: make(map[string]Group, len(d.Groups)),
	}

	for _, u := range d.Users {
		s.users[u.Login] = u
	}

	for _, g := range d.Groups {
		s.groups[g.ID] = g
	}

	return s
}

// Load reads a YAML file.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read static directory: %w", err)
	}

	var d Data
	if err = yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode static directory %s: %w", path, err)
	}

	return New(d), nil
}

// Factory opens the file named in cfg.Static.File.
func Factory(cfg config.Directory) (directory.Directory, error) {
	return Load(cfg.Static.File)
}

// PutUser adds or replaces a user.
func (s *Directory) PutUser(u directory.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.Login] = u
}

// SetMembers replaces the members of a group, creating it if needed.
func (s *Directory) SetMembers(groupID string, logins ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.groups[groupID]
	g.ID = groupID
	g.Members = append([]string(nil), logins...)
	s.groups[groupID] = g
}

// RemoveGroup deletes a group.
func (s *Directory) RemoveGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.groups, groupID)
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

// SearchUsers matches login, email and display name case insensitively.
func (s *Directory) SearchUsers(_ context.Context, query string) ([]directory.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]directory.UserRecord, 0)

	for _, u := range s.users {
		if contains(u.Login, q) || contains(u.Email, q) || contains(u.DisplayName, q) {
			out = append(out, u)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })

	return out, nil
}

// SearchGroups matches id and label case insensitively.
func (s *Directory) SearchGroups(_ context.Context, query string) ([]directory.GroupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]directory.GroupRecord, 0)

	for _, g := range s.groups {
		if contains(g.ID, q) || contains(g.Label, q) {
			out = append(out, directory.GroupRecord{ID: g.ID, Label: g.Label})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// GetUser returns the user with login.
func (s *Directory) GetUser(_ context.Context, login string) (directory.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[login]
	if !ok {
		return directory.UserRecord{}, apperr.New(apperr.KindNotFound, "static.GetUser", login)
	}

	return u, nil
}

// GetGroupMembers returns the member records in file order.
// A member login without a user entry yields a record holding only the login.
func (s *Directory) GetGroupMembers(_ context.Context, groupID string) ([]directory.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		if _, isUser := s.users[groupID]; isUser {
			return nil, apperr.New(apperr.KindWrongEntityKind, "static.GetGroupMembers",
				fmt.Sprintf("%q is a user, not a group", groupID))
		}

		return nil, apperr.New(apperr.KindNotFound, "static.GetGroupMembers", groupID)
	}

	out := make([]directory.UserRecord, 0, len(g.Members))

	for _, login := range g.Members {
		u, known := s.users[login]
		if !known {
			u = directory.UserRecord{Login: login}
		}

		out = append(out, u)
	}

	return out, nil
}

// GetGroupsForUser returns the ids of the groups listing login, sorted.
func (s *Directory) GetGroupsForUser(_ context.Context, login string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[login]; !ok {
		return nil, apperr.New(apperr.KindNotFound, "static.GetGroupsForUser", login)
	}

	out := make([]string, 0)

	for _, g := range s.groups {
		for _, m := range g.Members {
			if m == login {
				out = append(out, g.ID)
				break
			}
		}
	}

	sort.Strings(out)

	return out, nil
}
