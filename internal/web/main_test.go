package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/middlebury/dynamic-add-users/internal/config"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/bulkrun"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/siterole"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/syncstate"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/directory"
	"github.com/middlebury/dynamic-add-users/internal/directory/static"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
	"github.com/middlebury/dynamic-add-users/internal/login"
	"github.com/middlebury/dynamic-add-users/internal/provision"
	"github.com/middlebury/dynamic-add-users/internal/role"
	"github.com/middlebury/dynamic-add-users/internal/web/handler"
)

const testToken = "s3cret"

type testEnv struct {
	svc   *Service
	users *provision.Service
	roles *siterole.Store
	store *syncstate.Store
}

func rec(login string) directory.UserRecord {
	return directory.UserRecord{
		Login: login, Email: login + "@example.edu", Nicename: login, Nickname: login, DisplayName: "User " + login,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))

	dir := static.New(static.Data{
		Users: []directory.UserRecord{rec("alice"), rec("bob"), rec("admin")},
		Groups: []static.Group{
			{ID: "hist101", Label: "History 101", Members: []string{"alice", "bob", "admin"}},
		},
	})

	users, err := provision.New(db, dir)
	require.NoError(t, err)

	roles, err := siterole.New(db, role.Default())
	require.NoError(t, err)

	store, err := syncstate.New(db)
	require.NoError(t, err)

	engine, err := groupsync.New(dir, users, roles, store, groupsync.Options{})
	require.NoError(t, err)

	hook, err := login.NewHook(login.LoginMapper{}, dir, users, engine)
	require.NoError(t, err)

	runs, err := bulkrun.New(db)
	require.NoError(t, err)

	cfg := &config.Config{Title: "test", DevMode: true}
	cfg.Webserver.APIToken = testToken

	svc := New(cfg, Deps{Engine: engine, Directory: dir, LocalUsers: users, Login: hook, Runs: runs})

	return &testEnv{svc: svc, users: users, roles: roles, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.svc.App.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func TestCheckAliveAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, CheckAlivePath, nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", string(body))

	code, _ = env.do(t, http.MethodGet, MetricsPath, nil, nil)
	assert.Equal(t, http.StatusOK, code)

	env.svc.alive.Store(false)

	code, _ = env.do(t, http.MethodGet, CheckAlivePath, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sites/1/groups", nil)

	resp, err := env.svc.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGroupLifecycle(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/sites/1/groups",
		map[string]any{"group_id": "hist101", "label": "History 101", "role": "author", "sync_now": true}, nil)
	require.Equal(t, http.StatusCreated, code, string(body))

	var keep struct {
		Changed  bool     `json:"changed"`
		Messages []string `json:"messages"`
	}

	require.NoError(t, json.Unmarshal(body, &keep))
	assert.True(t, keep.Changed)
	assert.Contains(t, keep.Messages, "Added User alice as an author.")
	assert.Len(t, keep.Messages, 3)

	code, body = env.do(t, http.MethodGet, "/api/sites/1/groups", nil, nil)
	require.Equal(t, http.StatusOK, code)

	var regs []models.Registration

	require.NoError(t, json.Unmarshal(body, &regs))
	require.Len(t, regs, 1)
	assert.Equal(t, "History 101", regs[0].GroupLabel)
	assert.NotNil(t, regs[0].LastSync)

	// role comes from the registration
	code, body = env.do(t, http.MethodPost, "/api/sites/1/groups/sync", map[string]any{"group_id": "hist101"}, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var changes handler.ChangesResponse

	require.NoError(t, json.Unmarshal(body, &changes))
	assert.Empty(t, changes.Changes)

	// removing members needs the acting administrator
	code, _ = env.do(t, http.MethodPost, "/api/sites/1/groups/stop",
		map[string]any{"group_id": "hist101", "remove_members": true}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	admin, err := env.users.FindByLogin(t.Context(), "admin")
	require.NoError(t, err)

	code, body = env.do(t, http.MethodPost, "/api/sites/1/groups/stop",
		map[string]any{"group_id": "hist101", "remove_members": true},
		map[string]string{handler.ActingUserHeader: strconv.FormatUint(admin.ID, 10)})
	require.Equal(t, http.StatusOK, code, string(body))

	require.NoError(t, json.Unmarshal(body, &changes))
	assert.Len(t, changes.Changes, 2)

	r, err := env.roles.CurrentRole(t.Context(), admin.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, role.Author, r)

	code, body = env.do(t, http.MethodGet, "/api/sites/1/groups", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(body))
}

func TestGroupErrors(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name     string
		path     string
		body     any
		expected int
		kind     string
	}{
		{name: "bad site", path: "/api/sites/x/groups", body: map[string]any{"group_id": "g", "role": "author"}, expected: http.StatusBadRequest, kind: "validation"},
		{name: "missing role", path: "/api/sites/1/groups", body: map[string]any{"group_id": "g"}, expected: http.StatusBadRequest, kind: "validation"},
		{name: "unknown role", path: "/api/sites/1/groups", body: map[string]any{"group_id": "g", "role": "overlord"}, expected: http.StatusBadRequest, kind: "validation"},
		{name: "unregistered group", path: "/api/sites/1/groups/sync", body: map[string]any{"group_id": "nope"}, expected: http.StatusNotFound, kind: "not_found"},
		{name: "missing group", path: "/api/sites/1/groups/sync", body: map[string]any{"group_id": "nope", "role": "author"}, expected: http.StatusNotFound, kind: "not_found"},
		{name: "user instead of group", path: "/api/sites/1/groups/sync", body: map[string]any{"group_id": "alice", "role": "author"}, expected: http.StatusBadRequest, kind: "wrong_entity_kind"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, tc.path, tc.body, nil)
			require.Equal(t, tc.expected, code, string(body))

			var res ErrorResponse

			require.NoError(t, json.Unmarshal(body, &res))
			assert.Equal(t, tc.kind, res.Kind)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestSyncConflict(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/sites/1/groups", map[string]any{"group_id": "hist101", "role": "author"}, nil)
	require.Equal(t, http.StatusCreated, code)

	require.NoError(t, env.store.AcquireLease(t.Context(), 1, "hist101", "elsewhere", time.Minute))

	code, _ = env.do(t, http.MethodPost, "/api/sites/1/groups/sync", map[string]any{"group_id": "hist101"}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestSyncAll(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/sites/1/groups", map[string]any{"group_id": "hist101", "role": "editor"}, nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = env.do(t, http.MethodPost, "/api/sites/2/groups", map[string]any{"group_id": "gone", "role": "editor"}, nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = env.do(t, http.MethodGet, "/api/sync", nil, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, body := env.do(t, http.MethodPost, "/api/sync", nil, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var results []groupsync.GroupResult

	require.NoError(t, json.Unmarshal(body, &results))
	require.Len(t, results, 2)
	assert.Len(t, results[0].Changes, 3)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)

	code, body = env.do(t, http.MethodGet, "/api/sync", nil, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var last bulkrun.Summary

	require.NoError(t, json.Unmarshal(body, &last))
	assert.Equal(t, "api", last.Trigger)
	assert.Equal(t, 2, last.Groups)
	assert.Equal(t, 1, last.FailedGroups)
	assert.Equal(t, 3, last.Added)
}

func TestDirectorySearch(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.users.GetOrCreate(t.Context(), rec("alumnus"))
	require.NoError(t, err)

	code, body := env.do(t, http.MethodGet, "/api/directory/users?search=al", nil, nil)
	require.Equal(t, http.StatusOK, code)

	var users []directory.UserRecord

	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Login)
	assert.Equal(t, "alumnus", users[1].Login)

	code, body = env.do(t, http.MethodGet, "/api/directory/groups?search=history", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"id":"hist101","label":"History 101"}]`, string(body))

	code, _ = env.do(t, http.MethodGet, "/api/directory/groups", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/sites/3/groups", map[string]any{"group_id": "hist101", "role": "contributor"}, nil)
	require.Equal(t, http.StatusCreated, code)

	code, body := env.do(t, http.MethodPost, "/api/login", map[string]any{"login": "bob"}, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var res login.Result

	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "bob", res.ExternalID)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, groupsync.Added, res.Changes[0].Kind)

	code, body = env.do(t, http.MethodPost, "/api/login", map[string]any{"login": "stranger"}, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.NotEmpty(t, res.Notice)

	code, _ = env.do(t, http.MethodPost, "/api/login", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
