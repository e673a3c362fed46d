package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/auth"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/authz"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/tags"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserHeader = "X-Test-User"

type testServer struct {
	server *Server
	store  *rights.SQLStore
	hook   *test.Hook
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	ctx := context.Background()
	require.NoError(t, rights.RunMigrations(ctx, db, storage.DialectSQLite, logger))
	require.NoError(t, tags.RunMigrations(ctx, db, storage.DialectSQLite, logger))
	return db
}

// withTestUser stands in for the token middleware.
func withTestUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get(testUserHeader); user != "" {
			r = r.WithContext(contextkeys.WithUserID(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// setupServer wires the server to sqlite. grants decides authorization and
// defaults to the server's own store.
func setupServer(t *testing.T, serverStore rights.Store, grants authz.GrantReader) *testServer {
	t.Helper()
	return setupServerWithPolicies(t, serverStore, grants, nil)
}

// setupServerWithPolicies is setupServer with named policies behind the
// policy provider.
func setupServerWithPolicies(t *testing.T, serverStore rights.Store, grants authz.GrantReader, provider *authz.PolicyProvider) *testServer {
	t.Helper()

	db := setupTestDB(t)
	store := rights.NewSQLStore(db, storage.DialectSQLite)
	if serverStore == nil {
		serverStore = store
	}
	if grants == nil {
		grants = store
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	if provider == nil {
		provider = authz.NewPolicyProvider(nil, logger)
	}
	authorizer := authz.NewAuthorizer(authz.NewHandler(grants, logger), provider, logger)

	server := NewServer(Dependencies{
		Store:      serverStore,
		Counter:    tags.NewSQLCounter(db, storage.DialectSQLite),
		Authorizer: authorizer,
		Audit:      auth.NewAuditLogger(logger),
		Logger:     logger,
	})
	server.Router().Use(withTestUser)

	_, err := store.SetRight(context.Background(), "admin", authz.DefaultRootID, rights.Root, rights.FullControl)
	require.NoError(t, err)

	return &testServer{server: server, store: store, hook: hook}
}

func (ts *testServer) do(t *testing.T, user, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) auditEntries() []*logrus.Entry {
	var entries []*logrus.Entry
	for _, e := range ts.hook.AllEntries() {
		if e.Data["audit"] == true {
			entries = append(entries, e)
		}
	}
	return entries
}

func TestServer_RootAdministersGrants(t *testing.T) {
	ts := setupServer(t, nil, nil)

	rec := ts.do(t, "admin", http.MethodPut, "/rights/list-1/users/alice/types/Todo", map[string]string{"rights": "Get|Put"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var right rights.UserRight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &right))
	assert.NotEmpty(t, right.ID)
	assert.Equal(t, rights.Get|rights.Put, right.Rights)

	rec = ts.do(t, "admin", http.MethodGet, "/rights/list-1/users/alice/types/Todo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rights":"Get|Put"`)

	rec = ts.do(t, "admin", http.MethodGet, "/rights/list-1/users/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var effective EffectiveRightsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &effective))
	assert.Equal(t, map[rights.RightType]rights.Permission{rights.Todo: rights.Get | rights.Put}, effective.Rights)

	rec = ts.do(t, "admin", http.MethodDelete, "/rights/list-1/users/alice/types/Todo", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, "admin", http.MethodGet, "/rights/list-1/users/alice/types/Todo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	entries := ts.auditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, auth.ActionRightSet, entries[0].Data["action"])
	assert.Equal(t, "admin", entries[0].Data["user_id"])
	assert.Equal(t, "alice", entries[0].Data["target_user"])
	assert.Equal(t, auth.ActionRightRemove, entries[1].Data["action"])
}

func TestServer_DelegatedAdministrationIsPerType(t *testing.T) {
	ts := setupServer(t, nil, nil)
	ctx := context.Background()

	_, err := ts.store.SetRight(ctx, "owner", "list-1", rights.Todo, rights.FullCreatorOwner)
	require.NoError(t, err)

	rec := ts.do(t, "owner", http.MethodPut, "/rights/list-1/users/bob/types/Todo", map[string]string{"rights": "Get"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "owner", http.MethodPut, "/rights/list-1/users/bob/types/Tenant", map[string]string{"rights": "Get"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, "owner", http.MethodPut, "/rights/list-2/users/bob/types/Todo", map[string]string{"rights": "Get"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, "", http.MethodPut, "/rights/list-1/users/bob/types/Todo", map[string]string{"rights": "Get"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_UsersReadTheirOwnGrants(t *testing.T) {
	ts := setupServer(t, nil, nil)
	_, err := ts.store.SetRight(context.Background(), "alice", "list-1", rights.Todo, rights.View)
	require.NoError(t, err)

	rec := ts.do(t, "alice", http.MethodGet, "/rights/list-1/users/alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "alice", http.MethodGet, "/rights/list-1/users/alice/inherit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, "alice", http.MethodGet, "/rights/list-1/users/bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_BadInput(t *testing.T) {
	ts := setupServer(t, nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"unknown type", http.MethodPut, "/rights/list-1/users/bob/types/Galaxy", map[string]string{"rights": "Get"}},
		{"unknown permission", http.MethodPut, "/rights/list-1/users/bob/types/Todo", map[string]string{"rights": "Fly"}},
		{"unknown inherit type", http.MethodPut, "/rights/list-1/users/bob/inherit/Todo/Galaxy", map[string]string{"rights": "Get"}},
		{"missing creator", http.MethodPost, "/resources", map[string]string{"resource_id": "todo-1", "type": "Todo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "admin", tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_InheritRules(t *testing.T) {
	ts := setupServer(t, nil, nil)

	rec := ts.do(t, "admin", http.MethodPut, "/rights/user-1/users/alice/inherit/UserTodoCollection/Todo",
		map[string]string{"rights": "FullControl"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, "admin", http.MethodGet, "/rights/user-1/users/alice/inherit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []rights.UserInheritRight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, rights.UserTodoCollection, rules[0].Type)
	assert.Equal(t, rights.Todo, rules[0].InheritType)

	rec = ts.do(t, "admin", http.MethodDelete, "/rights/user-1/users/alice/inherit/UserTodoCollection/Todo", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_CreateAndRemoveResource(t *testing.T) {
	ts := setupServer(t, nil, nil)
	ctx := context.Background()

	_, err := ts.store.SetInherit(ctx, rights.Todo, "alice", "user-1", rights.UserTodoCollection, rights.AllAccess)
	require.NoError(t, err)

	rec := ts.do(t, "admin", http.MethodPost, "/resources", map[string]interface{}{
		"creator_id":        "alice",
		"resource_id":       "todo-1",
		"type":              "Todo",
		"collection_rights": map[string]string{"TodoTagCollection": "AllAccess"},
		"inherit": map[string]interface{}{
			"type":            "UserTodoCollection",
			"resource_id":     "user-1",
			"inherited_types": []string{"Todo"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created CreateResourceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, rights.FullCreatorOwner, created.Granted[rights.Todo])
	assert.Equal(t, rights.AllAccess, created.Granted[rights.TodoTagCollection])

	right, err := ts.store.Get(ctx, "alice", "todo-1", rights.TodoTagCollection)
	require.NoError(t, err)
	require.NotNil(t, right)

	rec = ts.do(t, "alice", http.MethodPost, "/resources", map[string]interface{}{
		"creator_id": "alice", "resource_id": "todo-2", "type": "Todo",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, "admin", http.MethodPost, "/resources", map[string]interface{}{
		"creator_id":        "alice",
		"resource_id":       "todo-3",
		"type":              "Todo",
		"collection_rights": map[string]string{"Todo": "Get"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, "admin", http.MethodDelete, "/resources/todo-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	all, err := ts.store.GetAll(ctx, "alice", "todo-1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestServer_ReconcileTags(t *testing.T) {
	ts := setupServer(t, nil, nil)
	_, err := ts.store.SetRight(context.Background(), "alice", "todo-1", rights.Todo, rights.Get|rights.Put)
	require.NoError(t, err)

	rec := ts.do(t, "alice", http.MethodPut, "/todos/todo-1/tags",
		TagChangeRequest{Old: nil, New: []string{"work", "home"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, "alice", http.MethodPut, "/todos/todo-1/tags",
		TagChangeRequest{Old: []string{"work", "home"}, New: []string{"work"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"todo_id":"todo-1","added":[],"removed":["home"]}`, rec.Body.String())

	rec = ts.do(t, "", http.MethodGet, "/tags/work/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tag_id":"work","count":1}`, rec.Body.String())

	rec = ts.do(t, "bob", http.MethodPut, "/todos/todo-1/tags", TagChangeRequest{New: []string{"x"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, "alice", http.MethodPut, "/todos/todo-1/tags", TagChangeRequest{New: []string{" "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StoreOutageIsServiceUnavailable(t *testing.T) {
	broken := setupTestDB(t)
	brokenStore := rights.NewSQLStore(broken, storage.DialectSQLite)
	require.NoError(t, broken.Close())

	authDB := setupTestDB(t)
	grants := rights.NewSQLStore(authDB, storage.DialectSQLite)
	_, err := grants.SetRight(context.Background(), "admin", authz.DefaultRootID, rights.Root, rights.FullControl)
	require.NoError(t, err)

	ts := setupServer(t, brokenStore, grants)

	rec := ts.do(t, "admin", http.MethodPut, "/rights/list-1/users/alice/types/Todo", map[string]string{"rights": "Get"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	entries := ts.auditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, auth.StatusFailure, entries[0].Data["status"])
	assert.Equal(t, logrus.WarnLevel, entries[0].Level)
}

type routeLister struct{}

func (routeLister) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestServer_RegisterRoutes(t *testing.T) {
	ts := setupServer(t, nil, nil)
	ts.server.RegisterRoutes(routeLister{})

	rec := ts.do(t, "", http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestServer_NamedPoliciesWidenAccess(t *testing.T) {
	logger, _ := test.NewNullLogger()
	policies := authz.NewSwappablePolicies(authz.StaticPolicies{})
	provider := authz.NewPolicyProvider(policies, logger)
	ts := setupServerWithPolicies(t, nil, nil, provider)

	_, err := ts.store.SetRight(context.Background(), "carol", "todo-1", rights.TodoTagCollection, rights.Put)
	require.NoError(t, err)

	reconcile := func() int {
		return ts.do(t, "carol", http.MethodPut, "/todos/todo-1/tags", TagChangeRequest{New: []string{"work"}}).Code
	}
	reload := func(named map[string][]string) {
		loaded, err := authz.NewStaticPolicies(named)
		require.NoError(t, err)
		policies.Store(loaded)
		provider.Reset()
	}

	assert.Equal(t, http.StatusForbidden, reconcile())

	reload(map[string][]string{PolicyTagEditors: {"TodoTagCollection:Put:todoId"}})
	assert.Equal(t, http.StatusOK, reconcile())

	reload(map[string][]string{PolicyTagEditors: {"TodoTagCollection:Post:todoId"}})
	assert.Equal(t, http.StatusForbidden, reconcile())

	// a named policy on the root widens resource creation
	rec := ts.do(t, "carol", http.MethodPost, "/resources", map[string]interface{}{
		"creator_id": "carol", "resource_id": "todo-5", "type": "Todo",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err = ts.store.SetRight(context.Background(), "carol", authz.DefaultRootID, rights.RootUserCollection, rights.Post)
	require.NoError(t, err)
	reload(map[string][]string{PolicyResourceCreators: {"RootUserCollection:Post:root"}})
	rec = ts.do(t, "carol", http.MethodPost, "/resources", map[string]interface{}{
		"creator_id": "carol", "resource_id": "todo-5", "type": "Todo",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServer_CreateResourceRequiresType(t *testing.T) {
	ts := setupServer(t, nil, nil)

	rec := ts.do(t, "admin", http.MethodPost, "/resources", map[string]interface{}{
		"creator_id": "bob", "resource_id": "todo-9",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "type is required")

	all, err := ts.store.GetAll(context.Background(), "bob", "todo-9")
	require.NoError(t, err)
	assert.Empty(t, all)

	// an explicit Root type is still honoured
	rec = ts.do(t, "admin", http.MethodPost, "/resources", map[string]interface{}{
		"creator_id": "bob", "resource_id": "tenant-root", "type": "Root",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
