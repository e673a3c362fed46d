package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withUser simulates the authentication middleware.
func withUser(userID string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = r.WithContext(contextkeys.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setupRouter(t *testing.T, store GrantReader, userID string) *mux.Router {
	t.Helper()

	logger, _ := test.NewNullLogger()
	fallback := StaticPolicies{
		"administrators": {{Type: rights.Root, Permission: rights.FullControl, ResourceKey: RootResourceKey}},
	}
	authorizer := NewAuthorizer(NewHandler(store, logger), NewPolicyProvider(fallback, logger), logger)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router := mux.NewRouter()
	router.Use(withUser(userID))
	router.Handle("/todos/{id}", authorizer.RequirePolicy("Todo:Put:id", "administrators")(ok)).Methods(http.MethodPut)
	router.Handle("/todos/{id}", authorizer.Require(Requirement{rights.Todo, rights.Get, "id"})(ok)).Methods(http.MethodGet)
	router.Handle("/broken/{id}", authorizer.RequirePolicy("Todo:Put")(ok))
	router.Handle("/optional/{id}", authorizer.RequirePolicy("Todo:Get:id", "undefined-editors")(ok))
	return router
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthorizer_StatusCodes(t *testing.T) {
	store := newFakeGrants()
	store.grant("editor", "todo-1", rights.Todo, rights.AllAccess)
	store.grant("reader", "todo-1", rights.Todo, rights.Get)
	store.grant("admin", DefaultRootID, rights.Root, rights.FullControl)

	tests := []struct {
		name   string
		user   string
		method string
		path   string
		want   int
	}{
		{"editor may put", "editor", http.MethodPut, "/todos/todo-1", http.StatusOK},
		{"reader may get", "reader", http.MethodGet, "/todos/todo-1", http.StatusOK},
		{"reader may not put", "reader", http.MethodPut, "/todos/todo-1", http.StatusForbidden},
		{"admin via fallback policy", "admin", http.MethodPut, "/todos/todo-9", http.StatusOK},
		{"other todo", "editor", http.MethodPut, "/todos/todo-2", http.StatusForbidden},
		{"anonymous", "", http.MethodGet, "/todos/todo-1", http.StatusUnauthorized},
		{"malformed policy", "admin", http.MethodGet, "/broken/todo-1", http.StatusInternalServerError},
		{"undefined named policy adds nothing", "reader", http.MethodGet, "/optional/todo-1", http.StatusOK},
		{"undefined named policy grants nothing", "editor", http.MethodGet, "/optional/todo-2", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(setupRouter(t, store, tt.user), tt.method, tt.path)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthorizer_StoreFaultIsNotForbidden(t *testing.T) {
	store := newFakeGrants()
	store.errs[rights.Todo] = fmt.Errorf("get right: %w", rights.ErrStoreUnavailable)

	rec := serve(setupRouter(t, store, "editor"), http.MethodGet, "/todos/todo-1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authorization temporarily unavailable", body["error"])
}

func TestAuthorizer_UnexpectedFault(t *testing.T) {
	store := newFakeGrants()
	store.errs[rights.Todo] = fmt.Errorf("get right: corrupt rights %q", "lots")

	rec := serve(setupRouter(t, store, "editor"), http.MethodGet, "/todos/todo-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestContextFromRequest(t *testing.T) {
	var got RequestContext
	router := mux.NewRouter()
	router.HandleFunc("/tenants/{tenantId}/todos/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = RequestContextFromRequest(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/tenants/t1/todos/td1", nil)
	req = req.WithContext(contextkeys.WithUserID(context.Background(), "user-1"))
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, map[string]string{"tenantId": "t1", "id": "td1"}, got.RouteValues)
}
