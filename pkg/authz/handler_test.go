package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeGrants is an in-memory GrantReader keyed by user, resource and type.
type fakeGrants struct {
	mu     sync.Mutex
	grants map[string]rights.Permission
	errs   map[rights.RightType]error
	delay  time.Duration
	calls  int
}

func newFakeGrants() *fakeGrants {
	return &fakeGrants{
		grants: make(map[string]rights.Permission),
		errs:   make(map[rights.RightType]error),
	}
}

func grantKey(userID, resourceID string, t rights.RightType) string {
	return fmt.Sprintf("%s/%s/%d", userID, resourceID, int(t))
}

func (f *fakeGrants) grant(userID, resourceID string, t rights.RightType, p rights.Permission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[grantKey(userID, resourceID, t)] = p
}

func (f *fakeGrants) Get(ctx context.Context, userID, resourceID string, t rights.RightType) (*rights.UserRight, error) {
	f.mu.Lock()
	f.calls++
	err := f.errs[t]
	p, ok := f.grants[grantKey(userID, resourceID, t)]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &rights.UserRight{UserID: userID, ResourceID: resourceID, Type: t, Rights: p}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveDecision(rightType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, rightType+":"+outcome)
}

func newTestHandler(store GrantReader, opts ...HandlerOption) *Handler {
	logger, _ := test.NewNullLogger()
	return NewHandler(store, logger, opts...)
}

func TestHandler_Evaluate(t *testing.T) {
	store := newFakeGrants()
	store.grant("user-1", "todo-1", rights.Todo, rights.Get|rights.Put)
	store.grant("admin", DefaultRootID, rights.Root, rights.FullControl)

	h := newTestHandler(store)
	ctx := context.Background()
	route := map[string]string{"id": "todo-1"}

	tests := []struct {
		name   string
		req    Requirement
		reqCtx RequestContext
		want   Decision
	}{
		{"granted", Requirement{rights.Todo, rights.Get, "id"}, RequestContext{"user-1", route}, Satisfied},
		{"granted superset", Requirement{rights.Todo, rights.Get | rights.Put, "id"}, RequestContext{"user-1", route}, Satisfied},
		{"missing bit", Requirement{rights.Todo, rights.Delete, "id"}, RequestContext{"user-1", route}, Unsatisfied},
		{"other type", Requirement{rights.TodoTagCollection, rights.Get, "id"}, RequestContext{"user-1", route}, Unsatisfied},
		{"no grant", Requirement{rights.Todo, rights.Get, "id"}, RequestContext{"user-2", route}, Unsatisfied},
		{"anonymous", Requirement{rights.Todo, rights.Get, "id"}, RequestContext{"", route}, Unsatisfied},
		{"blank user", Requirement{rights.Todo, rights.Get, "id"}, RequestContext{"  ", route}, Unsatisfied},
		{"missing route param", Requirement{rights.Todo, rights.Get, "todoId"}, RequestContext{"user-1", route}, Unsatisfied},
		{"nil route values", Requirement{rights.Todo, rights.Get, "id"}, RequestContext{"user-1", nil}, Unsatisfied},
		{"default key", Requirement{rights.Todo, rights.Get, ""}, RequestContext{"user-1", route}, Satisfied},
		{"root", Requirement{rights.Root, rights.PutPermissions, RootResourceKey}, RequestContext{"admin", nil}, Satisfied},
		{"root not granted", Requirement{rights.Root, rights.Get, RootResourceKey}, RequestContext{"user-1", nil}, Unsatisfied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := h.Evaluate(ctx, tt.req, tt.reqCtx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestHandler_EvaluateMissingRouteParamSkipsStore(t *testing.T) {
	store := newFakeGrants()
	h := newTestHandler(store)

	decision, err := h.Evaluate(context.Background(),
		Requirement{rights.Todo, rights.Get, "id"},
		RequestContext{UserID: "user-1", RouteValues: map[string]string{"other": "x"}})
	require.NoError(t, err)
	assert.Equal(t, Unsatisfied, decision)
	assert.Equal(t, 0, store.calls)
}

func TestHandler_EvaluateStoreFault(t *testing.T) {
	store := newFakeGrants()
	store.errs[rights.Todo] = fmt.Errorf("get right: %w", rights.ErrStoreUnavailable)
	observer := &recordingObserver{}
	h := newTestHandler(store, WithDecisionObserver(observer))

	decision, err := h.Evaluate(context.Background(),
		Requirement{rights.Todo, rights.Get, "id"},
		RequestContext{UserID: "user-1", RouteValues: map[string]string{"id": "todo-1"}})
	assert.Equal(t, Unsatisfied, decision)
	assert.ErrorIs(t, err, rights.ErrStoreUnavailable)
	assert.Equal(t, []string{"Todo:error"}, observer.outcomes)
}

func TestHandler_EvaluateRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := newFakeGrants()
	store.grant("user-1", "todo-1", rights.Todo, rights.Get)
	store.errs[rights.Tag] = rights.ErrStoreUnavailable
	h := newTestHandler(store, WithTracerProvider(tp))

	route := map[string]string{"id": "todo-1"}
	_, err := h.Evaluate(context.Background(), Requirement{rights.Todo, rights.Get, "id"}, RequestContext{"user-1", route})
	require.NoError(t, err)
	_, err = h.Evaluate(context.Background(), Requirement{rights.Tag, rights.Get, "id"}, RequestContext{"user-1", route})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "authz.Evaluate", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("authz.requirement", "Todo:Get:id"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("authz.decision", "satisfied"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1)
}

func TestHandler_CustomRootID(t *testing.T) {
	store := newFakeGrants()
	store.grant("admin", "00000000-root", rights.Root, rights.FullControl)
	h := newTestHandler(store, WithRootID("00000000-root"))

	assert.Equal(t, "00000000-root", h.RootID())
	decision, err := h.Evaluate(context.Background(),
		Requirement{rights.Root, rights.Get, RootResourceKey}, RequestContext{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, Satisfied, decision)
}

func TestHandler_EvaluateAny(t *testing.T) {
	store := newFakeGrants()
	store.grant("user-1", "todo-1", rights.Todo, rights.Get)
	store.errs[rights.Tag] = fmt.Errorf("get right: %w", rights.ErrStoreUnavailable)
	h := newTestHandler(store)

	ctx := context.Background()
	reqCtx := RequestContext{UserID: "user-1", RouteValues: map[string]string{"id": "todo-1"}}

	t.Run("empty", func(t *testing.T) {
		decision, err := h.EvaluateAny(ctx, nil, reqCtx)
		require.NoError(t, err)
		assert.Equal(t, Unsatisfied, decision)
	})

	t.Run("one of many satisfied", func(t *testing.T) {
		decision, err := h.EvaluateAny(ctx, []Requirement{
			{rights.Todo, rights.Delete, "id"},
			{rights.Tag, rights.Get, "id"},
			{rights.Todo, rights.Get, "id"},
		}, reqCtx)
		require.NoError(t, err)
		assert.Equal(t, Satisfied, decision)
	})

	t.Run("error surfaces when nothing satisfied", func(t *testing.T) {
		decision, err := h.EvaluateAny(ctx, []Requirement{
			{rights.Todo, rights.Delete, "id"},
			{rights.Tag, rights.Get, "id"},
		}, reqCtx)
		assert.Equal(t, Unsatisfied, decision)
		assert.ErrorIs(t, err, rights.ErrStoreUnavailable)
	})

	t.Run("none satisfied", func(t *testing.T) {
		decision, err := h.EvaluateAny(ctx, []Requirement{
			{rights.Todo, rights.Delete, "id"},
			{rights.Todo, rights.Post, "id"},
		}, reqCtx)
		require.NoError(t, err)
		assert.Equal(t, Unsatisfied, decision)
	})
}

func TestHandler_EvaluateAnyCancelled(t *testing.T) {
	store := newFakeGrants()
	store.delay = time.Second
	h := newTestHandler(store)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	decision, err := h.EvaluateAny(ctx, []Requirement{
		{rights.Todo, rights.Get, "id"},
		{rights.Tag, rights.Get, "id"},
	}, RequestContext{UserID: "user-1", RouteValues: map[string]string{"id": "todo-1"}})
	assert.Equal(t, Unsatisfied, decision)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func setupRightsStore(t *testing.T) *rights.SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	require.NoError(t, rights.RunMigrations(context.Background(), db, storage.DialectSQLite, logger))
	return rights.NewSQLStore(db, storage.DialectSQLite)
}

func TestHandler_CreateThenAuthorize(t *testing.T) {
	ctx := context.Background()
	store := setupRightsStore(t)

	_, err := rights.NewPropagator(store).Create(ctx, rights.CreateRequest{
		CreatorID:         "user-1",
		ResourceID:        "todo-1",
		Type:              rights.Todo,
		CreatorPermission: rights.Get,
		CollectionRights:  map[rights.RightType]rights.Permission{rights.UserTodoCollection: rights.Get},
	})
	require.NoError(t, err)

	all, err := store.GetAll(ctx, "user-1", "todo-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inherits, err := store.GetAllInherit(ctx, "user-1", "todo-1")
	require.NoError(t, err)
	assert.Empty(t, inherits)

	h := newTestHandler(store)
	reqCtx := RequestContext{UserID: "user-1", RouteValues: map[string]string{"id": "todo-1"}}

	policy, err := ParsePolicyName("Todo:Get:id")
	require.NoError(t, err)
	decision, err := h.Evaluate(ctx, policy.Requirement(), reqCtx)
	require.NoError(t, err)
	assert.Equal(t, Satisfied, decision)

	policy, err = ParsePolicyName("Todo:Post:id")
	require.NoError(t, err)
	decision, err = h.Evaluate(ctx, policy.Requirement(), reqCtx)
	require.NoError(t, err)
	assert.Equal(t, Unsatisfied, decision)
}
