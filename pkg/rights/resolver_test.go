package rights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_IsAllowed(t *testing.T) {
	ctx := context.Background()
	store := setupSQLStore(t)
	resolver := NewResolver(store)

	_, err := store.SetRight(ctx, "user-1", "todo-1", Todo, Get|Post)
	require.NoError(t, err)

	allowed, err := resolver.IsAllowed(ctx, "user-1", "todo-1", Todo, Get)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = resolver.IsAllowed(ctx, "user-1", "todo-1", Todo, Get|Put)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = resolver.IsAllowed(ctx, "user-2", "todo-1", Todo, Get)
	require.NoError(t, err)
	assert.False(t, allowed, "no grant, no access")
}

func TestResolver_StoreFault(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t)
	mr.SetError("LOADING")

	allowed, err := NewResolver(store).IsAllowed(ctx, "user-1", "todo-1", Todo, Get)
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = NewResolver(store).Effective(ctx, "user-1", "todo-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestResolver_Effective(t *testing.T) {
	ctx := context.Background()
	store := setupSQLStore(t)

	require.NoError(t, store.CreateRights(ctx, "user-1", "user-1", map[RightType]Permission{
		User:               FullCreatorOwner,
		UserTodoCollection: AllAccess,
	}, nil))

	effective, err := NewResolver(store).Effective(ctx, "user-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, map[RightType]Permission{
		User:               FullCreatorOwner,
		UserTodoCollection: AllAccess,
	}, effective)
}
