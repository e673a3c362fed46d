package rights

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts Get calls that reach the backing store.
type countingStore struct {
	Store
	gets  atomic.Int64
	delay time.Duration
	err   error
}

func (s *countingStore) Get(ctx context.Context, userID, resourceID string, rightType RightType) (*UserRight, error) {
	s.gets.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Get(ctx, userID, resourceID, rightType)
}

// gatedStore blocks Get until release is closed or the load's context ends.
type gatedStore struct {
	Store
	gets    atomic.Int64
	release chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, userID, resourceID string, rightType RightType) (*UserRight, error) {
	s.gets.Add(1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Store.Get(ctx, userID, resourceID, rightType)
}

type observerFunc func(hit bool)

func (f observerFunc) ObserveCacheLookup(hit bool) { f(hit) }

func TestCachedStore_CachesHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: setupSQLStore(t)}

	var observed []bool
	cached := NewCachedStore(backing, 100, time.Minute, observerFunc(func(hit bool) {
		observed = append(observed, hit)
	}))

	_, err := backing.Store.SetRight(ctx, "user-1", "todo-1", Todo, Get)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		right, err := cached.Get(ctx, "user-1", "todo-1", Todo)
		require.NoError(t, err)
		require.NotNil(t, right)
		assert.Equal(t, Get, right.Rights)
	}

	for i := 0; i < 2; i++ {
		right, err := cached.Get(ctx, "user-1", "todo-1", Tag)
		require.NoError(t, err)
		assert.Nil(t, right)
	}

	assert.Equal(t, int64(2), backing.gets.Load())
	assert.Equal(t, []bool{false, true, true, false, true}, observed)

	stats := cached.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(2), stats.ItemCount)
	assert.InDelta(t, 0.6, stats.HitRate, 0.001)
}

func TestCachedStore_InvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	cached := NewCachedStore(setupSQLStore(t), 100, time.Minute, nil)

	right, err := cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	assert.Nil(t, right)

	_, err = cached.SetRight(ctx, "user-1", "todo-1", Todo, AllAccess)
	require.NoError(t, err)

	right, err = cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	require.NotNil(t, right)
	assert.Equal(t, AllAccess, right.Rights)

	require.NoError(t, cached.RemoveRight(ctx, "user-1", "todo-1", Todo))
	right, err = cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	assert.Nil(t, right)

	require.NoError(t, cached.CreateRights(ctx, "user-1", "todo-1", map[RightType]Permission{Todo: Get}, nil))
	right, err = cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	require.NotNil(t, right)

	require.NoError(t, cached.RemoveResource(ctx, "todo-1"))
	right, err = cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	assert.Nil(t, right)
}

func TestCachedStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cached := NewCachedStore(setupSQLStore(t), 100, time.Minute, nil)

	_, err := cached.SetRight(ctx, "user-1", "todo-1", Todo, Get)
	require.NoError(t, err)

	right, err := cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	right.Rights = FullCreatorOwner

	again, err := cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	assert.Equal(t, Get, again.Rights)
}

func TestCachedStore_CollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	redisStore, _ := setupRedisStore(t)
	backing := &countingStore{Store: redisStore, delay: 50 * time.Millisecond}
	cached := NewCachedStore(backing, 100, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.Get(ctx, "user-1", "todo-1", Todo)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), backing.gets.Load())
}

func TestCachedStore_DoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: setupSQLStore(t), err: unavailable("get right", errors.New("down"))}
	cached := NewCachedStore(backing, 100, time.Minute, nil)

	_, err := cached.Get(ctx, "user-1", "todo-1", Todo)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	backing.err = nil
	right, err := cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	assert.Nil(t, right)
	assert.Equal(t, int64(2), backing.gets.Load())
}

func TestCachedStore_Expires(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: setupSQLStore(t)}
	cached := NewCachedStore(backing, 100, 20*time.Millisecond, nil)

	_, err := cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = cached.Get(ctx, "user-1", "todo-1", Todo)
	require.NoError(t, err)
	assert.Equal(t, int64(2), backing.gets.Load())
}

func TestCachedStore_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	sqlStore := setupSQLStore(t)
	_, err := sqlStore.SetRight(context.Background(), "user-1", "todo-1", Todo, Get)
	require.NoError(t, err)

	backing := &gatedStore{Store: sqlStore, release: make(chan struct{})}
	cached := NewCachedStore(backing, 100, time.Minute, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cached.Get(leaderCtx, "user-1", "todo-1", Todo)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return backing.gets.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		right *UserRight
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		right, err := cached.Get(context.Background(), "user-1", "todo-1", Todo)
		follower <- result{right, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(backing.release)
	res := <-follower
	require.NoError(t, res.err)
	require.NotNil(t, res.right)
	assert.Equal(t, Get, res.right.Rights)
	assert.Equal(t, int64(1), backing.gets.Load())

	// the shared load still populated the cache
	right, err := cached.Get(context.Background(), "user-1", "todo-1", Todo)
	require.NoError(t, err)
	assert.Equal(t, Get, right.Rights)
	assert.Equal(t, int64(1), backing.gets.Load())
}
