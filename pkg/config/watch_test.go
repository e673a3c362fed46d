package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadRecorder struct {
	mu     sync.Mutex
	loaded []map[string][]string
	reject bool
}

func (r *reloadRecorder) reload(policies map[string][]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return errors.New("bad policy")
	}
	r.loaded = append(r.loaded, policies)
	return nil
}

func (r *reloadRecorder) last() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.loaded) == 0 {
		return nil
	}
	return r.loaded[len(r.loaded)-1]
}

func TestWatchPolicyFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  editors: [\"Todo:Put:id\"]\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, hook := test.NewNullLogger()
	recorder := &reloadRecorder{}
	require.NoError(t, WatchPolicyFile(ctx, path, logger, recorder.reload))

	require.NoError(t, os.WriteFile(path, []byte("policies:\n  editors: [\"Todo:Get:id\"]\n"), 0o600))
	require.Eventually(t, func() bool {
		p := recorder.last()
		return p != nil && len(p["editors"]) == 1 && p["editors"][0] == "Todo:Get:id"
	}, 5*time.Second, 20*time.Millisecond)

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("policies: {}\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "Todo:Get:id", recorder.last()["editors"][0])

	recorder.mu.Lock()
	recorder.reject = true
	recorder.mu.Unlock()
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  editors: [\"Todo:Fly:id\"]\n"), 0o600))
	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Todo:Get:id", recorder.last()["editors"][0])
}

func TestWatchPolicyFile_MissingDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := WatchPolicyFile(context.Background(), filepath.Join(t.TempDir(), "nope", "policies.yaml"), logger, func(map[string][]string) error { return nil })
	assert.Error(t, err)
}
