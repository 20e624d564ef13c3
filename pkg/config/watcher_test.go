package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, policy string) (*Watcher, string) {
	t.Helper()
	memoryEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o644))
	t.Setenv("MATCH_POLICY_FILE", path)
	t.Setenv("CONFIG_RELOAD_DELAY", "20ms")

	env := Load()
	require.NoError(t, env.Validate())
	p, err := LoadPolicy(env.PolicyFile, nil)
	require.NoError(t, err)

	w, err := NewWatcher(Snapshot{Env: env, Policy: p}, nil)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, path
}

func TestReloadPublishesPolicyChange(t *testing.T) {
	w, path := newTestWatcher(t, "matching:\n  max_results: 10\n")
	ch := w.Subscribe()

	require.NoError(t, os.WriteFile(path, []byte("matching:\n  max_results: 4\n"), 0o644))
	w.Reload()

	select {
	case chg := <-ch:
		require.NoError(t, chg.Err)
		assert.Contains(t, chg.Fields, "Policy.Matching")
		assert.Equal(t, 10, chg.Old.Policy.Matching.MaxResults)
		assert.Equal(t, 4, chg.New.Policy.Matching.MaxResults)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
	assert.Equal(t, 4, w.Current().Policy.Matching.MaxResults)
}

func TestReloadKeepsSnapshotOnInvalidPolicy(t *testing.T) {
	w, path := newTestWatcher(t, "matching:\n  max_results: 10\n")
	ch := w.Subscribe()

	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  weights:\n    name_max: 90\n"), 0o644))
	w.Reload()

	chg := <-ch
	require.Error(t, chg.Err)
	assert.Equal(t, 10, w.Current().Policy.Matching.MaxResults)
}

func TestReloadWithoutChangesIsSilent(t *testing.T) {
	w, _ := newTestWatcher(t, "matching:\n  max_results: 10\n")
	ch := w.Subscribe()
	w.Reload()

	select {
	case chg := <-ch:
		t.Fatalf("unexpected change: %+v", chg.Fields)
	default:
	}
}

func TestWatcherPicksUpFileWrites(t *testing.T) {
	w, path := newTestWatcher(t, "matching:\n  max_results: 10\n")
	ch := w.Subscribe()
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("matching:\n  max_results: 2\n"), 0o644))

	select {
	case chg := <-ch:
		require.NoError(t, chg.Err)
		assert.Equal(t, 2, chg.New.Policy.Matching.MaxResults)
	case <-time.After(5 * time.Second):
		t.Fatal("file change not observed")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	w, _ := newTestWatcher(t, "")
	ch := w.Subscribe()
	w.Start()
	w.Close()
	w.Close()

	_, ok := <-ch
	assert.False(t, ok)
}
