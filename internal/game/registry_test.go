// internal/game/registry_test.go
package game

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(newTestStore(t), testLogger())
}

func TestRegistryCreateGetRemove(t *testing.T) {
	r := newTestRegistry(t)
	host := uuid.New()

	lob, err := r.Create("host", host, "")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.True(t, seated(lob, host))

	got, ok := r.Get(lob.ID)
	require.True(t, ok)
	assert.Same(t, lob, got)

	_, ok = r.Get(uuid.New())
	assert.False(t, ok)

	sub := lob.Bus.Subscribe()
	r.Remove(lob.ID)
	assert.Zero(t, r.Len())
	_, ok = r.Get(lob.ID)
	assert.False(t, ok)

	_, open := <-sub.Events()
	assert.False(t, open, "removal should tear the lobby down")

	r.Remove(lob.ID)
}

func TestRegistryCleanIdlePrunesOnlyStale(t *testing.T) {
	r := newTestRegistry(t)

	stale, err := r.Create("old", uuid.New(), "")
	require.NoError(t, err)
	fresh, err := r.Create("new", uuid.New(), "")
	require.NoError(t, err)

	stale.activityMu.Lock()
	stale.lastActivity = time.Now().Add(-time.Hour)
	stale.activityMu.Unlock()

	sub := stale.Bus.Subscribe()
	assert.Equal(t, 1, r.CleanIdle(30*time.Minute))

	_, ok := r.Get(stale.ID)
	assert.False(t, ok)
	_, ok = r.Get(fresh.ID)
	assert.True(t, ok)

	_, open := <-sub.Events()
	assert.False(t, open, "pruned lobby should close its bus")

	assert.Zero(t, r.CleanIdle(30*time.Minute))
}

func TestRegistryJanitorStopsOnCancel(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.RunJanitor(ctx, 5*time.Millisecond, time.Hour)
		close(done)
	}()

	lob, err := r.Create("host", uuid.New(), "")
	require.NoError(t, err)

	// A couple of ticks pass; the active lobby must survive them.
	time.Sleep(25 * time.Millisecond)
	_, ok := r.Get(lob.ID)
	assert.True(t, ok)

	cancel()
	select {
	case <-done:
	case <-time.After(eventWait):
		t.Fatal("janitor did not stop on cancel")
	}
}
