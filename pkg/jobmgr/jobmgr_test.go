package jobmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestManager_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(context.Background(), zerolog.Nop())
	require.NoError(t, m.StartAsync("watcher", blockUntilDone))
	require.NoError(t, m.StartAsync("metrics", blockUntilDone))

	assert.Equal(t, []string{"metrics", "watcher"}, m.List())
	assert.Equal(t, "Running jobs: metrics, watcher", m.Status())
	assert.ErrorIs(t, m.StartAsync("watcher", blockUntilDone), ErrRunning)

	require.NoError(t, m.Stop(context.Background(), "watcher"))
	assert.Equal(t, []string{"metrics"}, m.List())
	assert.ErrorIs(t, m.Stop(context.Background(), "watcher"), ErrNotRunning)

	m.StopAll()
	require.NoError(t, m.Wait())
	assert.Equal(t, "No jobs are running.", m.Status())
	assert.ErrorIs(t, m.StartAsync("late", blockUntilDone), ErrStopped)
}

func TestManager_WaitCollectsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	m := NewManager(context.Background(), zerolog.Nop())
	require.NoError(t, m.StartAsync("broken", func(context.Context) error { return boom }))
	require.NoError(t, m.StartAsync("fine", func(context.Context) error { return nil }))

	err := m.Wait()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
	assert.Empty(t, m.List())
}

func TestManager_ParentCancelStopsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, zerolog.Nop())
	require.NoError(t, m.StartAsync("sweeper", blockUntilDone))

	cancel()
	done := make(chan error, 1)
	go func() { done <- m.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not stop with the parent context")
	}
}

func TestManager_StartSync(t *testing.T) {
	m := NewManager(context.Background(), zerolog.Nop())
	ran := false
	err := m.StartSync("once", func(ctx context.Context) error {
		ran = ctx.Err() == nil
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, m.List())
}
