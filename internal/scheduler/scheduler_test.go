package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJob_ValidatesSpec(t *testing.T) {
	s := New()
	require.NoError(t, s.AddJob("purge", "0 * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.AddJob("requeue", "@every 5m", func(context.Context) error { return nil }))
	assert.Equal(t, 2, s.Len())

	err := s.AddJob("broken", "every tuesday", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 2, s.Len())
}

func TestRun_ExecutesJobsUntilCancelled(t *testing.T) {
	s := New()
	var runs, failures atomic.Int32
	require.NoError(t, s.AddJob("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.AddJob("fails", "@every 1s", func(ctx context.Context) error {
		failures.Add(1)
		return errors.New("boom")
	}))
	require.NoError(t, s.AddJob("panics", "@every 1s", func(ctx context.Context) error {
		panic("job exploded")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() > 0 && failures.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	err := s.AddJob("late", "@every 1s", func(context.Context) error { return nil })
	assert.Error(t, err, "jobs cannot be added while running")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RejectsSecondRun(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 10*time.Millisecond)
	assert.Error(t, s.Run(ctx))

	cancel()
	require.NoError(t, <-done)
}
