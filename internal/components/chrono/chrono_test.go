package chrono

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeSleep(t *testing.T) {
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	clock := NewFakeImpl(start)

	require.NoError(t, clock.Sleep(context.Background(), 2*time.Second))
	require.NoError(t, clock.Sleep(context.Background(), 0))
	require.NoError(t, clock.Sleep(context.Background(), 5*time.Second))

	require.Equal(t, []time.Duration{2 * time.Second, 5 * time.Second}, clock.Sleeps())
	require.Equal(t, 7*time.Second, clock.Slept())
	require.Equal(t, start.Add(7*time.Second), clock.Now())
}

func TestFakeSleepCancelled(t *testing.T) {
	clock := NewFakeImpl(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := clock.Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, clock.Sleeps())
}

func TestStandardSleepCancelled(t *testing.T) {
	clock, err := NewStandardImpl()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = clock.Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
