package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logsvc "github.com/nexscholar/nexscholar/services/logger"
)

func TestScheduler_WithoutOverlapping(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	var runs atomic.Int32
	s := NewScheduler(logsvc.NewDiscardLogger()).
		Every("slow", time.Hour, func(context.Context) error {
			runs.Add(1)
			<-release
			return nil
		})

	assert.True(t, s.Tick(ctx, "slow"))
	assert.False(t, s.Tick(ctx, "slow"), "previous run still active")
	assert.False(t, s.Tick(ctx, "unknown"))

	close(release)
	require.Eventually(t, func() bool { return s.Tick(ctx, "slow") }, time.Second, 5*time.Millisecond)
	s.runs.Wait()
	assert.EqualValues(t, 2, runs.Load())
}

func TestScheduler_Run(t *testing.T) {
	var fast, slow atomic.Int32
	s := NewScheduler(logsvc.NewDiscardLogger()).
		Every("fast", 5*time.Millisecond, func(context.Context) error {
			fast.Add(1)
			return nil
		}).
		Every("slow", time.Hour, func(context.Context) error {
			slow.Add(1)
			return nil
		})
	assert.Equal(t, []string{"fast", "slow"}, s.Jobs())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Greater(t, fast.Load(), int32(1))
	assert.Zero(t, slow.Load())
}
