package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunOnce_HandlesEveryClaimedItem(t *testing.T) {
	claimed := []int{1, 2, 3}
	claim := func(_ context.Context, limit int) ([]int, error) {
		assert.Equal(t, 10, limit)
		return claimed, nil
	}
	var handled []int
	handle := func(_ context.Context, item int) error {
		handled = append(handled, item)
		return nil
	}

	n, err := RunOnce(context.Background(), zap.NewNop(), claim, handle, 10)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, claimed, handled)
}

func TestRunOnce_ClaimError(t *testing.T) {
	claim := func(_ context.Context, _ int) ([]int, error) {
		return nil, assert.AnError
	}
	handle := func(_ context.Context, _ int) error { return nil }

	n, err := RunOnce(context.Background(), zap.NewNop(), claim, handle, 5)

	require.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestRunOnce_PerItemErrorDoesNotAbortBatch(t *testing.T) {
	claim := func(_ context.Context, _ int) ([]int, error) {
		return []int{1, 2, 3}, nil
	}
	var handled []int
	handle := func(_ context.Context, item int) error {
		handled = append(handled, item)
		if item == 2 {
			return assert.AnError
		}
		return nil
	}

	n, err := RunOnce(context.Background(), zap.NewNop(), claim, handle, 5)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, handled)
}

func TestRunOnce_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	claim := func(_ context.Context, _ int) ([]int, error) {
		return []int{1, 2, 3}, nil
	}
	var handled []int
	handle := func(_ context.Context, item int) error {
		handled = append(handled, item)
		if item == 1 {
			cancel()
		}
		return nil
	}

	n, err := RunOnce(ctx, zap.NewNop(), claim, handle, 5)

	require.Error(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1}, handled)
}

func TestRunLoop_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var claims int
	claim := func(_ context.Context, _ int) ([]int, error) {
		claims++
		return nil, nil
	}
	handle := func(_ context.Context, _ int) error { return nil }

	done := make(chan struct{})
	go func() {
		RunLoop(ctx, zap.NewNop(), 5*time.Millisecond, 10, claim, handle)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not stop after context cancellation")
	}
	assert.GreaterOrEqual(t, claims, 1)
}
