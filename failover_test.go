package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailover_buildsOnMiss(t *testing.T) {
	sc := NewFailover(FailoverConfig{Name: "t"})
	ctx := context.Background()

	val, err := sc.Get(ctx, "k", func(ctx context.Context) (interface{}, error) {
		return "built", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "built", val)

	val, err = sc.Get(ctx, "k", func(ctx context.Context) (interface{}, error) {
		t.Error("should not rebuild a fresh value")

		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "built", val)
}

func TestFailover_servesStaleOnBuildFailure(t *testing.T) {
	sc := NewFailover(FailoverConfig{
		Name:            "t",
		UpstreamConfig:  MemoryConfig{DefaultExpiration: MustExpiration(5*time.Millisecond, 0)},
		FailedUpdateTTL: time.Minute,
	})
	ctx := context.Background()

	_, err := sc.Get(ctx, "k", func(ctx context.Context) (interface{}, error) {
		return "first", nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	wantErr := errors.New("upstream down")

	val, err := sc.Get(ctx, "k", func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	require.NoError(t, err, "a stale value masks a failed rebuild")
	assert.Equal(t, "first", val)
}

func TestFailover_recentFailureShortCircuits(t *testing.T) {
	sc := NewFailover(FailoverConfig{Name: "t", FailedUpdateTTL: time.Minute})
	ctx := context.Background()

	wantErr := errors.New("boom")

	var calls atomic.Int32

	_, err := sc.Get(ctx, "k", func(ctx context.Context) (interface{}, error) {
		calls.Add(1)

		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, err = sc.Get(ctx, "k", func(ctx context.Context) (interface{}, error) {
		calls.Add(1)

		return nil, nil
	})
	assert.Error(t, err, "a recently failed key should short-circuit without rebuilding")
	assert.Equal(t, int32(1), calls.Load())
}
