package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_setValue(t *testing.T) {
	p := newPromise(1)

	assert.False(t, p.isDone())
	assert.True(t, p.setValue(42))
	assert.False(t, p.setValue(43), "second resolution must be a no-op")
	assert.True(t, p.isDone())

	val, err := p.await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestPromise_setError(t *testing.T) {
	p := newPromise(1)
	wantErr := errors.New("boom")

	assert.True(t, p.setError(wantErr))
	assert.False(t, p.setValue("too late"))

	val, err := p.await(context.Background())
	assert.Nil(t, val)
	assert.Equal(t, wantErr, err)
}

func TestPromise_cancel(t *testing.T) {
	p := newPromise(1)

	assert.True(t, p.cancel())
	assert.True(t, p.isCancelled())
	assert.False(t, p.setValue("too late"))

	val, err := p.await(context.Background())
	assert.Nil(t, val)
	assert.NoError(t, err)
}

func TestPromise_await_contextCancelled(t *testing.T) {
	p := newPromise(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	val, err := p.await(ctx)
	assert.Nil(t, val)
	assert.NoError(t, err, "interruption swallows to nil, nil and leaves the promise unresolved")
	assert.False(t, p.isDone())
}

func TestPromise_await_concurrentResolve(t *testing.T) {
	p := newPromise(1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.setValue("done")
	}()

	val, err := p.await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", val)
}
