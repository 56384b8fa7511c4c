package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExpiration(t *testing.T) {
	exp, err := NewExpiration(time.Minute, time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, exp.Life)
	assert.Equal(t, time.Second, exp.Idle)
	assert.False(t, exp.IsEternal())

	_, err = NewExpiration(-time.Second, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewExpiration(0, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEternal_IsEternal(t *testing.T) {
	assert.True(t, Eternal.IsEternal())

	life, err := ExpireAfterLife(time.Second)
	require.NoError(t, err)
	assert.False(t, life.IsEternal())
}

func TestMustExpiration_panics(t *testing.T) {
	assert.Panics(t, func() {
		MustExpiration(-time.Second, 0)
	})
}

func TestExpiration_LifeIn(t *testing.T) {
	exp := MustExpiration(90*time.Second, 30*time.Second)
	assert.Equal(t, int64(90), exp.LifeIn(time.Second))
	assert.Equal(t, int64(30), exp.IdleIn(time.Second))
	assert.Equal(t, int64(0), exp.LifeIn(0))
}
