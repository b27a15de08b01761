package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnlimitedAcquireReturnsImmediately(t *testing.T) {
	l := New(0, 0)
	assert.True(t, l.Unlimited())

	start := time.Now()
	err := l.Acquire(context.Background(), 10_000_000)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimitedAcquireConsumesBurst(t *testing.T) {
	l := New(1000, 1000)
	assert.False(t, l.Unlimited())

	err := l.Acquire(context.Background(), 1000)
	assert.NoError(t, err)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, 1_000_000)
	assert.Error(t, err)
}

func TestUpdateSwapsLimiterParameters(t *testing.T) {
	l := New(100, 100)
	l.Update(0, 0)
	assert.True(t, l.Unlimited())

	l.Update(500, 500)
	assert.False(t, l.Unlimited())
}
