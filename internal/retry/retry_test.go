package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDone(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.False(t, p.Done(0))
	assert.False(t, p.Done(2))
	assert.True(t, p.Done(3))
	assert.True(t, p.Done(4))
}

func TestPolicyNextExponential(t *testing.T) {
	p := Policy{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            false,
	}
	assert.Equal(t, 100*time.Millisecond, p.Next(0))
	assert.Equal(t, 200*time.Millisecond, p.Next(1))
	assert.Equal(t, 400*time.Millisecond, p.Next(2))
}

func TestPolicyNextCapsAtMaxDelay(t *testing.T) {
	p := Policy{
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
	}
	assert.Equal(t, 5*time.Second, p.Next(10))
}

func TestPolicyNextJitterWithinBounds(t *testing.T) {
	p := Policy{
		InitialDelay:      1 * time.Second,
		MaxDelay:          100 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
	for i := 0; i < 50; i++ {
		d := p.Next(0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}
