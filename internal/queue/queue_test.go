package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonzbd/internal/domain"
)

func TestPopOrdersByPriorityThenFIFO(t *testing.T) {
	q := New()
	now := time.Now()

	q.Push(1, domain.PriorityNormal, now)
	q.Push(2, domain.PriorityHigh, now.Add(time.Second))
	q.Push(3, domain.PriorityHigh, now)
	q.Push(4, domain.PriorityForce, now)

	id, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(4), id, "force must pop first")

	id, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(3), id, "earlier-enqueued high priority before later high priority")

	id, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(2), id)

	id, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	q := New()
	now := time.Now()
	q.Push(1, domain.PriorityNormal, now)
	q.Push(2, domain.PriorityNormal, now)

	assert.True(t, q.Remove(1))
	assert.False(t, q.Remove(1))
	assert.Equal(t, 1, q.Len())

	id, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestChangePriorityReordersJob(t *testing.T) {
	q := New()
	now := time.Now()
	q.Push(1, domain.PriorityLow, now)
	q.Push(2, domain.PriorityNormal, now)

	assert.True(t, q.ChangePriority(1, domain.PriorityForce))

	id, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestPushIgnoresDuplicateJobID(t *testing.T) {
	q := New()
	now := time.Now()
	q.Push(1, domain.PriorityLow, now)
	q.Push(1, domain.PriorityForce, now)

	assert.Equal(t, 1, q.Len())
}

func TestPauseResume(t *testing.T) {
	q := New()
	assert.False(t, q.Paused())
	q.Pause()
	assert.True(t, q.Paused())
	q.Resume()
	assert.False(t, q.Paused())
}
