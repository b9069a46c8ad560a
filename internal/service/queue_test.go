package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueuePushDedup(t *testing.T) {
	q := NewPriorityQueue()
	q.Push("a")
	q.Push("b")
	q.Push("a")
	assert.Equal(t, []string{"a", "b"}, q.IDs())

	q.PushFront("b")
	assert.Equal(t, []string{"b", "a"}, q.IDs())

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "b", head)

	assert.True(t, q.Remove("b"))
	assert.False(t, q.Remove("b"))
	assert.False(t, q.Contains("b"))
	assert.Equal(t, 1, q.Len())
}

func TestPriorityQueueRerankStableAndPrunes(t *testing.T) {
	q := NewPriorityQueue()
	for _, id := range []string{"low", "tie1", "gone", "high", "tie2"} {
		q.Push(id)
	}
	scores := map[string]int{"low": 20, "tie1": 60, "high": 100, "tie2": 60}
	q.Rerank(func(id string) (int, bool) {
		s, ok := scores[id]
		return s, ok
	})
	assert.Equal(t, []string{"high", "tie1", "tie2", "low"}, q.IDs())
}

func TestPriorityQueueIDsIsCopy(t *testing.T) {
	q := NewPriorityQueue()
	q.Push("a")
	ids := q.IDs()
	ids[0] = "mutated"
	assert.Equal(t, []string{"a"}, q.IDs())

	_, ok := NewPriorityQueue().Peek()
	assert.False(t, ok)
}

func TestPriorityQueuePrune(t *testing.T) {
	q := NewPriorityQueue()
	q.Push("a")
	q.Push("b")
	q.Push("c")
	removed := q.Prune(func(id string) bool { return id != "b" })
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"a", "c"}, q.IDs())
}
