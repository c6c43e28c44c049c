package scheduler

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueTask builds a bare task for heap tests.
func queueTask(id string, priority int, seq uint64) *task {
	return &task{id: id, priority: priority, seq: seq, index: -1}
}

func TestTaskQueue_PriorityThenFIFO(t *testing.T) {
	q := &taskQueue{}
	heap.Init(q)

	heap.Push(q, queueTask("low-1", 1, 1))
	heap.Push(q, queueTask("high", 5, 2))
	heap.Push(q, queueTask("low-2", 1, 3))
	heap.Push(q, queueTask("mid", 3, 4))

	var order []string
	for q.Len() > 0 {
		order = append(order, heap.Pop(q).(*task).id)
	}
	assert.Equal(t, []string{"high", "mid", "low-1", "low-2"}, order)
}

func TestTaskQueue_EqualPriorityIsEnqueueOrder(t *testing.T) {
	q := &taskQueue{}
	heap.Init(q)
	for i := uint64(1); i <= 5; i++ {
		heap.Push(q, queueTask(string(rune('a'+i-1)), 2, i))
	}

	var order []string
	for q.Len() > 0 {
		order = append(order, heap.Pop(q).(*task).id)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
}

func TestTaskQueue_RemoveByIndex(t *testing.T) {
	q := &taskQueue{}
	heap.Init(q)

	a := queueTask("a", 1, 1)
	b := queueTask("b", 1, 2)
	c := queueTask("c", 1, 3)
	heap.Push(q, a)
	heap.Push(q, b)
	heap.Push(q, c)

	require.GreaterOrEqual(t, b.index, 0)
	heap.Remove(q, b.index)
	assert.Equal(t, -1, b.index)

	var order []string
	for q.Len() > 0 {
		order = append(order, heap.Pop(q).(*task).id)
	}
	assert.Equal(t, []string{"a", "c"}, order)
}
