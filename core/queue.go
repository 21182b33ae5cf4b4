package core

import (
	"container/heap"
)

const defaultQueueCap = 16

// =============================================================================
// PriorityQueue: Max-Heap based queue with Stability (FIFO for same priority)
// =============================================================================

type priorityItem struct {
	item     *WorkItem
	priority WorkPriority // snapshot taken at Push
	sequence uint64       // For stability
	index    int          // For heap
}

// priorityHeap implements heap.Interface
type priorityHeap []*priorityItem

func (h priorityHeap) Len() int { return len(h) }

// Less implements priority logic: High priority first, then Small sequence first (FIFO)
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].sequence < h[j].sequence
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x any) {
	n := len(*h)
	item := x.(*priorityItem)
	item.index = n
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// PriorityQueue orders work items by priority, highest first, and by arrival
// among equal priorities.
//
// PriorityQueue is not safe for concurrent use; callers hold their own lock.
type PriorityQueue struct {
	pq           priorityHeap
	nextSequence uint64
}

func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{
		pq: make(priorityHeap, 0, defaultQueueCap),
	}
}

func (q *PriorityQueue) Push(item *WorkItem) {
	heap.Push(&q.pq, &priorityItem{
		item:     item,
		priority: item.Priority(),
		sequence: q.nextSequence,
	})
	q.nextSequence++
}

func (q *PriorityQueue) Pop() (*WorkItem, bool) {
	if len(q.pq) == 0 {
		return nil, false
	}
	entry := heap.Pop(&q.pq).(*priorityItem)
	return entry.item, true
}

// Peek returns the item Pop would return without removing it.
func (q *PriorityQueue) Peek() (*WorkItem, bool) {
	if len(q.pq) == 0 {
		return nil, false
	}
	// 0 is the highest priority item because Less puts highest priority at top
	return q.pq[0].item, true
}

func (q *PriorityQueue) Len() int { return len(q.pq) }

func (q *PriorityQueue) IsEmpty() bool { return len(q.pq) == 0 }

// Clear removes every item and returns them in pop order.
func (q *PriorityQueue) Clear() []*WorkItem {
	if len(q.pq) == 0 {
		return nil
	}
	dropped := make([]*WorkItem, 0, len(q.pq))
	for len(q.pq) > 0 {
		dropped = append(dropped, heap.Pop(&q.pq).(*priorityItem).item)
	}
	// Create a new heap to release all item references
	q.pq = make(priorityHeap, 0, defaultQueueCap)
	return dropped
}
