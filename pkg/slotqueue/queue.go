// Package slotqueue orders waiting tokens and slot occupants by priority.
// Adapted from pkg/orderbook's price-time orderHeap: the same min/max heap
// shape over a single comparator, generalized from decimal price to
// priority.Priority and keyed on priority.Item instead of *Order.
package slotqueue

import (
	"container/heap"
	"sync"

	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
)

// itemHeap implements heap.Interface over priority.Item, using either the
// candidate (ascending priority, FIFO) or victim (descending priority,
// oldest-first) ordering depending on victim.
type itemHeap struct {
	items  []priority.Item
	victim bool
}

func (h *itemHeap) Len() int { return len(h.items) }

func (h *itemHeap) Less(i, j int) bool {
	if h.victim {
		return priority.VictimLess(h.items[i], h.items[j])
	}
	return priority.CandidateLess(h.items[i], h.items[j])
}

func (h *itemHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *itemHeap) Push(x interface{}) {
	h.items = append(h.items, x.(priority.Item))
}

func (h *itemHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return it
}

// Queue holds a doctor-date's WAITING tokens and exposes the next
// candidate to admit, heapifying one underlying slice in candidate order on
// demand. It does not select displacement victims; see PickVictim below.
type Queue struct {
	mu    sync.Mutex
	items []priority.Item
}

func New() *Queue {
	return &Queue{}
}

// Push adds an item to the queue.
func (q *Queue) Push(it priority.Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
}

// Len reports the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PopBestCandidate removes and returns the highest-priority, earliest
// arrival item — the next one eligible for allocation (spec §4.4 step 1).
func (q *Queue) PopBestCandidate() (priority.Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	h := &itemHeap{items: append([]priority.Item(nil), q.items...), victim: false}
	heap.Init(h)
	best := heap.Pop(h).(priority.Item)
	q.items = removeItem(q.items, best)
	return best, true
}

// PeekBestCandidate reports the next candidate without removing it.
func (q *Queue) PeekBestCandidate() (priority.Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	best := q.items[0]
	for _, it := range q.items[1:] {
		if priority.CandidateLess(it, best) {
			best = it
		}
	}
	return best, true
}

// Remove drops it from the queue, e.g. on cancellation while still WAITING.
func (q *Queue) Remove(it priority.Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = removeItem(q.items, it)
}

// Items returns a snapshot of the queued items in candidate order.
func (q *Queue) Items() []priority.Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]priority.Item(nil), q.items...)
	h := &itemHeap{items: out, victim: false}
	heap.Init(h)
	sorted := make([]priority.Item, 0, len(out))
	for h.Len() > 0 {
		sorted = append(sorted, heap.Pop(h).(priority.Item))
	}
	return sorted
}

func removeItem(items []priority.Item, target priority.Item) []priority.Item {
	for i, it := range items {
		if it == target {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}

// PickVictim selects the occupant to displace from a slot's current
// allocated occupants, without building a queue: occupant sets are small
// and change shape on every call, so a linear scan (priority.PickVictim)
// is used directly by the allocation package instead of a heap here.
var PickVictim = priority.PickVictim
