package slotqueue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/slotqueue"
)

type item struct {
	id        string
	prio      priority.Priority
	createdAt time.Time
}

func (i *item) ItemPriority() priority.Priority { return i.prio }
func (i *item) ItemCreatedAt() time.Time        { return i.createdAt }

func TestPopBestCandidateOrdersByPriorityThenArrival(t *testing.T) {
	base := time.Now()
	q := slotqueue.New()
	a := &item{id: "a", prio: priority.Walkin, createdAt: base}
	b := &item{id: "b", prio: priority.Emergency, createdAt: base.Add(time.Minute)}
	c := &item{id: "c", prio: priority.Emergency, createdAt: base}

	q.Push(a)
	q.Push(b)
	q.Push(c)

	require.Equal(t, 3, q.Len())

	first, ok := q.PopBestCandidate()
	require.True(t, ok)
	assert.Same(t, c, first, "equal priority ties break FIFO by arrival")

	second, ok := q.PopBestCandidate()
	require.True(t, ok)
	assert.Same(t, b, second)

	third, ok := q.PopBestCandidate()
	require.True(t, ok)
	assert.Same(t, a, third)

	_, ok = q.PopBestCandidate()
	assert.False(t, ok)
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := slotqueue.New()
	a := &item{id: "a", prio: priority.Paid, createdAt: time.Now()}
	q.Push(a)

	peeked, ok := q.PeekBestCandidate()
	require.True(t, ok)
	assert.Same(t, a, peeked)
	assert.Equal(t, 1, q.Len())
}

func TestRemoveDropsQueuedItem(t *testing.T) {
	q := slotqueue.New()
	a := &item{id: "a", prio: priority.Paid, createdAt: time.Now()}
	b := &item{id: "b", prio: priority.Online, createdAt: time.Now()}
	q.Push(a)
	q.Push(b)

	q.Remove(a)
	assert.Equal(t, 1, q.Len())

	remaining, ok := q.PopBestCandidate()
	require.True(t, ok)
	assert.Same(t, b, remaining)
}

func TestItemsReturnsCandidateOrderSnapshot(t *testing.T) {
	base := time.Now()
	q := slotqueue.New()
	a := &item{id: "a", prio: priority.Walkin, createdAt: base}
	b := &item{id: "b", prio: priority.Emergency, createdAt: base}
	q.Push(a)
	q.Push(b)

	snap := q.Items()
	require.Len(t, snap, 2)
	assert.Same(t, b, snap[0])
	assert.Same(t, a, snap[1])
	assert.Equal(t, 2, q.Len(), "Items must not mutate the underlying queue")
}

func TestPickVictimPicksWorstOccupant(t *testing.T) {
	base := time.Now()
	good := &item{id: "good", prio: priority.Emergency, createdAt: base}
	worst := &item{id: "worst", prio: priority.Walkin, createdAt: base.Add(-time.Hour)}
	occupants := []priority.Item{good, worst}

	victim := slotqueue.PickVictim(occupants)
	assert.Same(t, worst, victim)
}
