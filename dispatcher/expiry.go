package dispatcher

import (
	"container/heap"
	"sync"
	"time"

	"github.com/xraph/router/id"
)

// expiryEntry is one scheduled offer expiration.
type expiryEntry struct {
	expiresAt time.Time
	workerID  id.WorkerID
	offerID   id.OfferID
}

// expiryHeap is a min-heap of offer expirations ordered by deadline.
type expiryHeap []*expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(*expiryEntry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// expirySchedule is the concurrency-safe wrapper around the heap. The
// wake channel nudges the expiry loop whenever a nearer deadline arrives.
type expirySchedule struct {
	mu   sync.Mutex
	heap expiryHeap
	wake chan struct{}
}

func newExpirySchedule() *expirySchedule {
	s := &expirySchedule{wake: make(chan struct{}, 1)}
	heap.Init(&s.heap)
	return s
}

// Schedule adds an offer deadline and wakes the loop.
func (s *expirySchedule) Schedule(workerID id.WorkerID, offerID id.OfferID, expiresAt time.Time) {
	s.mu.Lock()
	heap.Push(&s.heap, &expiryEntry{
		expiresAt: expiresAt,
		workerID:  workerID,
		offerID:   offerID,
	})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next returns the earliest scheduled deadline, or false when empty.
func (s *expirySchedule) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.heap) == 0 {
		return time.Time{}, false
	}
	return s.heap[0].expiresAt, true
}

// PopDue removes and returns every entry due at the given time.
func (s *expirySchedule) PopDue(now time.Time) []*expiryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*expiryEntry
	for len(s.heap) > 0 && !now.Before(s.heap[0].expiresAt) {
		due = append(due, heap.Pop(&s.heap).(*expiryEntry))
	}
	return due
}

// Len returns the number of scheduled expirations.
func (s *expirySchedule) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}
