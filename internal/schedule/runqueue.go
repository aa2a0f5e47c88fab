package schedule

import "sync"

// RunQueue is the FIFO of job IDs queued for immediate dispatch by the
// control plane. Enqueue never blocks; the poll loop drains a bounded slice
// at the top of each cycle.
type RunQueue struct {
	mu  sync.Mutex
	ids []int64
}

func NewRunQueue() *RunQueue { return &RunQueue{} }

// Enqueue appends an ID to the queue.
func (q *RunQueue) Enqueue(id int64) {
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
}

// Drain removes and returns up to max IDs in arrival order.
func (q *RunQueue) Drain(max int) []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return nil
	}
	n := len(q.ids)
	if max > 0 && n > max {
		n = max
	}
	out := make([]int64, n)
	copy(out, q.ids[:n])
	q.ids = q.ids[n:]
	return out
}

// Len reports the number of queued IDs.
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Inflight tracks job IDs currently being dispatched so a slow send never
// overlaps with the next poll cycle of the same job.
type Inflight struct {
	mu  sync.Mutex
	ids map[int64]bool
}

func NewInflight() *Inflight {
	return &Inflight{ids: make(map[int64]bool)}
}

// TryAcquire marks an ID inflight, returning false when it already is.
func (f *Inflight) TryAcquire(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids[id] {
		return false
	}
	f.ids[id] = true
	return true
}

// Release clears an ID.
func (f *Inflight) Release(id int64) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}
