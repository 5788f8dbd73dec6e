package gateway

import "container/heap"

// eventHeap is a min-heap of events ordered by sn, used so eventBuffer can
// release them in order regardless of arrival order.
type eventHeap []Event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].SN < h[j].SN }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// eventBuffer reorders and de-duplicates events arriving with a possibly
// out-of-order or repeated sn, so they can be released to subscribers
// strictly in sn order with no gaps skipped twice.
type eventBuffer struct {
	seen map[uint64]struct{}
	heap eventHeap
}

func newEventBuffer() *eventBuffer {
	return &eventBuffer{
		seen: make(map[uint64]struct{}),
		heap: eventHeap{},
	}
}

// put stores an event unless it is at or behind the last released sn, or is
// a duplicate already seen.
func (b *eventBuffer) put(lastSN uint64, e Event) {
	if e.SN <= lastSN {
		return
	}
	if _, dup := b.seen[e.SN]; dup {
		return
	}
	b.seen[e.SN] = struct{}{}
	heap.Push(&b.heap, e)
}

// drain releases every buffered event whose sn is exactly one greater than
// the running sn, in order, advancing sn as it goes. It stops at the first
// gap. The returned sn is the new running sn after releasing whatever was
// contiguous.
func (b *eventBuffer) drain(sn uint64) ([]Event, uint64) {
	var out []Event
	for b.heap.Len() > 0 && b.heap[0].SN == sn+1 {
		e := heap.Pop(&b.heap).(Event)
		delete(b.seen, e.SN)
		out = append(out, e)
		sn = e.SN
	}
	return out, sn
}

func (b *eventBuffer) len() int {
	return b.heap.Len()
}
