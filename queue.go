package hsm

// eventQueue is the per-instance event buffer. Entries keep arrival order,
// except that events emitted to self are spliced in at insertAt. Every
// method must be called with the owning instance's lock held.
type eventQueue struct {
	entries  [MaxEvents]Event
	capacity uint8
	fill     uint8
	insertAt uint8
	pending  [MaxEvents]uint8
}

func (q *eventQueue) reset(capacity int) {
	q.capacity = uint8(capacity)
	q.fill = 0
	q.insertAt = 0
	q.pending = [MaxEvents]uint8{}
}

func (q *eventQueue) isPending(e Event) bool {
	return q.pending[e] != 0
}

// enqueueTail appends e unless it is already queued. It reports false only
// when e had to be dropped because the queue is full.
func (q *eventQueue) enqueueTail(e Event) bool {
	if q.isPending(e) {
		return true
	}
	if q.fill >= q.capacity {
		return false
	}
	q.entries[q.fill] = e
	q.fill++
	q.pending[e]++
	return true
}

// enqueueAtInsertionPoint splices e in at insertAt and moves the insertion
// point behind it, so consecutive self emits keep their relative order.
func (q *eventQueue) enqueueAtInsertionPoint(e Event) bool {
	if q.isPending(e) {
		return true
	}
	if q.fill >= q.capacity {
		return false
	}
	copy(q.entries[q.insertAt+1:q.fill+1], q.entries[q.insertAt:q.fill])
	q.entries[q.insertAt] = e
	q.fill++
	q.insertAt++
	q.pending[e]++
	return true
}

// removeAt deletes entry i.
func (q *eventQueue) removeAt(i uint8) {
	q.pending[q.entries[i]]--
	copy(q.entries[i:q.fill-1], q.entries[i+1:q.fill])
	q.fill--
	if i < q.insertAt {
		// a self-emitted entry ahead of the insertion point was consumed
		q.insertAt--
	}
}

// events returns a copy of the queued entries in order.
func (q *eventQueue) events() []Event {
	out := make([]Event, q.fill)
	copy(out, q.entries[:q.fill])
	return out
}
