package hsm

import (
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is a serializable copy of one instance's runtime state.
type Snapshot struct {
	Chart    string  `msgpack:"chart"`
	Instance int     `msgpack:"instance"`
	State    StateID `msgpack:"state"`
	Queue    []Event `msgpack:"queue"`
	InsertAt uint8   `msgpack:"insert_at"`
	Dropped  uint64  `msgpack:"dropped"`
}

// Encode serializes the snapshot with msgpack.
func (s *Snapshot) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return b, nil
}

// DecodeSnapshot parses a snapshot produced by Snapshot.Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	return s, nil
}

// Snapshot captures the instance's current state and queue. Call it between
// dispatch rounds; a snapshot taken from inside an action records the
// declaring state of a transition in progress.
func (m *Machine) Snapshot(inst int) Snapshot {
	in := &m.instances[inst]

	in.mu.Lock()
	queue := in.queue.events()
	insertAt := in.queue.insertAt
	in.mu.Unlock()

	return Snapshot{
		Chart:    m.chart.Name,
		Instance: inst,
		State:    in.current(),
		Queue:    queue,
		InsertAt: insertAt,
		Dropped:  in.dropped.Load(),
	}
}

// Restore puts an instance into the state captured by s without running
// any action. Running timers of the instance are stopped.
func (m *Machine) Restore(inst int, s Snapshot) error {
	c := m.chart
	if s.Chart != c.Name {
		return errors.Wrapf(ErrSnapshotMismatch, "snapshot of chart %q, machine runs %q", s.Chart, c.Name)
	}
	if int(s.State) >= len(c.States) || !c.state(s.State).IsLeaf() {
		return errors.Wrapf(ErrSnapshotMismatch, "state %d is not a leaf state", s.State)
	}
	if len(s.Queue) > m.capacity {
		return errors.Wrapf(ErrSnapshotMismatch, "%d queued events exceed capacity %d", len(s.Queue), m.capacity)
	}
	if int(s.InsertAt) > len(s.Queue) {
		return errors.Wrapf(ErrSnapshotMismatch, "insertion point %d beyond %d queued events", s.InsertAt, len(s.Queue))
	}
	var seen EventMask
	for _, ev := range s.Queue {
		if int(ev) >= c.NumEvents {
			return errors.Wrapf(ErrSnapshotMismatch, "undefined event %d queued", ev)
		}
		if seen.Has(ev) {
			return errors.Wrapf(ErrSnapshotMismatch, "event %s queued twice", c.EventName(ev))
		}
		seen |= ev.Mask()
	}

	in := &m.instances[inst]
	m.stopInstanceTimers(inst)

	in.mu.Lock()
	in.queue.reset(m.capacity)
	for _, ev := range s.Queue {
		in.queue.enqueueTail(ev)
	}
	in.queue.insertAt = s.InsertAt
	in.mu.Unlock()

	in.source = StateInvalid
	in.setState(s.State)
	in.dropped.Store(s.Dropped)
	in.ready.Store(true)
	return nil
}
