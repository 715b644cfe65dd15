package hsm

import "math/bits"

// Event identifies a stimulus within one statechart.
type Event uint8

// EventMask holds one bit per event, bit n standing for Event(n).
type EventMask uint32

const (
	// EventInvalid is never queued or dispatched
	EventInvalid Event = 0xFF

	// MaxEvents is the number of distinct events an EventMask can hold
	MaxEvents = 32
)

// Mask returns the single-bit mask of e.
func (e Event) Mask() EventMask {
	if e >= MaxEvents {
		return 0
	}
	return EventMask(1) << e
}

// Has reports whether e is set in m.
func (m EventMask) Has(e Event) bool {
	return m&e.Mask() != 0
}

// MaskOf builds a mask from a list of events.
func MaskOf(events ...Event) EventMask {
	var m EventMask
	for _, e := range events {
		m |= e.Mask()
	}
	return m
}

// First returns the lowest event set in m, or EventInvalid if m is empty.
func (m EventMask) First() Event {
	if m == 0 {
		return EventInvalid
	}
	return Event(bits.TrailingZeros32(uint32(m)))
}

// allEvents returns the mask with the low n bits set.
func allEvents(n int) EventMask {
	if n >= MaxEvents {
		return ^EventMask(0)
	}
	return EventMask(1)<<uint(n) - 1
}
