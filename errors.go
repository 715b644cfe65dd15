package hsm

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidChart is wrapped by every descriptor validation failure
	ErrInvalidChart = errors.New("invalid statechart")
	// ErrInstanceRange is returned for an instance count the engine can't index
	ErrInstanceRange = errors.New("instance count out of range")
	// ErrSnapshotMismatch is returned when a snapshot doesn't fit the chart
	ErrSnapshotMismatch = errors.New("snapshot does not match statechart")
	// ErrQueueOverflow marks the strict-mode panic on a full event queue
	ErrQueueOverflow = errors.New("event queue overflow")
)

func chartErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidChart)
}
