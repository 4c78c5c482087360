package netsync

import "errors"

var (
	// ErrFramingDesync means a reader consumed a different number of bits than
	// the writer produced. The frame is discarded and treated as lost.
	ErrFramingDesync = errors.New("netsync: framing desynchronization")

	// ErrInvalidPriority is returned for a sync component priority outside
	// [0, PriorityBuckets).
	ErrInvalidPriority = errors.New("netsync: invalid priority")
)
