package buffer

import "sync/atomic"

// Statistics tracks window activity. Always maintained so operators can see
// eviction behavior without enabling extra instrumentation.
type Statistics struct {
	writes atomic.Int64
	drops  atomic.Int64
}

// Stats is a point-in-time copy of window counters.
type Stats struct {
	Writes int64 // total appends
	Drops  int64 // appends that evicted the oldest item
}

func (s *Statistics) snapshot() Stats {
	return Stats{
		Writes: s.writes.Load(),
		Drops:  s.drops.Load(),
	}
}
