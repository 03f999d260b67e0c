package sheetstore

import "sync/atomic"

// Stats counts store activity
type Stats struct {
	Inserts atomic.Int64
	Updates atomic.Int64
	Deletes atomic.Int64
	Fetches atomic.Int64
	Locates atomic.Int64
	Loads   atomic.Int64
	Saves   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Inserts int64
	Updates int64
	Deletes int64
	Fetches int64
	Locates int64
	Loads   int64
	Saves   int64
}

// Snapshot copies the current counters
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Inserts: s.Inserts.Load(),
		Updates: s.Updates.Load(),
		Deletes: s.Deletes.Load(),
		Fetches: s.Fetches.Load(),
		Locates: s.Locates.Load(),
		Loads:   s.Loads.Load(),
		Saves:   s.Saves.Load(),
	}
}
