package monitor

import (
	"sync/atomic"
	"time"
)

// Stats are the live counters a running loop publishes. The loop is the
// only writer; readers may snapshot at any time. A nil *Stats is ignored.
type Stats struct {
	frames      atomic.Uint64
	consecutive atomic.Int64
	confirmed   atomic.Bool
	alertActive atomic.Bool
	lastAlert   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Frames                uint64
	ConsecutiveFallFrames int
	FallConfirmed         bool
	AlertActive           bool
	LastAlert             time.Time
}

func (s *Stats) reset() {
	if s == nil {
		return
	}
	s.frames.Store(0)
	s.consecutive.Store(0)
	s.confirmed.Store(false)
	s.alertActive.Store(false)
}

func (s *Stats) observe(consecutive int, confirmed, alertActive bool) {
	if s == nil {
		return
	}
	s.frames.Add(1)
	s.consecutive.Store(int64(consecutive))
	s.confirmed.Store(confirmed)
	s.alertActive.Store(alertActive)
}

func (s *Stats) alertFired(at time.Time) {
	if s == nil {
		return
	}
	s.lastAlert.Store(at.UnixNano())
}

// Snapshot returns the current values.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	snap := StatsSnapshot{
		Frames:                s.frames.Load(),
		ConsecutiveFallFrames: int(s.consecutive.Load()),
		FallConfirmed:         s.confirmed.Load(),
		AlertActive:           s.alertActive.Load(),
	}
	if ns := s.lastAlert.Load(); ns != 0 {
		snap.LastAlert = time.Unix(0, ns)
	}
	return snap
}
