package proctor

import (
	"image"
	"sync"
	"time"
)

// Session holds the mutable state of one monitored connection. Frames of a
// session are processed one at a time; snapshots may be taken concurrently.
type Session struct {
	frameMu sync.Mutex

	mu             sync.RWMutex
	counts         ViolationCounts
	totalFrames    int
	startedAt      time.Time
	lastFaceCenter *image.Point
}

type SessionSnapshot struct {
	ViolationCounts ViolationCounts `json:"violations_breakdown"`
	TotalFrames     int             `json:"total_frames"`
	TotalViolations int             `json:"total_violations"`
	ViolationRate   float64         `json:"total_violation_rate"`
	StartedAt       time.Time       `json:"started_at"`
	LastFaceCenter  *image.Point    `json:"last_face_center,omitempty"`
}

func newSession(startedAt time.Time) *Session {
	return &Session{
		counts:    newViolationCounts(),
		startedAt: startedAt,
	}
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := SessionSnapshot{
		ViolationCounts: s.counts.Clone(),
		TotalFrames:     s.totalFrames,
		TotalViolations: s.counts.Total(),
		StartedAt:       s.startedAt,
	}
	snap.ViolationRate = violationRate(snap.TotalViolations, snap.TotalFrames)
	if s.lastFaceCenter != nil {
		c := *s.lastFaceCenter
		snap.LastFaceCenter = &c
	}
	return snap
}

// pending is the state a frame would leave behind; it is only applied once the
// whole frame pipeline has succeeded.
type pending struct {
	counts      ViolationCounts
	totalFrames int
	center      *image.Point
}

func (s *Session) prepare(increments map[ViolationKind]int, center *image.Point) pending {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := pending{
		counts:      s.counts.Clone(),
		totalFrames: s.totalFrames + 1,
		center:      center,
	}
	for kind, n := range increments {
		next.counts[kind] += n
	}
	return next
}

func (s *Session) commit(p pending) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts = p.counts
	s.totalFrames = p.totalFrames
	if p.center != nil {
		c := *p.center
		s.lastFaceCenter = &c
	}
}

func (s *Session) lastCenter() (image.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastFaceCenter == nil {
		return image.Point{}, false
	}
	return *s.lastFaceCenter, true
}

func violationRate(totalViolations, totalFrames int) float64 {
	if totalFrames == 0 {
		return 0
	}
	return round(float64(totalViolations)/float64(totalFrames)*100, 2)
}
