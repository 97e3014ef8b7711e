package proctor

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultGazeLeftThreshold  = 0.35
	DefaultGazeRightThreshold = 0.65
)

type GazeThresholds struct {
	Left  float64 `yaml:"left"`
	Right float64 `yaml:"right"`
}

func DefaultGazeThresholds() GazeThresholds {
	return GazeThresholds{Left: DefaultGazeLeftThreshold, Right: DefaultGazeRightThreshold}
}

// HorizontalGaze maps a normalized iris ratio (0.5 = eye center) to a direction.
func (t GazeThresholds) HorizontalGaze(ratio float64) GazeLabel {
	switch {
	case ratio < t.Left:
		return GazeLeft
	case ratio > t.Right:
		return GazeRight
	default:
		return GazeCenter
	}
}

// EyeLandmarks holds the horizontal landmark positions of one eye in normalized image units.
// Corners are named by image side, not anatomy: LeftCornerX is the corner with the smaller x
// for both eyes, so a centred iris reads 0.5 on each.
type EyeLandmarks struct {
	IrisX        float64 `json:"iris_x"`
	LeftCornerX  float64 `json:"left_corner_x"`
	RightCornerX float64 `json:"right_corner_x"`
}

func (e EyeLandmarks) ratio() (float64, bool) {
	width := math.Abs(e.RightCornerX - e.LeftCornerX)
	if width == 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return 0, false
	}
	return (e.IrisX - e.LeftCornerX) / width, true
}

// IrisRatio averages the normalized iris offset of both eyes.
func IrisRatio(left, right EyeLandmarks) (float64, bool) {
	l, ok := left.ratio()
	if !ok {
		return 0, false
	}
	r, ok := right.ratio()
	if !ok {
		return 0, false
	}
	return (l + r) / 2, true
}

// RawGaze resolves the unsmoothed label for one frame. A missing sample means no face was
// found and counts as center.
func (t GazeThresholds) RawGaze(sample *GazeSample) GazeLabel {
	if sample == nil {
		return GazeCenter
	}
	if sample.Label.Vertical() {
		return sample.Label
	}
	if sample.Ratio != nil && !math.IsNaN(*sample.Ratio) {
		return t.HorizontalGaze(*sample.Ratio)
	}
	if sample.Label.Valid() {
		return sample.Label
	}
	return GazeCenter
}

type gazeSession struct {
	mu       sync.Mutex
	history  *GazeHistory
	lastSeen time.Time
}

// GazeStabilizer keeps one smoothing window per tracking session and returns the majority
// label over it. Windows are never shared between sessions.
type GazeStabilizer struct {
	mu       sync.Mutex
	window   int
	sessions map[string]*gazeSession
	now      func() time.Time
}

func NewGazeStabilizer(window int) *GazeStabilizer {
	if window < 1 {
		window = DefaultGazeWindow
	}
	return &GazeStabilizer{
		window:   window,
		sessions: make(map[string]*gazeSession),
		now:      time.Now,
	}
}

// Stabilize appends raw to the session window and returns the smoothed label. An empty
// session id gets a throw-away window, so the raw label is returned unchanged.
func (s *GazeStabilizer) Stabilize(sessionID string, raw GazeLabel) GazeLabel {
	if !raw.Valid() {
		raw = GazeCenter
	}

	if sessionID == "" {
		return raw
	}

	session := s.session(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()

	session.history.Push(raw)
	session.lastSeen = s.now()
	return session.history.Mode()
}

func (s *GazeStabilizer) session(sessionID string) *gazeSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = &gazeSession{
			history:  NewGazeHistory(s.window),
			lastSeen: s.now(),
		}
		s.sessions[sessionID] = session
	}
	return session
}

// Window returns a copy of the session's window, oldest first.
func (s *GazeStabilizer) Window(sessionID string) []GazeLabel {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	return session.history.Labels()
}

func (s *GazeStabilizer) End(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}

func (s *GazeStabilizer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SweepIdle evicts sessions that have not seen a frame for longer than idle.
func (s *GazeStabilizer) SweepIdle(idle time.Duration) []string {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, session := range s.sessions {
		session.mu.Lock()
		stale := session.lastSeen.Before(cutoff)
		session.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
