package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/entity"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/log"
	"ProctorGolang/pkg/redis"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/net/context"
)

func (s *proctoringService) StartSession(ctx context.Context, req proctoring.StartSessionRequest, createdBy string) (proctoring.SessionSummary, error) {
	id, err := s.utils.NewULIDFromTimestamp(s.now())
	if err != nil {
		return proctoring.SessionSummary{}, fmt.Errorf("%w: generate session id: %v", proctoring.ErrInternalServerError, err)
	}

	st := s.register(ctx, entity.ProctorSession{
		ID:        id,
		ExamID:    req.ExamID,
		StudentID: req.StudentID,
		CreatedBy: createdBy,
		Source:    entity.SessionSourceAPI,
	})

	log.WithSession(ctx, id).WithFields(log.Fields{
		"exam_id":    req.ExamID,
		"student_id": req.StudentID,
	}).Info("Proctoring session started")

	st.mu.Lock()
	defer st.mu.Unlock()
	return s.summaryLocked(st), nil
}

// OpenStream binds a websocket stream to a session, creating one when the client did not name it.
// owned is false when the session was started elsewhere; such a session outlives the stream.
func (s *proctoringService) OpenStream(ctx context.Context, sessionID string) (id string, owned bool, err error) {
	if sessionID != "" {
		st := s.acquire(ctx, sessionID, entity.SessionSourceStream)
		st.mu.Lock()
		owned = st.info.Source == entity.SessionSourceStream
		st.mu.Unlock()
		return sessionID, owned, nil
	}

	id, err = s.utils.NewULIDFromTimestamp(s.now())
	if err != nil {
		return "", false, fmt.Errorf("%w: generate session id: %v", proctoring.ErrInternalServerError, err)
	}
	s.register(ctx, entity.ProctorSession{ID: id, Source: entity.SessionSourceStream})
	return id, true, nil
}

func (s *proctoringService) GetSession(ctx context.Context, sessionID string) (proctoring.SessionSummary, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()

	if ok {
		st.mu.Lock()
		defer st.mu.Unlock()
		summary := s.summaryLocked(st)
		summary.Evidence = s.presign(ctx, summary.Evidence)
		return summary, nil
	}

	// The session may live on another instance; only its metadata is shared.
	info, err := s.lookup(ctx, sessionID)
	if err != nil {
		return proctoring.SessionSummary{}, err
	}
	return summaryFromInfo(info), nil
}

func (s *proctoringService) EndSession(ctx context.Context, sessionID string) (proctoring.SessionSummary, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		info, err := s.lookup(ctx, sessionID)
		if err != nil {
			return proctoring.SessionSummary{}, err
		}
		s.forget(ctx, sessionID)
		return summaryFromInfo(info), nil
	}

	st.mu.Lock()
	st.ended = true
	summary := s.summaryLocked(st)
	summary.Active = false
	st.mu.Unlock()

	s.forget(ctx, sessionID)
	summary.Evidence = s.presign(ctx, summary.Evidence)

	log.WithSession(ctx, sessionID).WithFields(log.Fields{
		"frames_processed": summary.FramesProcessed,
		"total_violations": summary.TotalViolations,
		"end_exam":         summary.EndExam,
	}).Info("Proctoring session ended")

	return summary, nil
}

// SweepIdle ends every session that has not seen a frame within the idle timeout.
func (s *proctoringService) SweepIdle(ctx context.Context) []string {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	var idle []*sessionState
	for id, st := range s.sessions {
		// A session busy with a frame is not idle.
		if !st.mu.TryLock() {
			continue
		}
		if st.info.LastSeenAt.Before(cutoff) {
			st.ended = true
			idle = append(idle, st)
			delete(s.sessions, id)
		}
		st.mu.Unlock()
	}
	s.mu.Unlock()

	evicted := make([]string, 0, len(idle))
	for _, st := range idle {
		s.engine.Aggregator().EndSession(st.info.ID)
		evicted = append(evicted, st.info.ID)
	}
	// Anonymous or already-forgotten windows can only be reached by the stabilizer's own sweep.
	evicted = append(evicted, s.engine.Aggregator().SweepIdle(s.cfg.IdleTimeout)...)
	sort.Strings(evicted)

	if len(evicted) > 0 {
		log.WithRequestID(ctx).WithField("sessions", evicted).Info("Evicted idle proctoring sessions")
	}
	return evicted
}

func (s *proctoringService) RunJanitor(ctx context.Context) {
	interval := s.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(contextPkg.WithRequestID(context.Background(), "janitor"))
		}
	}
}

// acquire returns the live state for sessionID, creating it on first sight.
func (s *proctoringService) acquire(ctx context.Context, sessionID string, source entity.SessionSource) *sessionState {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		return st
	}

	info := entity.ProctorSession{ID: sessionID, Source: source}
	if known, err := s.lookup(ctx, sessionID); err == nil {
		info = known
	}
	return s.register(ctx, info)
}

// register stores a new session unless a concurrent caller got there first.
func (s *proctoringService) register(ctx context.Context, info entity.ProctorSession) *sessionState {
	now := s.now()
	if info.StartedAt.IsZero() {
		info.StartedAt = now
	}
	info.LastSeenAt = now

	s.mu.Lock()
	if st, ok := s.sessions[info.ID]; ok {
		s.mu.Unlock()
		return st
	}
	st := &sessionState{info: info, counts: make(map[string]int)}
	s.sessions[info.ID] = st
	s.mu.Unlock()

	if s.registry != nil {
		if err := s.registry.SaveSession(ctx, info, s.cfg.IdleTimeout); err != nil {
			log.WithSession(ctx, info.ID).WithField("error", err.Error()).Warn("Failed to save session in registry")
		}
	}
	return st
}

func (s *proctoringService) lookup(ctx context.Context, sessionID string) (entity.ProctorSession, error) {
	if s.registry == nil {
		return entity.ProctorSession{}, proctoring.ErrSessionNotFound
	}

	info, err := s.registry.GetSession(ctx, sessionID)
	if errors.Is(err, redis.ErrSessionNotFound) {
		return entity.ProctorSession{}, proctoring.ErrSessionNotFound
	}
	if err != nil {
		return entity.ProctorSession{}, fmt.Errorf("%w: %v", proctoring.ErrInternalServerError, err)
	}
	return info, nil
}

func (s *proctoringService) forget(ctx context.Context, sessionID string) {
	s.engine.Aggregator().EndSession(sessionID)
	if s.registry == nil {
		return
	}
	if err := s.registry.DeleteSession(ctx, sessionID); err != nil {
		log.WithSession(ctx, sessionID).WithField("error", err.Error()).Warn("Failed to delete session from registry")
	}
}

func (s *proctoringService) summaryLocked(st *sessionState) proctoring.SessionSummary {
	counts := make(map[string]int, len(st.counts))
	for tag, n := range st.counts {
		counts[tag] = n
	}
	evidence := make([]string, len(st.evidence))
	copy(evidence, st.evidence)

	summary := summaryFromInfo(st.info)
	summary.Active = !st.ended
	summary.FramesProcessed = st.framesProcessed
	summary.ViolationCounts = counts
	summary.TotalViolations = st.total
	summary.EndExam = st.total > s.cfg.MaxViolations
	summary.Evidence = evidence
	return summary
}

func summaryFromInfo(info entity.ProctorSession) proctoring.SessionSummary {
	return proctoring.SessionSummary{
		SessionID:       info.ID,
		ExamID:          info.ExamID,
		StudentID:       info.StudentID,
		Source:          info.Source.String(),
		Active:          true,
		StartedAt:       info.StartedAt,
		LastSeenAt:      info.LastSeenAt,
		ViolationCounts: map[string]int{},
		Evidence:        []string{},
	}
}

func (s *proctoringService) presign(ctx context.Context, locations []string) []string {
	if s.evidence == nil {
		return locations
	}
	out := make([]string, 0, len(locations))
	for _, loc := range locations {
		signed, err := s.evidence.PresignUrl(loc)
		if err != nil {
			log.WithRequestID(ctx).WithField("error", err.Error()).Warn("Failed to presign evidence url")
			signed = loc
		}
		out = append(out, signed)
	}
	return out
}
