package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/entity"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/log"
	"ProctorGolang/pkg/metrics"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"ProctorGolang/pkg/s3"
	"ProctorGolang/pkg/utils"
	websocketPkg "ProctorGolang/pkg/websocket"
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"
)

// ProcessFrame evaluates one camera frame. Frames without a session id get a throw-away gaze
// window; frames for an unknown session id start that session.
func (s *proctoringService) ProcessFrame(ctx context.Context, sessionID string, frame []byte) (proctor.Result, error) {
	started := s.now()

	info, err := s.utils.InspectFrame(frame)
	if err != nil {
		s.metrics.FramesRejected.Add(1)
		log.WithSession(ctx, sessionID).WithField("error", err.Error()).Warn("Rejected undecodable frame")
		return proctor.Result{}, fmt.Errorf("%w: %v", proctoring.ErrInvalidImage, err)
	}

	if sessionID == "" {
		signals, err := s.collect(ctx, sessionID, frame, info)
		if err != nil {
			return proctor.Result{}, err
		}
		result, _ := s.engine.Process("", signals)
		s.record(result, started)
		return result, nil
	}

	st := s.lockSession(ctx, sessionID)
	defer st.mu.Unlock()

	signals, err := s.collect(contextPkg.WithSessionID(ctx, sessionID), sessionID, frame, info)
	if err != nil {
		return proctor.Result{}, err
	}
	result, _ := s.engine.Process(sessionID, signals)

	st.framesProcessed++
	for _, tag := range result.Violations {
		st.counts[tag]++
	}
	st.total += len(result.Violations)
	st.info.LastSeenAt = s.now()

	if st.total > s.cfg.MaxViolations && st.total-len(result.Violations) <= s.cfg.MaxViolations {
		log.WithSession(ctx, sessionID).WithField("total_violations", st.total).Warn("Violation limit exceeded, exam should end")
	}

	if len(result.Violations) > 0 {
		s.storeEvidence(ctx, st, frame, info)
	}

	s.touch(ctx, st.info)
	s.record(result, started)

	return result, nil
}

// lockSession returns the locked state of a live session. A state ended concurrently is
// replaced by a fresh one.
func (s *proctoringService) lockSession(ctx context.Context, sessionID string) *sessionState {
	for {
		st := s.acquire(ctx, sessionID, entity.SessionSourceImplicit)
		st.mu.Lock()
		if !st.ended {
			return st
		}
		st.mu.Unlock()
	}
}

// collect queries every enabled perception service concurrently. A failing service contributes
// its neutral value. When the caller's own context ends first the frame is abandoned and nothing
// is recorded for it.
func (s *proctoringService) collect(ctx context.Context, sessionID string, frame []byte, info utils.Frame) (proctor.Signals, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(callCtx)

	var (
		detections []proctor.Detection
		detected   proctor.FrameSize
		faces      int
		gaze       *proctor.GazeSample
		pose       *proctor.HeadPose
	)

	failed := func(kind string, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.collaboratorFailed(ctx, sessionID, kind, err)
		return nil
	}

	g.Go(func() error {
		d, size, err := s.perception.DetectObjects(gctx, frame)
		if err != nil {
			return failed(metrics.KindObjects, err)
		}
		detections, detected = d, size
		return nil
	})

	g.Go(func() error {
		n, err := s.perception.DetectFaces(gctx, frame)
		if err != nil {
			return failed(metrics.KindFaces, err)
		}
		faces = n
		return nil
	})

	g.Go(func() error {
		sample, err := s.perception.EstimateGaze(gctx, frame)
		if err != nil {
			return failed(metrics.KindGaze, err)
		}
		gaze = sample
		return nil
	})

	if s.perception.Enabled(websocketPkg.HeadPoseEstimation) {
		g.Go(func() error {
			p, err := s.perception.EstimateHeadPose(gctx, frame)
			if err != nil {
				return failed(metrics.KindHeadPose, err)
			}
			pose = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithSession(ctx, sessionID).WithField("error", err.Error()).Warn("Frame abandoned before perception finished")
		return proctor.Signals{}, err
	}

	size := proctor.FrameSize{Width: info.Width, Height: info.Height}
	// Boxes are in the detector's coordinate space when it reports one.
	if detected.Width > 0 && detected.Height > 0 {
		size = detected
	}

	return proctor.Signals{
		Frame:      size,
		Detections: detections,
		FaceCount:  faces,
		Gaze:       gaze,
		HeadPose:   pose,
	}, nil
}

func (s *proctoringService) collaboratorFailed(ctx context.Context, sessionID, kind string, err error) {
	s.metrics.CollaboratorFailed(kind)
	log.WithSession(ctx, sessionID).WithFields(log.Fields{
		"collaborator": kind,
		"error":        err.Error(),
	}).Warn("Perception service failed, using neutral value")
}

func (s *proctoringService) record(result proctor.Result, started time.Time) {
	s.metrics.FramesProcessed.Add(1)
	s.metrics.ViolationsEmitted(result.Violations)
	s.metrics.ObserveFrame(s.now().Sub(started).Seconds())
}

func (s *proctoringService) touch(ctx context.Context, info entity.ProctorSession) {
	if s.registry == nil {
		return
	}
	err := s.registry.TouchSession(ctx, info.ID, info.LastSeenAt, s.cfg.IdleTimeout)
	if errors.Is(err, redis.ErrSessionNotFound) {
		// The key expired while the session was still streaming.
		err = s.registry.SaveSession(ctx, info, s.cfg.IdleTimeout)
	}
	if err != nil {
		log.WithSession(ctx, info.ID).WithField("error", err.Error()).Debug("Failed to refresh session in registry")
	}
}

// storeEvidence uploads the violating frame in the background. Must be called with st.mu held.
func (s *proctoringService) storeEvidence(ctx context.Context, st *sessionState, frame []byte, info utils.Frame) {
	if !s.cfg.EvidenceEnabled || s.evidence == nil {
		return
	}

	frameID, err := s.utils.NewULIDFromTimestamp(s.now())
	if err != nil {
		s.metrics.EvidenceFailed.Add(1)
		return
	}
	sessionID := st.info.ID
	key := s3.EvidenceKey(sessionID, frameID, info.Format)
	data := make([]byte, len(frame))
	copy(data, frame)
	requestID := contextPkg.GetRequestID(ctx)

	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()

		uploadCtx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), 30*time.Second)
		defer cancel()

		location, err := s.evidence.UploadEvidence(uploadCtx, key, data, info.ContentType)
		if err != nil {
			s.metrics.EvidenceFailed.Add(1)
			log.WithSession(uploadCtx, sessionID).WithField("error", err.Error()).Warn("Failed to store evidence frame")
			return
		}
		s.metrics.EvidenceStored.Add(1)

		st.mu.Lock()
		st.evidence = append(st.evidence, location)
		st.mu.Unlock()
	}()
}
