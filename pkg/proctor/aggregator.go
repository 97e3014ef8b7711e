package proctor

import (
	"time"

	"github.com/sirupsen/logrus"
)

// SignalAggregator fuses the collaborator outputs for one frame into a FrameObservation. It owns
// the per-session gaze windows.
type SignalAggregator struct {
	classifier  *ObjectClassifier
	stabilizer  *GazeStabilizer
	thresholds  GazeThresholds
	log         *logrus.Logger
	onMalformed func(reason string)
}

func NewSignalAggregator(
	classifier *ObjectClassifier,
	stabilizer *GazeStabilizer,
	thresholds GazeThresholds,
	log *logrus.Logger,
) *SignalAggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SignalAggregator{
		classifier: classifier,
		stabilizer: stabilizer,
		thresholds: thresholds,
		log:        log,
	}
}

// OnMalformed registers a callback invoked for every skipped malformed detection.
func (a *SignalAggregator) OnMalformed(fn func(reason string)) {
	a.onMalformed = fn
}

func (a *SignalAggregator) Aggregate(sessionID string, s Signals) (FrameObservation, []ClassifiedDetection) {
	obs := FrameObservation{
		Categories: make([]ObjectCategory, 0, len(s.Detections)),
	}
	accepted := make([]ClassifiedDetection, 0, len(s.Detections))

	for _, d := range s.Detections {
		if reason := d.Malformed(); reason != "" {
			a.log.WithFields(logrus.Fields{
				"session_id": sessionID,
				"label":      d.Label,
				"reason":     reason,
			}).Warn("Skipping malformed detection")
			if a.onMalformed != nil {
				a.onMalformed(reason)
			}
			continue
		}

		if !a.classifier.Accept(d, s.Frame) {
			continue
		}

		cat := a.classifier.Classify(d.Label)
		if cat == CategoryNone {
			continue
		}

		accepted = append(accepted, ClassifiedDetection{Detection: d, Category: cat})
		if cat == CategoryPerson {
			obs.PersonCount++
			continue
		}
		obs.Categories = append(obs.Categories, cat)
	}

	obs.FaceCount = s.FaceCount
	if obs.FaceCount < 0 {
		a.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"face_count": s.FaceCount,
		}).Warn("Negative face count from face detector, treating as zero")
		obs.FaceCount = 0
	}

	raw := a.thresholds.RawGaze(s.Gaze)
	obs.Gaze = a.stabilizer.Stabilize(sessionID, raw)
	if s.Gaze != nil && s.Gaze.Ratio != nil {
		ratio := *s.Gaze.Ratio
		obs.GazeRatio = &ratio
	}

	if s.HeadPose != nil {
		pose := *s.HeadPose
		obs.HeadPose = &pose
	}

	return obs, accepted
}

func (a *SignalAggregator) EndSession(sessionID string) bool {
	return a.stabilizer.End(sessionID)
}

func (a *SignalAggregator) SweepIdle(idle time.Duration) []string {
	return a.stabilizer.SweepIdle(idle)
}

func (a *SignalAggregator) ActiveSessions() int {
	return a.stabilizer.Sessions()
}
