package proctor

import "math"

// RuleEngine evaluates a FrameObservation against a Policy. It holds no state of its own, so
// the same observation always yields the same ViolationSet.
type RuleEngine struct {
	policy Policy
}

func NewRuleEngine(policy Policy) *RuleEngine {
	return &RuleEngine{policy: policy}
}

func (e *RuleEngine) Policy() Policy {
	return e.policy
}

// Evaluate applies, in order: face presence, gaze, person count, object categories and the
// corroborated head pose rule. Tags never repeat.
func (e *RuleEngine) Evaluate(obs FrameObservation) ViolationSet {
	p := e.policy
	set := violationBuilder{out: make(ViolationSet, 0, 4), seen: make(map[string]bool)}

	if p.Rules.FacePresence {
		switch {
		case obs.FaceCount == 0:
			set.add(p.Tags.NoFace)
		case obs.FaceCount > 1:
			set.add(p.Tags.MultipleFaces)
		}
	}

	// Gaze is unreliable unless exactly one face is in view.
	if p.Rules.Gaze && obs.FaceCount == 1 {
		if obs.Gaze.Horizontal() || (p.VerticalGazeIsViolation && obs.Gaze.Vertical()) {
			set.add(p.Tags.GazeAway)
		}
	}

	if p.Rules.PersonCount && obs.PersonCount >= p.MultiplePersonThreshold {
		set.add(p.Tags.MultiplePersons)
	}

	if p.Rules.Objects {
		for _, cat := range obs.Categories {
			if cat == CategoryPerson || cat == CategoryNone {
				continue
			}
			set.add(p.CategoryTags[cat])
		}
	}

	if p.Rules.HeadPose && obs.HeadPose != nil && obs.FaceCount == 1 && e.corroborated(set.out) {
		if math.Abs(obs.HeadPose.Pitch) > p.HeadPoseThresholdDeg || math.Abs(obs.HeadPose.Yaw) > p.HeadPoseThresholdDeg {
			set.add(p.Tags.HeadPoseAway)
		}
	}

	return set.out
}

// corroborated reports whether a violation other than gaze or face count is already present.
func (e *RuleEngine) corroborated(found ViolationSet) bool {
	for _, tag := range found {
		switch tag {
		case e.policy.Tags.GazeAway, e.policy.Tags.NoFace, e.policy.Tags.MultipleFaces:
			continue
		default:
			return true
		}
	}
	return false
}

type violationBuilder struct {
	out  ViolationSet
	seen map[string]bool
}

func (b *violationBuilder) add(tag string) {
	if tag == "" || b.seen[tag] {
		return
	}
	b.seen[tag] = true
	b.out = append(b.out, tag)
}
