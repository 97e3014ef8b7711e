package proctor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	TagNoFace          = "no_face_detected"
	TagMultipleFaces   = "multiple_faces_detected"
	TagGazeAway        = "gaze_away"
	TagMultiplePersons = "multiple_persons_detected"
	TagHeadPoseAway    = "head_pose_away"

	DefaultMultiplePersonThreshold = 2
	DefaultHeadPoseThresholdDeg    = 15.0
)

type RuleToggles struct {
	FacePresence bool `yaml:"face_presence"`
	Gaze         bool `yaml:"gaze"`
	PersonCount  bool `yaml:"person_count"`
	Objects      bool `yaml:"objects"`
	HeadPose     bool `yaml:"head_pose"`
}

type Tags struct {
	NoFace          string `yaml:"no_face"`
	MultipleFaces   string `yaml:"multiple_faces"`
	GazeAway        string `yaml:"gaze_away"`
	MultiplePersons string `yaml:"multiple_persons"`
	HeadPoseAway    string `yaml:"head_pose_away"`
}

// Policy is the single rule table behind the violation engine. Behavior variants are expressed
// by changing it, not by forking the evaluation code.
type Policy struct {
	Name                    string                    `yaml:"name"`
	Rules                   RuleToggles               `yaml:"rules"`
	Tags                    Tags                      `yaml:"tags"`
	CategoryTags            map[ObjectCategory]string `yaml:"category_tags"`
	VerticalGazeIsViolation bool                      `yaml:"vertical_gaze_is_violation"`
	MultiplePersonThreshold int                       `yaml:"multiple_person_threshold"`
	HeadPoseThresholdDeg    float64                   `yaml:"head_pose_threshold_deg"`
	Gaze                    GazeThresholds            `yaml:"gaze_thresholds"`
	GazeWindow              int                       `yaml:"gaze_window"`
	ConfidenceThreshold     float64                   `yaml:"confidence_threshold"`
	MinAreaRatio            float64                   `yaml:"min_area_ratio"`
}

func DefaultPolicy() Policy {
	categoryTags := make(map[ObjectCategory]string, len(Categories))
	for _, cat := range Categories {
		if cat == CategoryPerson || cat == CategoryNone {
			continue
		}
		categoryTags[cat] = "object_" + string(cat)
	}

	return Policy{
		Name: "default",
		Rules: RuleToggles{
			FacePresence: true,
			Gaze:         true,
			PersonCount:  true,
			Objects:      true,
			HeadPose:     true,
		},
		Tags: Tags{
			NoFace:          TagNoFace,
			MultipleFaces:   TagMultipleFaces,
			GazeAway:        TagGazeAway,
			MultiplePersons: TagMultiplePersons,
			HeadPoseAway:    TagHeadPoseAway,
		},
		CategoryTags:            categoryTags,
		VerticalGazeIsViolation: true,
		MultiplePersonThreshold: DefaultMultiplePersonThreshold,
		HeadPoseThresholdDeg:    DefaultHeadPoseThresholdDeg,
		Gaze:                    DefaultGazeThresholds(),
		GazeWindow:              DefaultGazeWindow,
		ConfidenceThreshold:     DefaultConfidenceThreshold,
		MinAreaRatio:            DefaultMinAreaRatio,
	}
}

func (p Policy) Validate() error {
	if p.MultiplePersonThreshold < 2 {
		return fmt.Errorf("policy %s: multiple_person_threshold must be at least 2, got %d", p.Name, p.MultiplePersonThreshold)
	}
	if p.HeadPoseThresholdDeg <= 0 {
		return fmt.Errorf("policy %s: head_pose_threshold_deg must be positive", p.Name)
	}
	if p.Gaze.Left >= p.Gaze.Right {
		return fmt.Errorf("policy %s: gaze left threshold %.2f must be below right threshold %.2f", p.Name, p.Gaze.Left, p.Gaze.Right)
	}
	if p.GazeWindow < 1 {
		return fmt.Errorf("policy %s: gaze_window must be positive", p.Name)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold >= 1 {
		return fmt.Errorf("policy %s: confidence_threshold must be in [0,1)", p.Name)
	}
	if p.MinAreaRatio < 0 || p.MinAreaRatio >= 1 {
		return fmt.Errorf("policy %s: min_area_ratio must be in [0,1)", p.Name)
	}

	required := map[string]bool{
		"no_face":          p.Rules.FacePresence && p.Tags.NoFace == "",
		"multiple_faces":   p.Rules.FacePresence && p.Tags.MultipleFaces == "",
		"gaze_away":        p.Rules.Gaze && p.Tags.GazeAway == "",
		"multiple_persons": p.Rules.PersonCount && p.Tags.MultiplePersons == "",
		"head_pose_away":   p.Rules.HeadPose && p.Tags.HeadPoseAway == "",
	}
	for name, missing := range required {
		if missing {
			return fmt.Errorf("policy %s: tag %s is empty for an enabled rule", p.Name, name)
		}
	}

	if p.Rules.Objects {
		for _, cat := range Categories {
			if cat == CategoryPerson || cat == CategoryNone {
				continue
			}
			if p.CategoryTags[cat] == "" {
				return fmt.Errorf("policy %s: no violation tag for category %s", p.Name, cat)
			}
		}
	}

	return nil
}

// LoadPolicy overlays a YAML policy file on top of DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}

	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}

	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}

	return policy, nil
}
