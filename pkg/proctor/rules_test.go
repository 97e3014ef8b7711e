package proctor

import (
	"reflect"
	"testing"
)

func TestEvaluateScenarios(t *testing.T) {
	engine := NewRuleEngine(DefaultPolicy())

	tests := []struct {
		name string
		obs  FrameObservation
		want ViolationSet
	}{
		{
			name: "clean frame",
			obs:  FrameObservation{PersonCount: 1, FaceCount: 1, Gaze: GazeCenter},
			want: ViolationSet{},
		},
		{
			name: "second person with a phone",
			obs: FrameObservation{
				PersonCount: 2,
				FaceCount:   1,
				Gaze:        GazeCenter,
				Categories:  []ObjectCategory{CategoryCellPhone},
			},
			want: ViolationSet{TagMultiplePersons, "object_cell_phone"},
		},
		{
			name: "no face still reports objects",
			obs: FrameObservation{
				FaceCount:  0,
				Gaze:       GazeLeft,
				Categories: []ObjectCategory{CategoryBook, CategorySuspicious},
			},
			want: ViolationSet{TagNoFace, "object_book", "object_suspicious"},
		},
		{
			name: "multiple faces suppress gaze",
			obs:  FrameObservation{PersonCount: 1, FaceCount: 2, Gaze: GazeRight},
			want: ViolationSet{TagMultipleFaces},
		},
		{
			name: "gaze away with one face",
			obs:  FrameObservation{PersonCount: 1, FaceCount: 1, Gaze: GazeLeft},
			want: ViolationSet{TagGazeAway},
		},
		{
			name: "vertical gaze counts by default",
			obs:  FrameObservation{PersonCount: 1, FaceCount: 1, Gaze: GazeDown},
			want: ViolationSet{TagGazeAway},
		},
		{
			name: "duplicate categories collapse in first-seen order",
			obs: FrameObservation{
				FaceCount:  1,
				Gaze:       GazeCenter,
				Categories: []ObjectCategory{CategoryCellPhone, CategoryBook, CategoryCellPhone, CategoryBook},
			},
			want: ViolationSet{"object_cell_phone", "object_book"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Evaluate(tt.obs)
			if got == nil {
				t.Fatal("Evaluate() returned nil, want empty set")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateFaceCountExcludesGaze(t *testing.T) {
	engine := NewRuleEngine(DefaultPolicy())
	gazes := []GazeLabel{GazeLeft, GazeRight, GazeUp, GazeDown, GazeCenter}

	for _, faces := range []int{0, 2, 3, 7} {
		for _, gaze := range gazes {
			got := engine.Evaluate(FrameObservation{FaceCount: faces, Gaze: gaze})
			if got.Contains(TagGazeAway) {
				t.Errorf("faces=%d gaze=%s: unexpected gaze_away in %v", faces, gaze, got)
			}
			want := TagMultipleFaces
			if faces == 0 {
				want = TagNoFace
			}
			if len(got) == 0 || got[0] != want {
				t.Errorf("faces=%d gaze=%s: got %v, want leading %s", faces, gaze, got, want)
			}
		}
	}
}

func TestEvaluateIsPure(t *testing.T) {
	engine := NewRuleEngine(DefaultPolicy())
	obs := FrameObservation{
		PersonCount: 3,
		FaceCount:   1,
		Gaze:        GazeRight,
		Categories:  []ObjectCategory{CategoryLaptop, CategoryWatch, CategoryLaptop},
		HeadPose:    &HeadPose{Pitch: 2, Yaw: 30},
	}

	first := engine.Evaluate(obs)
	second := engine.Evaluate(obs)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Evaluate() not deterministic: %v vs %v", first, second)
	}

	want := ViolationSet{TagGazeAway, TagMultiplePersons, "object_laptop", "object_watch", TagHeadPoseAway}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("Evaluate() = %v, want %v", first, want)
	}
}

func TestEvaluateHeadPoseNeedsCorroboration(t *testing.T) {
	engine := NewRuleEngine(DefaultPolicy())

	tests := []struct {
		name    string
		obs     FrameObservation
		flagged bool
	}{
		{
			name:    "object plus turned head",
			obs:     FrameObservation{FaceCount: 1, Gaze: GazeCenter, Categories: []ObjectCategory{CategoryBook}, HeadPose: &HeadPose{Yaw: -20}},
			flagged: true,
		},
		{
			name:    "pitch alone over threshold with object",
			obs:     FrameObservation{FaceCount: 1, Gaze: GazeCenter, Categories: []ObjectCategory{CategoryBook}, HeadPose: &HeadPose{Pitch: 16}},
			flagged: true,
		},
		{
			name:    "gaze only is not corroboration",
			obs:     FrameObservation{FaceCount: 1, Gaze: GazeLeft, HeadPose: &HeadPose{Yaw: 40}},
			flagged: false,
		},
		{
			name:    "within threshold",
			obs:     FrameObservation{FaceCount: 1, Gaze: GazeCenter, Categories: []ObjectCategory{CategoryBook}, HeadPose: &HeadPose{Yaw: 15, Pitch: -15}},
			flagged: false,
		},
		{
			name:    "no head pose supplied",
			obs:     FrameObservation{FaceCount: 1, Gaze: GazeCenter, Categories: []ObjectCategory{CategoryBook}},
			flagged: false,
		},
		{
			name:    "two faces",
			obs:     FrameObservation{FaceCount: 2, PersonCount: 2, Gaze: GazeCenter, HeadPose: &HeadPose{Yaw: 40}},
			flagged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Evaluate(tt.obs)
			if got.Contains(TagHeadPoseAway) != tt.flagged {
				t.Errorf("Evaluate() = %v, head_pose_away expected=%v", got, tt.flagged)
			}
		})
	}
}

func TestEvaluatePolicyVariants(t *testing.T) {
	policy := DefaultPolicy()
	policy.VerticalGazeIsViolation = false
	policy.Rules.Objects = false
	policy.MultiplePersonThreshold = 3
	policy.Tags.GazeAway = "ml_gaze_away"
	engine := NewRuleEngine(policy)

	got := engine.Evaluate(FrameObservation{
		PersonCount: 2,
		FaceCount:   1,
		Gaze:        GazeUp,
		Categories:  []ObjectCategory{CategoryCellPhone},
	})
	if len(got) != 0 {
		t.Fatalf("Evaluate() = %v, want empty", got)
	}

	got = engine.Evaluate(FrameObservation{PersonCount: 3, FaceCount: 1, Gaze: GazeLeft})
	want := ViolationSet{"ml_gaze_away", TagMultiplePersons}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Evaluate() = %v, want %v", got, want)
	}
}
