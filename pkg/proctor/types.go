package proctor

import "math"

type ObjectCategory string

const (
	CategoryPerson      ObjectCategory = "person"
	CategoryCellPhone   ObjectCategory = "cell_phone"
	CategoryBook        ObjectCategory = "book"
	CategoryLaptop      ObjectCategory = "laptop"
	CategoryRemote      ObjectCategory = "remote"
	CategoryKeyboard    ObjectCategory = "keyboard"
	CategoryMouse       ObjectCategory = "mouse"
	CategoryBottle      ObjectCategory = "bottle"
	CategoryScreen      ObjectCategory = "screen"
	CategoryWritingTool ObjectCategory = "writing_tool"
	CategoryPaper       ObjectCategory = "paper"
	CategoryBag         ObjectCategory = "bag"
	CategoryHeadphones  ObjectCategory = "headphones"
	CategoryWatch       ObjectCategory = "watch"
	CategoryGlasses     ObjectCategory = "glasses"
	CategorySuspicious  ObjectCategory = "suspicious"
	CategoryNone        ObjectCategory = "none"
)

var Categories = []ObjectCategory{
	CategoryPerson,
	CategoryCellPhone,
	CategoryBook,
	CategoryLaptop,
	CategoryRemote,
	CategoryKeyboard,
	CategoryMouse,
	CategoryBottle,
	CategoryScreen,
	CategoryWritingTool,
	CategoryPaper,
	CategoryBag,
	CategoryHeadphones,
	CategoryWatch,
	CategoryGlasses,
	CategorySuspicious,
	CategoryNone,
}

func (c ObjectCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type GazeLabel string

const (
	GazeLeft   GazeLabel = "left"
	GazeCenter GazeLabel = "center"
	GazeRight  GazeLabel = "right"
	GazeUp     GazeLabel = "up"
	GazeDown   GazeLabel = "down"
)

func (g GazeLabel) Valid() bool {
	switch g {
	case GazeLeft, GazeCenter, GazeRight, GazeUp, GazeDown:
		return true
	default:
		return false
	}
}

func (g GazeLabel) Horizontal() bool {
	return g == GazeLeft || g == GazeRight
}

func (g GazeLabel) Vertical() bool {
	return g == GazeUp || g == GazeDown
}

// BBox is an axis-aligned box in frame pixel coordinates.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BBox) Area() float64 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

func (b BBox) Slice() []float64 {
	return []float64{b.X1, b.Y1, b.X2, b.Y2}
}

func (b BBox) finite() bool {
	for _, v := range b.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type FrameSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (f FrameSize) Area() float64 {
	return float64(f.Width) * float64(f.Height)
}

// Detection is one object reported by the object detector for a single frame.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Malformed reports why a detection can not be classified, or "" when it is well formed.
func (d Detection) Malformed() string {
	switch {
	case d.Label == "":
		return "empty label"
	case math.IsNaN(d.Confidence) || math.IsInf(d.Confidence, 0):
		return "non-finite confidence"
	case !d.BBox.finite():
		return "non-finite bbox"
	case d.BBox.X2 < d.BBox.X1 || d.BBox.Y2 < d.BBox.Y1:
		return "inverted bbox"
	default:
		return ""
	}
}

type ClassifiedDetection struct {
	Detection
	Category ObjectCategory `json:"category"`
}

type GazeSample struct {
	Label GazeLabel `json:"label"`
	Ratio *float64  `json:"ratio,omitempty"`
}

type HeadPose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Signals carries everything the external collaborators produced for one frame.
// A nil Gaze means no face/landmarks were found; a nil HeadPose disables the head pose rule.
type Signals struct {
	Frame      FrameSize
	Detections []Detection
	FaceCount  int
	Gaze       *GazeSample
	HeadPose   *HeadPose
}

// FrameObservation is the fused per-frame summary handed to the rule engine.
// PersonCount comes from the object detector and FaceCount from the face detector.
type FrameObservation struct {
	PersonCount int
	FaceCount   int
	Categories  []ObjectCategory
	Gaze        GazeLabel
	GazeRatio   *float64
	HeadPose    *HeadPose
}

type ViolationSet []string

func (v ViolationSet) Contains(tag string) bool {
	for _, t := range v {
		if t == tag {
			return true
		}
	}
	return false
}
