package proctor

type DetectedObject struct {
	Class      string    `json:"class"`
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// Result is the externally visible record for one processed frame.
type Result struct {
	Violations      []string         `json:"violations"`
	DetectedObjects []DetectedObject `json:"detected_objects"`
	PersonCount     int              `json:"person_count"`
	FaceCount       int              `json:"face_count"`
	Gaze            string           `json:"gaze"`
}

func Assemble(obs FrameObservation, violations ViolationSet, detections []ClassifiedDetection) Result {
	objects := make([]DetectedObject, 0, len(detections))
	for _, d := range detections {
		objects = append(objects, DetectedObject{
			Class:      d.Label,
			Category:   string(d.Category),
			Confidence: d.Confidence,
			BBox:       d.BBox.Slice(),
		})
	}

	tags := make([]string, len(violations))
	copy(tags, violations)

	return Result{
		Violations:      tags,
		DetectedObjects: objects,
		PersonCount:     obs.PersonCount,
		FaceCount:       obs.FaceCount,
		Gaze:            string(obs.Gaze),
	}
}
