package proctor

const (
	DefaultConfidenceThreshold = 0.5
	DefaultMinAreaRatio        = 0.01
)

// ObjectClassifier turns raw detector output into categories. It discards low-confidence
// detections and boxes too small to be a plausible cheating artifact.
type ObjectClassifier struct {
	table               LabelTable
	confidenceThreshold float64
	minAreaRatio        float64
}

func NewObjectClassifier(table LabelTable, confidenceThreshold, minAreaRatio float64) *ObjectClassifier {
	return &ObjectClassifier{
		table:               table,
		confidenceThreshold: confidenceThreshold,
		minAreaRatio:        minAreaRatio,
	}
}

func (c *ObjectClassifier) Classify(label string) ObjectCategory {
	return c.table.Lookup(label)
}

// Accept applies the confidence and area filters. Both comparisons are strict.
func (c *ObjectClassifier) Accept(d Detection, frame FrameSize) bool {
	if d.Confidence <= c.confidenceThreshold {
		return false
	}
	return d.BBox.Area() > c.minAreaRatio*frame.Area()
}

func (c *ObjectClassifier) Table() LabelTable {
	return c.table
}
