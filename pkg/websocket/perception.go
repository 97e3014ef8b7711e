package websocketPkg

import (
	"ProctorGolang/pkg/proctor"
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

type ObjectDetector interface {
	DetectObjects(ctx context.Context, frame []byte) ([]proctor.Detection, proctor.FrameSize, error)
}

type FaceDetector interface {
	DetectFaces(ctx context.Context, frame []byte) (int, error)
}

// GazeEstimator returns nil when no face or eyes were found.
type GazeEstimator interface {
	EstimateGaze(ctx context.Context, frame []byte) (*proctor.GazeSample, error)
}

// HeadPoseEstimator returns nil when no pose could be computed.
type HeadPoseEstimator interface {
	EstimateHeadPose(ctx context.Context, frame []byte) (*proctor.HeadPose, error)
}

type wireDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

type objectReply struct {
	Detections  []wireDetection `json:"detections"`
	FrameWidth  int             `json:"frame_width"`
	FrameHeight int             `json:"frame_height"`
	Error       string          `json:"error,omitempty"`
}

type faceReply struct {
	FaceCount int    `json:"face_count"`
	Error     string `json:"error,omitempty"`
}

// gazeReply carries either a ratio or eye landmarks. Landmark corners follow image x order
// (left_corner_x < right_corner_x for both eyes), not the anatomical inner and outer corners.
type gazeReply struct {
	Found    bool                  `json:"found"`
	Label    string                `json:"label,omitempty"`
	Ratio    *float64              `json:"ratio,omitempty"`
	LeftEye  *proctor.EyeLandmarks `json:"left_eye,omitempty"`
	RightEye *proctor.EyeLandmarks `json:"right_eye,omitempty"`
	Error    string                `json:"error,omitempty"`
}

type headPoseReply struct {
	Found bool    `json:"found"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
	Error string  `json:"error,omitempty"`
}

var errMalformedReply = errors.New("malformed reply")

func (c *webSocketClient) DetectObjects(ctx context.Context, frame []byte) ([]proctor.Detection, proctor.FrameSize, error) {
	message, err := c.roundTrip(ctx, ObjectDetection, frame)
	if err != nil {
		return nil, proctor.FrameSize{}, err
	}

	var reply objectReply
	if err := jsoniter.Unmarshal(message, &reply); err != nil {
		return nil, proctor.FrameSize{}, fmt.Errorf("%s: %w: %v", ObjectDetection.Name(), errMalformedReply, err)
	}
	if reply.Error != "" {
		return nil, proctor.FrameSize{}, fmt.Errorf("%s: %s", ObjectDetection.Name(), reply.Error)
	}

	detections, skipped := reply.detections()
	if skipped > 0 {
		c.log.WithField("skipped", skipped).Warn("Object detector returned boxes without four coordinates")
	}

	return detections, proctor.FrameSize{Width: reply.FrameWidth, Height: reply.FrameHeight}, nil
}

func (r objectReply) detections() ([]proctor.Detection, int) {
	out := make([]proctor.Detection, 0, len(r.Detections))
	skipped := 0
	for _, d := range r.Detections {
		if len(d.BBox) != 4 {
			skipped++
			continue
		}
		out = append(out, proctor.Detection{
			Label:      d.Label,
			Confidence: d.Confidence,
			BBox:       proctor.BBox{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]},
		})
	}
	return out, skipped
}

func (c *webSocketClient) DetectFaces(ctx context.Context, frame []byte) (int, error) {
	message, err := c.roundTrip(ctx, FaceDetection, frame)
	if err != nil {
		return 0, err
	}

	var reply faceReply
	if err := jsoniter.Unmarshal(message, &reply); err != nil {
		return 0, fmt.Errorf("%s: %w: %v", FaceDetection.Name(), errMalformedReply, err)
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("%s: %s", FaceDetection.Name(), reply.Error)
	}

	return reply.FaceCount, nil
}

func (c *webSocketClient) EstimateGaze(ctx context.Context, frame []byte) (*proctor.GazeSample, error) {
	message, err := c.roundTrip(ctx, GazeEstimation, frame)
	if err != nil {
		return nil, err
	}

	var reply gazeReply
	if err := jsoniter.Unmarshal(message, &reply); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", GazeEstimation.Name(), errMalformedReply, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%s: %s", GazeEstimation.Name(), reply.Error)
	}

	return reply.sample(), nil
}

// sample prefers an explicit ratio, then derives one from eye landmarks.
func (r gazeReply) sample() *proctor.GazeSample {
	if !r.Found {
		return nil
	}

	s := &proctor.GazeSample{Label: proctor.GazeLabel(r.Label)}
	switch {
	case r.Ratio != nil:
		ratio := *r.Ratio
		s.Ratio = &ratio
	case r.LeftEye != nil && r.RightEye != nil:
		if ratio, ok := proctor.IrisRatio(*r.LeftEye, *r.RightEye); ok {
			s.Ratio = &ratio
		}
	}
	return s
}

func (c *webSocketClient) EstimateHeadPose(ctx context.Context, frame []byte) (*proctor.HeadPose, error) {
	message, err := c.roundTrip(ctx, HeadPoseEstimation, frame)
	if err != nil {
		return nil, err
	}

	var reply headPoseReply
	if err := jsoniter.Unmarshal(message, &reply); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", HeadPoseEstimation.Name(), errMalformedReply, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%s: %s", HeadPoseEstimation.Name(), reply.Error)
	}
	if !reply.Found {
		return nil, nil
	}

	return &proctor.HeadPose{Pitch: reply.Pitch, Yaw: reply.Yaw, Roll: reply.Roll}, nil
}
