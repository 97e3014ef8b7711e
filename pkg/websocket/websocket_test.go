package websocketPkg

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ProctorGolang/pkg/proctor"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeService answers every binary frame with reply(frame).
func fakeService(t *testing.T, reply func(frame []byte) string) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply(frame))); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDetectObjects(t *testing.T) {
	url := fakeService(t, func([]byte) string {
		return `{"frame_width":640,"frame_height":480,"detections":[
			{"label":"cell phone","confidence":0.8,"bbox":[10,10,110,110]},
			{"label":"book","confidence":0.9,"bbox":[1,2,3]}
		]}`
	})
	client := NewAIWebSocketClient(Endpoints{ObjectDetection: url}, quietLogger())
	defer client.CloseConnections()

	detections, frame, err := client.DetectObjects(context.Background(), []byte{0x1})
	if err != nil {
		t.Fatalf("DetectObjects() error = %v", err)
	}
	if frame != (proctor.FrameSize{Width: 640, Height: 480}) {
		t.Errorf("frame = %+v", frame)
	}
	if len(detections) != 1 || detections[0].Label != "cell phone" || detections[0].BBox.X2 != 110 {
		t.Errorf("detections = %+v, want the single well-formed box", detections)
	}
}

func TestDetectFacesAndServiceErrors(t *testing.T) {
	url := fakeService(t, func(frame []byte) string {
		if string(frame) == "broken" {
			return `{"error":"model not loaded"}`
		}
		return `{"face_count":2}`
	})
	client := NewAIWebSocketClient(Endpoints{FaceDetection: url}, quietLogger())
	defer client.CloseConnections()

	count, err := client.DetectFaces(context.Background(), []byte("frame"))
	if err != nil || count != 2 {
		t.Fatalf("DetectFaces() = %d, %v; want 2, nil", count, err)
	}

	if _, err := client.DetectFaces(context.Background(), []byte("broken")); err == nil {
		t.Fatal("DetectFaces() should surface the service error")
	}
}

func TestEstimateGaze(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantNil   bool
		wantLabel proctor.GazeLabel
		wantRatio float64
	}{
		{name: "no face", reply: `{"found":false}`, wantNil: true},
		{name: "explicit ratio", reply: `{"found":true,"ratio":0.2}`, wantRatio: 0.2},
		{
			name: "landmarks",
			reply: `{"found":true,
				"left_eye":{"iris_x":0.30,"left_corner_x":0.20,"right_corner_x":0.40},
				"right_eye":{"iris_x":0.66,"left_corner_x":0.60,"right_corner_x":0.80}}`,
			wantRatio: 0.4,
		},
		{name: "vertical label", reply: `{"found":true,"label":"down"}`, wantLabel: proctor.GazeDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := fakeService(t, func([]byte) string { return tt.reply })
			client := NewAIWebSocketClient(Endpoints{GazeEstimation: url}, quietLogger())
			defer client.CloseConnections()

			sample, err := client.EstimateGaze(context.Background(), []byte("frame"))
			if err != nil {
				t.Fatalf("EstimateGaze() error = %v", err)
			}
			if tt.wantNil {
				if sample != nil {
					t.Fatalf("EstimateGaze() = %+v, want nil", sample)
				}
				return
			}
			if sample == nil {
				t.Fatal("EstimateGaze() = nil")
			}
			if sample.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", sample.Label, tt.wantLabel)
			}
			if tt.wantRatio != 0 {
				if sample.Ratio == nil || *sample.Ratio < tt.wantRatio-0.001 || *sample.Ratio > tt.wantRatio+0.001 {
					t.Errorf("ratio = %v, want %v", sample.Ratio, tt.wantRatio)
				}
			}
		})
	}
}

func TestEstimateHeadPose(t *testing.T) {
	url := fakeService(t, func(frame []byte) string {
		if string(frame) == "none" {
			return `{"found":false}`
		}
		return `{"found":true,"pitch":-4.5,"yaw":22,"roll":1}`
	})
	client := NewAIWebSocketClient(Endpoints{HeadPoseEstimation: url}, quietLogger())
	defer client.CloseConnections()

	pose, err := client.EstimateHeadPose(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("EstimateHeadPose() error = %v", err)
	}
	if pose == nil || pose.Yaw != 22 || pose.Pitch != -4.5 {
		t.Errorf("pose = %+v", pose)
	}

	pose, err = client.EstimateHeadPose(context.Background(), []byte("none"))
	if err != nil || pose != nil {
		t.Errorf("EstimateHeadPose(none) = %+v, %v; want nil, nil", pose, err)
	}
}

func TestDisabledService(t *testing.T) {
	client := NewAIWebSocketClient(Endpoints{}, quietLogger())

	if client.Enabled(HeadPoseEstimation) {
		t.Fatal("head pose should be disabled without a URL")
	}
	if _, err := client.EstimateHeadPose(context.Background(), nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("EstimateHeadPose() error = %v, want ErrDisabled", err)
	}
	if client.IsConnected(HeadPoseEstimation) {
		t.Fatal("disabled service reported as connected")
	}
}

func TestConcurrentCallersGetTheirOwnReplies(t *testing.T) {
	url := fakeService(t, func(frame []byte) string {
		time.Sleep(time.Millisecond)
		return `{"face_count":` + string(frame) + `}`
	})
	client := NewAIWebSocketClient(Endpoints{FaceDetection: url}, quietLogger())
	defer client.CloseConnections()

	var wg sync.WaitGroup
	for _, n := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			got, err := client.DetectFaces(context.Background(), []byte(n))
			if err != nil {
				t.Errorf("DetectFaces(%s) error = %v", n, err)
				return
			}
			if want := int(n[0] - '0'); got != want {
				t.Errorf("DetectFaces(%s) = %d", n, got)
			}
		}(n)
	}
	wg.Wait()
}

func TestRoundTripHonoursContext(t *testing.T) {
	url := fakeService(t, func([]byte) string {
		time.Sleep(500 * time.Millisecond)
		return `{"face_count":1}`
	})
	client := NewAIWebSocketClient(Endpoints{FaceDetection: url}, quietLogger())
	defer client.CloseConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.DetectFaces(ctx, []byte("frame")); err == nil {
		t.Fatal("DetectFaces() should fail once the context expires")
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("DetectFaces() took %v, want it to stop at the deadline", elapsed)
	}
}
