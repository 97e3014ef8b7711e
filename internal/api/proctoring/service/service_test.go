package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/entity"
	"ProctorGolang/pkg/metrics"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"ProctorGolang/pkg/utils"
	websocketPkg "ProctorGolang/pkg/websocket"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakePerception struct {
	detections []proctor.Detection
	frame      proctor.FrameSize
	faces      int
	gaze       func() *proctor.GazeSample
	pose       *proctor.HeadPose
	headPose   bool
	failing    map[websocketPkg.Kind]bool
	slowFaces  bool
}

var errDown = errors.New("service down")

func (f *fakePerception) DetectObjects(ctx context.Context, frame []byte) ([]proctor.Detection, proctor.FrameSize, error) {
	if f.failing[websocketPkg.ObjectDetection] {
		return nil, proctor.FrameSize{}, errDown
	}
	return f.detections, f.frame, nil
}

func (f *fakePerception) DetectFaces(ctx context.Context, frame []byte) (int, error) {
	if f.slowFaces {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if f.failing[websocketPkg.FaceDetection] {
		return 0, errDown
	}
	return f.faces, nil
}

func (f *fakePerception) EstimateGaze(ctx context.Context, frame []byte) (*proctor.GazeSample, error) {
	if f.failing[websocketPkg.GazeEstimation] {
		return nil, errDown
	}
	if f.gaze == nil {
		return nil, nil
	}
	return f.gaze(), nil
}

func (f *fakePerception) EstimateHeadPose(ctx context.Context, frame []byte) (*proctor.HeadPose, error) {
	if f.failing[websocketPkg.HeadPoseEstimation] {
		return nil, errDown
	}
	return f.pose, nil
}

func (f *fakePerception) Enabled(kind websocketPkg.Kind) bool {
	return kind != websocketPkg.HeadPoseEstimation || f.headPose
}

func (f *fakePerception) IsConnected(websocketPkg.Kind) bool { return true }
func (f *fakePerception) Reconnect(websocketPkg.Kind) error  { return nil }
func (f *fakePerception) CloseConnections()                  {}

type fakeRegistry struct {
	mu       sync.Mutex
	sessions map[string]entity.ProctorSession
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{sessions: make(map[string]entity.ProctorSession)}
}

func (r *fakeRegistry) SaveSession(ctx context.Context, s entity.ProctorSession, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeRegistry) GetSession(ctx context.Context, id string) (entity.ProctorSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return entity.ProctorSession{}, redis.ErrSessionNotFound
	}
	return s, nil
}

func (r *fakeRegistry) TouchSession(ctx context.Context, id string, seenAt time.Time, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return redis.ErrSessionNotFound
	}
	s.LastSeenAt = seenAt
	r.sessions[id] = s
	return nil
}

func (r *fakeRegistry) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeRegistry) Close() error { return nil }

type fakeEvidence struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeEvidence) UploadEvidence(ctx context.Context, key string, frame []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "https://bucket.s3.amazonaws.com/" + key, nil
}

func (f *fakeEvidence) PresignUrl(fileUrl string) (string, error) {
	return fileUrl + "?signed=1", nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 640, 480))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc      *proctoringService
	fake     *fakePerception
	registry *fakeRegistry
	evidence *fakeEvidence
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	engine, err := proctor.NewEngine(proctor.DefaultPolicy(), proctor.DefaultLabelTable(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		fake:     &fakePerception{faces: 1},
		registry: newFakeRegistry(),
		evidence: &fakeEvidence{},
		metrics:  metrics.New(),
	}
	svc := NewProctoringService(quietLogger(), cfg, engine, f.fake, f.registry, f.evidence, f.metrics, utils.New())
	f.svc = svc.(*proctoringService)
	return f
}

func ratio(v float64) func() *proctor.GazeSample {
	return func() *proctor.GazeSample { return &proctor.GazeSample{Ratio: &v} }
}

func TestProcessFrameSecondPersonWithPhone(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.fake.detections = []proctor.Detection{
		{Label: "person", Confidence: 0.9, BBox: proctor.BBox{X1: 0, Y1: 0, X2: 300, Y2: 400}},
		{Label: "person", Confidence: 0.9, BBox: proctor.BBox{X1: 320, Y1: 0, X2: 620, Y2: 400}},
		{Label: "cell phone", Confidence: 0.8, BBox: proctor.BBox{X1: 100, Y1: 100, X2: 200, Y2: 200}},
		{Label: "cell phone", Confidence: 0.9, BBox: proctor.BBox{X1: 0, Y1: 0, X2: 20, Y2: 20}},
	}

	result, err := f.svc.ProcessFrame(context.Background(), "exam-1", testFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	want := []string{proctor.TagMultiplePersons, "object_cell_phone"}
	if !reflect.DeepEqual(result.Violations, want) {
		t.Errorf("Violations = %v, want %v", result.Violations, want)
	}
	if result.PersonCount != 2 || result.FaceCount != 1 || len(result.DetectedObjects) != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestProcessFrameUsesNeutralValuesWhenServicesFail(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.fake.gaze = ratio(0.1)
	f.fake.failing = map[websocketPkg.Kind]bool{
		websocketPkg.ObjectDetection: true,
		websocketPkg.GazeEstimation:  true,
	}

	result, err := f.svc.ProcessFrame(context.Background(), "", testFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if len(result.Violations) != 0 || result.Gaze != "center" || len(result.DetectedObjects) != 0 {
		t.Errorf("result = %+v, want a clean frame", result)
	}

	f.fake.failing[websocketPkg.FaceDetection] = true
	result, _ = f.svc.ProcessFrame(context.Background(), "", testFrame(t))
	if !reflect.DeepEqual(result.Violations, []string{proctor.TagNoFace}) {
		t.Errorf("Violations = %v, want only no_face_detected", result.Violations)
	}
}

func TestProcessFrameCollaboratorTimeoutIsNeutral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollaboratorTimeout = 20 * time.Millisecond
	f := newFixture(t, cfg)
	f.fake.slowFaces = true

	result, err := f.svc.ProcessFrame(context.Background(), "exam-1", testFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if !reflect.DeepEqual(result.Violations, []string{proctor.TagNoFace}) {
		t.Errorf("Violations = %v, want only no_face_detected", result.Violations)
	}
}

func TestProcessFrameAbandonedByCaller(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.fake.slowFaces = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.ProcessFrame(ctx, "exam-1", testFrame(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ProcessFrame() error = %v, want context.DeadlineExceeded", err)
	}

	summary, err := f.svc.GetSession(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if summary.FramesProcessed != 0 || summary.TotalViolations != 0 {
		t.Errorf("summary = %+v, want nothing recorded for the abandoned frame", summary)
	}
	if f.metrics.FramesProcessed.Load() != 0 {
		t.Errorf("processed = %d, want 0", f.metrics.FramesProcessed.Load())
	}
}

func TestProcessFrameRejectsInvalidImage(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.svc.ProcessFrame(context.Background(), "exam-1", []byte("not an image"))
	if !errors.Is(err, proctoring.ErrInvalidImage) {
		t.Fatalf("ProcessFrame() error = %v, want ErrInvalidImage", err)
	}
	if f.metrics.FramesRejected.Load() != 1 || f.metrics.FramesProcessed.Load() != 0 {
		t.Errorf("rejected=%d processed=%d", f.metrics.FramesRejected.Load(), f.metrics.FramesProcessed.Load())
	}
	if _, err := f.svc.GetSession(context.Background(), "exam-1"); !errors.Is(err, proctoring.ErrSessionNotFound) {
		t.Errorf("rejected frame should not create a session, got %v", err)
	}
}

func TestGazeSmoothingFollowsSession(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	frame := testFrame(t)
	ctx := context.Background()

	f.fake.gaze = ratio(0.1)
	f.svc.ProcessFrame(ctx, "exam-a", frame)
	f.svc.ProcessFrame(ctx, "exam-a", frame)

	f.fake.gaze = ratio(0.5)
	result, _ := f.svc.ProcessFrame(ctx, "exam-a", frame)
	if result.Gaze != "left" || !reflect.DeepEqual(result.Violations, []string{proctor.TagGazeAway}) {
		t.Errorf("exam-a result = %+v, want smoothed left gaze", result)
	}

	result, _ = f.svc.ProcessFrame(ctx, "exam-b", frame)
	if result.Gaze != "center" || len(result.Violations) != 0 {
		t.Errorf("exam-b result = %+v, want its own window", result)
	}

	f.fake.gaze = ratio(0.1)
	f.svc.ProcessFrame(ctx, "", frame)
	f.svc.ProcessFrame(ctx, "", frame)
	f.fake.gaze = ratio(0.5)
	result, _ = f.svc.ProcessFrame(ctx, "", frame)
	if result.Gaze != "center" {
		t.Errorf("anonymous result gaze = %s, want center without history", result.Gaze)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	frame := testFrame(t)

	started, err := f.svc.StartSession(ctx, proctoring.StartSessionRequest{ExamID: "math-101", StudentID: "s-42"}, "proctor-1")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if started.SessionID == "" || started.Source != "api" || !started.Active {
		t.Fatalf("StartSession() = %+v", started)
	}
	if _, err := f.registry.GetSession(ctx, started.SessionID); err != nil {
		t.Fatalf("session not saved in registry: %v", err)
	}

	f.fake.faces = 2
	for i := 0; i < 6; i++ {
		if _, err := f.svc.ProcessFrame(ctx, started.SessionID, frame); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := f.svc.GetSession(ctx, started.SessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if summary.FramesProcessed != 6 || summary.TotalViolations != 6 || !summary.EndExam {
		t.Errorf("summary = %+v", summary)
	}
	if summary.ViolationCounts[proctor.TagMultipleFaces] != 6 {
		t.Errorf("counts = %v", summary.ViolationCounts)
	}

	ended, err := f.svc.EndSession(ctx, started.SessionID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if ended.Active || ended.TotalViolations != 6 {
		t.Errorf("EndSession() = %+v", ended)
	}
	if _, err := f.svc.GetSession(ctx, started.SessionID); !errors.Is(err, proctoring.ErrSessionNotFound) {
		t.Errorf("GetSession() after end error = %v, want ErrSessionNotFound", err)
	}
	if _, err := f.svc.EndSession(ctx, "missing"); !errors.Is(err, proctoring.ErrSessionNotFound) {
		t.Errorf("EndSession(missing) error = %v", err)
	}
}

func TestEndExamNeedsMoreThanMaxViolations(t *testing.T) {
	f := newFixture(t, Config{MaxViolations: 2})
	ctx := context.Background()
	frame := testFrame(t)
	f.fake.faces = 0

	f.svc.ProcessFrame(ctx, "exam-1", frame)
	f.svc.ProcessFrame(ctx, "exam-1", frame)
	summary, _ := f.svc.GetSession(ctx, "exam-1")
	if summary.EndExam {
		t.Fatalf("EndExam at total %d with limit 2", summary.TotalViolations)
	}

	f.svc.ProcessFrame(ctx, "exam-1", frame)
	summary, _ = f.svc.GetSession(ctx, "exam-1")
	if !summary.EndExam || summary.Source != "implicit" {
		t.Fatalf("summary = %+v, want implicit session that must end", summary)
	}
}

func TestEvidenceIsStoredForViolatingFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvidenceEnabled = true
	f := newFixture(t, cfg)
	ctx := context.Background()
	frame := testFrame(t)

	f.svc.ProcessFrame(ctx, "exam-1", frame)
	f.fake.faces = 0
	f.svc.ProcessFrame(ctx, "exam-1", frame)
	f.svc.Wait()

	if len(f.evidence.keys) != 1 || !strings.HasPrefix(f.evidence.keys[0], "evidence/exam-1/") || !strings.HasSuffix(f.evidence.keys[0], ".png") {
		t.Fatalf("uploaded keys = %v", f.evidence.keys)
	}

	summary, _ := f.svc.GetSession(ctx, "exam-1")
	if len(summary.Evidence) != 1 || !strings.HasSuffix(summary.Evidence[0], "?signed=1") {
		t.Errorf("evidence = %v", summary.Evidence)
	}
}

func TestSweepIdle(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: time.Minute})
	ctx := context.Background()
	frame := testFrame(t)

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	f.svc.ProcessFrame(ctx, "stale", frame)
	now = now.Add(2 * time.Minute)
	f.svc.ProcessFrame(ctx, "fresh", frame)

	evicted := f.svc.SweepIdle(ctx)
	if !reflect.DeepEqual(evicted, []string{"stale"}) {
		t.Fatalf("SweepIdle() = %v, want [stale]", evicted)
	}
	if _, ok := f.svc.sessions["fresh"]; !ok {
		t.Error("fresh session was evicted")
	}
}

func TestOpenStream(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	id, owned, err := f.svc.OpenStream(ctx, "")
	if err != nil || id == "" || !owned {
		t.Fatalf("OpenStream() = %q, %v, %v", id, owned, err)
	}
	summary, err := f.svc.GetSession(ctx, id)
	if err != nil || summary.Source != "stream" {
		t.Fatalf("GetSession() = %+v, %v", summary, err)
	}

	named, owned, _ := f.svc.OpenStream(ctx, "exam-9")
	if named != "exam-9" || !owned {
		t.Errorf("OpenStream(exam-9) = %q, owned %v", named, owned)
	}

	started, err := f.svc.StartSession(ctx, proctoring.StartSessionRequest{ExamID: "exam-1", StudentID: "student-1"}, "proctor-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, owned, _ := f.svc.OpenStream(ctx, started.SessionID); owned {
		t.Errorf("OpenStream(%s) owns a session started through the API", started.SessionID)
	}
}
