package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/entity"
	"ProctorGolang/pkg/metrics"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"ProctorGolang/pkg/s3"
	"ProctorGolang/pkg/utils"
	websocketPkg "ProctorGolang/pkg/websocket"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IProctoringService interface {
	StartSession(ctx context.Context, req proctoring.StartSessionRequest, createdBy string) (proctoring.SessionSummary, error)
	OpenStream(ctx context.Context, sessionID string) (id string, owned bool, err error)
	GetSession(ctx context.Context, sessionID string) (proctoring.SessionSummary, error)
	EndSession(ctx context.Context, sessionID string) (proctoring.SessionSummary, error)
	ProcessFrame(ctx context.Context, sessionID string, frame []byte) (proctor.Result, error)
	SweepIdle(ctx context.Context) []string
	RunJanitor(ctx context.Context)
	Wait()
}

type Config struct {
	MaxViolations       int
	IdleTimeout         time.Duration
	CollaboratorTimeout time.Duration
	EvidenceEnabled     bool
}

func DefaultConfig() Config {
	return Config{
		MaxViolations:       5,
		IdleTimeout:         5 * time.Minute,
		CollaboratorTimeout: 3 * time.Second,
	}
}

type proctoringService struct {
	log        *logrus.Logger
	cfg        Config
	engine     *proctor.Engine
	perception websocketPkg.IWebsocket
	registry   redis.IRedis
	evidence   s3.ItfS3
	metrics    *metrics.Metrics
	utils      utils.IUtils

	mu       sync.Mutex
	sessions map[string]*sessionState
	uploads  sync.WaitGroup
	now      func() time.Time
}

// sessionState is the in-process tally of one session. mu serializes its frames so the gaze
// window sees them in arrival order.
type sessionState struct {
	mu              sync.Mutex
	info            entity.ProctorSession
	framesProcessed int
	counts          map[string]int
	total           int
	evidence        []string
	ended           bool
}

func NewProctoringService(
	log *logrus.Logger,
	cfg Config,
	engine *proctor.Engine,
	perception websocketPkg.IWebsocket,
	registry redis.IRedis,
	evidence s3.ItfS3,
	m *metrics.Metrics,
	u utils.IUtils,
) IProctoringService {
	if m == nil {
		m = metrics.New()
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = DefaultConfig().MaxViolations
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = DefaultConfig().CollaboratorTimeout
	}

	engine.Aggregator().OnMalformed(m.MalformedDetection)
	m.TrackActiveSessions(engine.Aggregator().ActiveSessions)

	return &proctoringService{
		log:        log,
		cfg:        cfg,
		engine:     engine,
		perception: perception,
		registry:   registry,
		evidence:   evidence,
		metrics:    m,
		utils:      u,
		sessions:   make(map[string]*sessionState),
		now:        time.Now,
	}
}

// Wait blocks until background evidence uploads have finished.
func (s *proctoringService) Wait() {
	s.uploads.Wait()
}
