package config

import (
	proctoringService "ProctorGolang/internal/api/proctoring/service"
	"ProctorGolang/pkg/proctor"
	websocketPkg "ProctorGolang/pkg/websocket"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ProctorConfig struct {
	Port        string
	Policy      proctor.Policy
	LabelTable  proctor.LabelTable
	KnownLabels []string
	Service     proctoringService.Config
	Endpoints   websocketPkg.Endpoints
	RateLimit   rate.Limit
	RateBurst   int
}

// LoadProctorConfig reads the policy and label table files, then applies env overrides on top.
// Structural errors in either file fail startup.
func LoadProctorConfig(log *logrus.Logger) (ProctorConfig, error) {
	policy := proctor.DefaultPolicy()
	if path := os.Getenv("PROCTOR_POLICY_FILE"); path != "" {
		loaded, err := proctor.LoadPolicy(path)
		if err != nil {
			return ProctorConfig{}, err
		}
		policy = loaded
	}

	policy.GazeWindow = getEnvInt("PROCTOR_GAZE_WINDOW", policy.GazeWindow)
	policy.ConfidenceThreshold = getEnvFloat("PROCTOR_CONFIDENCE_THRESHOLD", policy.ConfidenceThreshold)
	policy.MinAreaRatio = getEnvFloat("PROCTOR_MIN_AREA_RATIO", policy.MinAreaRatio)
	policy.VerticalGazeIsViolation = getEnvBool("PROCTOR_VERTICAL_GAZE", policy.VerticalGazeIsViolation)
	if err := policy.Validate(); err != nil {
		return ProctorConfig{}, fmt.Errorf("invalid proctor policy after env overrides: %w", err)
	}

	table := proctor.DefaultLabelTable()
	if path := os.Getenv("PROCTOR_LABEL_TABLE_FILE"); path != "" {
		loaded, err := proctor.LoadLabelTable(path)
		if err != nil {
			return ProctorConfig{}, err
		}
		table = loaded
	}

	var known []string
	if path := os.Getenv("PROCTOR_KNOWN_LABELS_FILE"); path != "" {
		labels, err := proctor.LoadKnownLabels(path)
		if err != nil {
			return ProctorConfig{}, err
		}
		known = labels
		if unmapped := table.Unmapped(known); len(unmapped) > 0 {
			log.WithFields(logrus.Fields{
				"label_table": table.Version,
				"labels":      unmapped,
			}).Warn("Detector labels fall back to suspicious")
		}
	}

	cfg := ProctorConfig{
		Port:        getEnv("APP_PORT", "3000"),
		Policy:      policy,
		LabelTable:  table,
		KnownLabels: known,
		Service: proctoringService.Config{
			MaxViolations:       getEnvInt("PROCTOR_MAX_VIOLATIONS", proctoringService.DefaultConfig().MaxViolations),
			IdleTimeout:         getEnvDuration("PROCTOR_SESSION_IDLE_TIMEOUT", proctoringService.DefaultConfig().IdleTimeout),
			CollaboratorTimeout: getEnvDuration("PROCTOR_COLLABORATOR_TIMEOUT", proctoringService.DefaultConfig().CollaboratorTimeout),
			EvidenceEnabled:     getEnvBool("EVIDENCE_ENABLED", false),
		},
		Endpoints: websocketPkg.EndpointsFromEnv(),
		RateLimit: rate.Limit(getEnvFloat("RATE_LIMIT_PER_SEC", 50)),
		RateBurst: getEnvInt("RATE_LIMIT_BURST", 100),
	}

	log.WithFields(logrus.Fields{
		"policy":         policy.Name,
		"label_table":    table.Version,
		"gaze_window":    policy.GazeWindow,
		"vertical_gaze":  policy.VerticalGazeIsViolation,
		"max_violations": cfg.Service.MaxViolations,
		"evidence":       cfg.Service.EvidenceEnabled,
	}).Info("Proctor configuration loaded")

	return cfg, nil
}

func NewProctorEngine(cfg ProctorConfig, log *logrus.Logger) (*proctor.Engine, error) {
	engine, err := proctor.NewEngine(cfg.Policy, cfg.LabelTable, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build proctor engine: %w", err)
	}
	return engine, nil
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if floatVal, err := strconv.ParseFloat(v, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if boolVal, err := strconv.ParseBool(v); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
