package proctor

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Engine wires classifier, stabilizer, aggregator, rule engine and assembler together.
type Engine struct {
	aggregator *SignalAggregator
	rules      *RuleEngine
}

func NewEngine(policy Policy, table LabelTable, log *logrus.Logger) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid label table: %w", err)
	}

	classifier := NewObjectClassifier(table, policy.ConfidenceThreshold, policy.MinAreaRatio)
	stabilizer := NewGazeStabilizer(policy.GazeWindow)

	return &Engine{
		aggregator: NewSignalAggregator(classifier, stabilizer, policy.Gaze, log),
		rules:      NewRuleEngine(policy),
	}, nil
}

// Process runs one frame through the pipeline. Frames of one session must be processed in
// arrival order.
func (e *Engine) Process(sessionID string, s Signals) (Result, FrameObservation) {
	obs, detections := e.aggregator.Aggregate(sessionID, s)
	violations := e.rules.Evaluate(obs)
	return Assemble(obs, violations, detections), obs
}

func (e *Engine) Aggregator() *SignalAggregator {
	return e.aggregator
}
