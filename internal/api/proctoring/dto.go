package proctoring

import "time"

// ProcessFrameRequest is the /process-ml body. Image is base64, optionally as a data URL.
type ProcessFrameRequest struct {
	Image     string `json:"image" form:"image" validate:"required"`
	SessionID string `json:"sessionId" form:"sessionId" validate:"omitempty,max=128,printascii"`
}

type StartSessionRequest struct {
	ExamID    string `json:"exam_id" validate:"required,max=128"`
	StudentID string `json:"student_id" validate:"required,max=128"`
}

type SessionSummary struct {
	SessionID       string         `json:"session_id"`
	ExamID          string         `json:"exam_id,omitempty"`
	StudentID       string         `json:"student_id,omitempty"`
	Source          string         `json:"source"`
	Active          bool           `json:"active"`
	StartedAt       time.Time      `json:"started_at"`
	LastSeenAt      time.Time      `json:"last_seen_at"`
	FramesProcessed int            `json:"frames_processed"`
	ViolationCounts map[string]int `json:"violation_counts"`
	TotalViolations int            `json:"total_violations"`
	EndExam         bool           `json:"end_exam"`
	Evidence        []string       `json:"evidence"`
}

type SessionResponse struct {
	Data SessionSummary `json:"data"`
}

// StreamError is written on the proctoring websocket when a single frame could not be evaluated.
type StreamError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StreamOpened is the first message on the proctoring websocket.
type StreamOpened struct {
	SessionID string `json:"session_id"`
}
