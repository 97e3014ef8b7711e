package entity

import "time"

// ProctorSession is the registry record of one monitored exam attempt.
type ProctorSession struct {
	ID         string        `json:"id"`
	ExamID     string        `json:"exam_id"`
	StudentID  string        `json:"student_id"`
	CreatedBy  string        `json:"created_by,omitempty"`
	Source     SessionSource `json:"source"`
	StartedAt  time.Time     `json:"started_at"`
	LastSeenAt time.Time     `json:"last_seen_at"`
}

type SessionSource uint8

const (
	SessionSourceUnknown  SessionSource = 0
	SessionSourceAPI      SessionSource = 1
	SessionSourceImplicit SessionSource = 2
	SessionSourceStream   SessionSource = 3
)

var SessionSourceMap = map[SessionSource]string{
	SessionSourceAPI:      "api",
	SessionSourceImplicit: "implicit",
	SessionSourceStream:   "stream",
}

func (s SessionSource) String() string {
	if name, ok := SessionSourceMap[s]; ok {
		return name
	}
	return "unknown"
}

func (s SessionSource) Value() uint8 {
	return uint8(s)
}
