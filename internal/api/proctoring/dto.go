package proctoring

import (
	"ProctorGolang/pkg/proctor"
	"time"
)

var DetectionMethods = []string{
	"Face presence detection",
	"Gaze direction estimation",
	"Distance monitoring",
	"Profile face detection",
	"Multiple person detection",
	"Movement tracking",
}

type StartSessionRequest struct {
	InterviewID string `query:"interview_id" json:"interview_id" validate:"required,max=64"`
	CandidateID string `query:"candidate_id" json:"candidate_id" validate:"required,max=64"`
}

// FrameMessage is the JSON form a text websocket message may take. Plain
// base64 or a data URL is accepted as well.
type FrameMessage struct {
	Frame string `json:"frame"`
}

type FrameResponse struct {
	SessionID string               `json:"session_id"`
	Frame     string               `json:"frame"`
	Metrics   proctor.FrameMetrics `json:"metrics"`
}

type ErrorMessage struct {
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
}

type ActiveSessionResponse struct {
	SessionID       string                  `json:"session_id"`
	InterviewID     string                  `json:"interview_id"`
	CandidateID     string                  `json:"candidate_id"`
	StartedAt       time.Time               `json:"started_at"`
	TotalFrames     int                     `json:"total_frames"`
	SkippedFrames   int                     `json:"skipped_frames"`
	TotalViolations int                     `json:"total_violations"`
	ViolationRate   float64                 `json:"total_violation_rate"`
	Breakdown       proctor.ViolationCounts `json:"violations_breakdown"`
}

type ActiveSessionListResponse struct {
	Sessions []ActiveSessionResponse `json:"sessions"`
	Total    int                     `json:"total"`
}

type ListSummariesQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

type SummaryResponse struct {
	SessionID       string                  `json:"session_id"`
	InterviewID     string                  `json:"interview_id"`
	CandidateID     string                  `json:"candidate_id"`
	StartedAt       time.Time               `json:"started_at"`
	EndedAt         time.Time               `json:"ended_at"`
	TotalFrames     int                     `json:"total_frames"`
	SkippedFrames   int                     `json:"skipped_frames"`
	TotalViolations int                     `json:"total_violations"`
	ViolationRate   float64                 `json:"total_violation_rate"`
	DurationSeconds float64                 `json:"session_duration"`
	Breakdown       proctor.ViolationCounts `json:"violations_breakdown"`
	EvidenceKeys    []string                `json:"evidence_keys"`
}

type SummaryListResponse struct {
	Summaries []SummaryResponse `json:"summaries"`
	Total     int               `json:"total"`
}

type EvidenceResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type EvidenceListResponse struct {
	SessionID string             `json:"session_id"`
	Evidence  []EvidenceResponse `json:"evidence"`
}

type HealthResponse struct {
	Message          string   `json:"message"`
	DetectionMethods []string `json:"detection_methods"`
	ActiveSessions   int      `json:"active_sessions"`
}
