package entity

import (
	"ProctorGolang/pkg/proctor"
	"time"
)

type ProctoringSummary struct {
	ID              string                  `db:"id"`
	InterviewID     string                  `db:"interview_id"`
	CandidateID     string                  `db:"candidate_id"`
	StartedAt       time.Time               `db:"started_at"`
	EndedAt         time.Time               `db:"ended_at"`
	TotalFrames     int                     `db:"total_frames"`
	SkippedFrames   int                     `db:"skipped_frames"`
	ViolationCounts proctor.ViolationCounts `db:"violation_counts"`
	TotalViolations int                     `db:"total_violations"`
	ViolationRate   float64                 `db:"violation_rate"`
	DurationSeconds float64                 `db:"duration_seconds"`
	EvidenceKeys    []string                `db:"evidence_keys"`
}

// LiveSnapshot is the latest known state of a running session, cached for
// dashboards polling other instances.
type LiveSnapshot struct {
	SessionID     string               `json:"session_id"`
	InterviewID   string               `json:"interview_id"`
	CandidateID   string               `json:"candidate_id"`
	StartedAt     time.Time            `json:"started_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	SkippedFrames int                  `json:"skipped_frames"`
	Metrics       proctor.FrameMetrics `json:"metrics"`
}

type ViolationEvent struct {
	SessionID   string    `json:"session_id"`
	InterviewID string    `json:"interview_id"`
	CandidateID string    `json:"candidate_id"`
	Frame       int       `json:"frame"`
	Violations  []string  `json:"violations"`
	EvidenceKey string    `json:"evidence_key,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
