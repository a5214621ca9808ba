package proctoring

import (
	"ProctorGolang/pkg/response"
	"net/http"
)

var (
	ErrSessionNotFound     = response.NewError(http.StatusNotFound, "proctoring session not found")
	ErrSummaryNotFound     = response.NewError(http.StatusNotFound, "proctoring summary not found")
	ErrSnapshotUnavailable = response.NewError(http.StatusNotFound, "live snapshot not available")
	ErrInvalidFrame        = response.NewError(http.StatusBadRequest, "frame could not be decoded as an image")
	ErrInvalidInterviewID  = response.NewError(http.StatusBadRequest, "interview_id is required")
	ErrSessionClosed       = response.NewError(http.StatusGone, "proctoring session already ended")
	ErrEvidenceDisabled    = response.NewError(http.StatusServiceUnavailable, "evidence storage not configured")
	ErrLiveFeedDisabled    = response.NewError(http.StatusServiceUnavailable, "live violation feed not configured")
	ErrSaveSummary         = response.NewError(http.StatusInternalServerError, "failed to save proctoring summary")
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, "internal server error")
)
