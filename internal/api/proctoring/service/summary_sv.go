package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/entity"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/redis"
	"errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"strings"
)

const defaultSummaryLimit = 20

// GetLiveSnapshot prefers the in-process session and falls back to the shared
// cache so sessions owned by other instances are visible too.
func (s *proctoringService) GetLiveSnapshot(ctx context.Context, sessionID string) (*entity.LiveSnapshot, error) {
	if as, ok := s.active.Get(sessionID); ok {
		if snapshot, ok := as.liveSnapshot(); ok {
			return &snapshot, nil
		}
		if s.redisServer == nil {
			return nil, proctoring.ErrSnapshotUnavailable
		}
	}

	if s.redisServer == nil {
		return nil, proctoring.ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	snapshot, err := s.redisServer.GetSnapshot(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redis.ErrSnapshotNotFound) {
			return nil, proctoring.ErrSnapshotUnavailable
		}
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"session_id": sessionID,
			"error":      err.Error(),
		}).Error("Failed to read live snapshot")
		return nil, proctoring.ErrInternalServerError
	}

	return &snapshot, nil
}

func (s *proctoringService) ListSummaries(ctx context.Context, interviewID string, query proctoring.ListSummariesQuery) (*proctoring.SummaryListResponse, error) {
	interviewID = strings.TrimSpace(interviewID)
	if interviewID == "" {
		return nil, proctoring.ErrInvalidInterviewID
	}
	if query.Limit <= 0 {
		query.Limit = defaultSummaryLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return nil, err
	}

	summaries, total, err := client.Summaries.GetSummariesByInterviewID(ctx, interviewID, query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}

	resp := &proctoring.SummaryListResponse{
		Summaries: make([]proctoring.SummaryResponse, 0, len(summaries)),
		Total:     total,
	}
	for _, summary := range summaries {
		resp.Summaries = append(resp.Summaries, toSummaryResponse(summary))
	}
	return resp, nil
}

func (s *proctoringService) GetSummary(ctx context.Context, sessionID string) (*proctoring.SummaryResponse, error) {
	client, err := s.repo.NewClient(false)
	if err != nil {
		return nil, err
	}

	summary, err := client.Summaries.GetSummaryByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resp := toSummaryResponse(summary)
	return &resp, nil
}

func (s *proctoringService) ListEvidence(ctx context.Context, sessionID string) (*proctoring.EvidenceListResponse, error) {
	if s.s3Client == nil {
		return nil, proctoring.ErrEvidenceDisabled
	}

	summary, err := s.GetSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resp := &proctoring.EvidenceListResponse{
		SessionID: sessionID,
		Evidence:  make([]proctoring.EvidenceResponse, 0, len(summary.EvidenceKeys)),
	}
	for _, key := range summary.EvidenceKeys {
		url, err := s.s3Client.PresignUrl(key, s.cfg.PresignExpiry)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"session_id": sessionID,
				"key":        key,
				"error":      err.Error(),
			}).Error("Failed to presign evidence url")
			return nil, proctoring.ErrInternalServerError
		}
		resp.Evidence = append(resp.Evidence, proctoring.EvidenceResponse{Key: key, URL: url})
	}
	return resp, nil
}

func (s *proctoringService) SubscribeViolations(ctx context.Context, interviewID string) (<-chan entity.ViolationEvent, func() error, error) {
	if s.redisServer == nil {
		return nil, nil, proctoring.ErrLiveFeedDisabled
	}
	interviewID = strings.TrimSpace(interviewID)
	if interviewID == "" {
		return nil, nil, proctoring.ErrInvalidInterviewID
	}

	events, closeFn := s.redisServer.SubscribeViolations(ctx, interviewID)
	return events, closeFn, nil
}

func toSummaryResponse(summary entity.ProctoringSummary) proctoring.SummaryResponse {
	return proctoring.SummaryResponse{
		SessionID:       summary.ID,
		InterviewID:     summary.InterviewID,
		CandidateID:     summary.CandidateID,
		StartedAt:       summary.StartedAt,
		EndedAt:         summary.EndedAt,
		TotalFrames:     summary.TotalFrames,
		SkippedFrames:   summary.SkippedFrames,
		TotalViolations: summary.TotalViolations,
		ViolationRate:   summary.ViolationRate,
		DurationSeconds: summary.DurationSeconds,
		Breakdown:       summary.ViolationCounts,
		EvidenceKeys:    summary.EvidenceKeys,
	}
}
