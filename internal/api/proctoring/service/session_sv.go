package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/entity"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/proctor"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"golang.org/x/time/rate"
	"math"
	"sort"
	"sync"
	"time"
)

// ActiveSession is one monitored connection registered on this instance.
type ActiveSession struct {
	ID          string
	InterviewID string
	CandidateID string
	Session     *proctor.Session

	limiter *rate.Limiter

	// frameMu serializes frames with EndSession. Once ended is set no frame
	// commits and no evidence upload is added to pending.
	frameMu sync.Mutex
	ended   bool
	pending sync.WaitGroup

	mu           sync.Mutex
	skipped      int
	evidenceKeys []string
	last         *proctor.FrameMetrics
	lastAt       time.Time
}

func (a *ActiveSession) SkippedFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.skipped
}

func (a *ActiveSession) skip() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped++
	return a.skipped
}

func (a *ActiveSession) record(m proctor.FrameMetrics, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = &m
	a.lastAt = at
}

func (a *ActiveSession) addEvidence(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evidenceKeys = append(a.evidenceKeys, key)
}

func (a *ActiveSession) liveSnapshot() (entity.LiveSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return entity.LiveSnapshot{}, false
	}
	return entity.LiveSnapshot{
		SessionID:     a.ID,
		InterviewID:   a.InterviewID,
		CandidateID:   a.CandidateID,
		StartedAt:     a.Session.StartedAt(),
		UpdatedAt:     a.lastAt,
		SkippedFrames: a.skipped,
		Metrics:       *a.last,
	}, true
}

func (s *proctoringService) StartSession(ctx context.Context, req proctoring.StartSessionRequest) (*ActiveSession, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	as := &ActiveSession{
		ID:          id.String(),
		InterviewID: req.InterviewID,
		CandidateID: req.CandidateID,
		Session:     s.analyzer.CreateSession(),
	}
	if s.cfg.EvidenceInterval > 0 {
		as.limiter = rate.NewLimiter(rate.Every(s.cfg.EvidenceInterval), 1)
	}

	s.active.Set(as.ID, as)

	s.log.WithFields(logrus.Fields{
		"request_id":   contextPkg.GetRequestID(ctx),
		"session_id":   as.ID,
		"interview_id": as.InterviewID,
		"candidate_id": as.CandidateID,
	}).Info("Proctoring session started")

	return as, nil
}

func (s *proctoringService) ProcessFrame(ctx context.Context, sessionID string, raw []byte) (*proctoring.FrameResponse, error) {
	as, ok := s.active.Get(sessionID)
	if !ok {
		return nil, proctoring.ErrSessionNotFound
	}

	as.frameMu.Lock()
	defer as.frameMu.Unlock()
	if as.ended {
		return nil, proctoring.ErrSessionNotFound
	}

	result, err := s.analyzer.ProcessFrame(ctx, as.Session, raw)
	if err != nil {
		if errors.Is(err, proctor.ErrDecode) {
			skipped := as.skip()
			s.log.WithFields(logrus.Fields{
				"session_id": sessionID,
				"skipped":    skipped,
				"error":      err.Error(),
			}).Warn("Skipping undecodable frame")
			return nil, proctoring.ErrInvalidFrame
		}
		s.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		}).Error("Frame analysis failed")
		return nil, fmt.Errorf("analyze frame: %w", err)
	}

	processedAt := s.now()
	as.record(result.Metrics, processedAt)

	s.storeSnapshot(ctx, as)

	if len(result.Metrics.CurrentViolations) > 0 {
		event := entity.ViolationEvent{
			SessionID:   as.ID,
			InterviewID: as.InterviewID,
			CandidateID: as.CandidateID,
			Frame:       result.Metrics.TotalFrames,
			Violations:  result.Metrics.CurrentViolations,
			OccurredAt:  processedAt,
		}
		// With evidence queued the event is published once the upload settles.
		if !s.captureEvidence(as, result, event) {
			s.publishViolation(ctx, event)
		}
	}

	return &proctoring.FrameResponse{
		SessionID: as.ID,
		Frame:     s.utils.EncodeBase64(result.Image),
		Metrics:   result.Metrics,
	}, nil
}

func (s *proctoringService) EndSession(ctx context.Context, sessionID string) (*entity.ProctoringSummary, error) {
	as, ok := s.active.Pop(sessionID)
	if !ok {
		return nil, proctoring.ErrSessionNotFound
	}
	requestID := contextPkg.GetRequestID(ctx)

	as.frameMu.Lock()
	as.ended = true
	as.frameMu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, 2*s.cfg.StorageTimeout)
	defer cancel()
	if !waitGroup(waitCtx, &as.pending) {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"session_id": sessionID,
		}).Warn("Evidence uploads still running at session end")
	}

	snap := as.Session.Snapshot()
	endedAt := s.now()

	as.mu.Lock()
	keys := append([]string{}, as.evidenceKeys...)
	skipped := as.skipped
	as.mu.Unlock()

	summary := &entity.ProctoringSummary{
		ID:              as.ID,
		InterviewID:     as.InterviewID,
		CandidateID:     as.CandidateID,
		StartedAt:       snap.StartedAt,
		EndedAt:         endedAt,
		TotalFrames:     snap.TotalFrames,
		SkippedFrames:   skipped,
		ViolationCounts: snap.ViolationCounts,
		TotalViolations: snap.TotalViolations,
		ViolationRate:   snap.ViolationRate,
		DurationSeconds: math.Round(endedAt.Sub(snap.StartedAt).Seconds()*10) / 10,
		EvidenceKeys:    keys,
	}

	s.deleteSnapshot(ctx, sessionID)

	client, err := s.repo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"session_id": sessionID,
			"error":      err.Error(),
		}).Error("Failed to open repository client")
		return summary, errors.Join(proctoring.ErrSaveSummary, err)
	}

	if err := client.Summaries.CreateSummary(ctx, *summary); err != nil {
		return summary, errors.Join(proctoring.ErrSaveSummary, err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id":       requestID,
		"session_id":       sessionID,
		"interview_id":     as.InterviewID,
		"total_frames":     summary.TotalFrames,
		"skipped_frames":   summary.SkippedFrames,
		"total_violations": summary.TotalViolations,
		"violation_rate":   summary.ViolationRate,
	}).Info("Proctoring session ended")

	return summary, nil
}

func (s *proctoringService) ListActiveSessions(ctx context.Context) *proctoring.ActiveSessionListResponse {
	sessions := make([]activeEntry, 0, s.active.Count())
	for item := range s.active.IterBuffered() {
		sessions = append(sessions, activeEntry{session: item.Val, snapshot: item.Val.Session.Snapshot()})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].snapshot.StartedAt.Before(sessions[j].snapshot.StartedAt)
	})

	resp := &proctoring.ActiveSessionListResponse{
		Sessions: make([]proctoring.ActiveSessionResponse, 0, len(sessions)),
		Total:    len(sessions),
	}
	for _, src := range sessions {
		resp.Sessions = append(resp.Sessions, proctoring.ActiveSessionResponse{
			SessionID:       src.session.ID,
			InterviewID:     src.session.InterviewID,
			CandidateID:     src.session.CandidateID,
			StartedAt:       src.snapshot.StartedAt,
			TotalFrames:     src.snapshot.TotalFrames,
			SkippedFrames:   src.session.SkippedFrames(),
			TotalViolations: src.snapshot.TotalViolations,
			ViolationRate:   src.snapshot.ViolationRate,
			Breakdown:       src.snapshot.ViolationCounts,
		})
	}
	return resp
}

type activeEntry struct {
	session  *ActiveSession
	snapshot proctor.SessionSnapshot
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
