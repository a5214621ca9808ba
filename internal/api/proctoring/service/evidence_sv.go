package proctoringService

import (
	"ProctorGolang/internal/entity"
	"ProctorGolang/pkg/proctor"
	"fmt"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type evidenceJob struct {
	session     *ActiveSession
	key         string
	contentType string
	body        []byte
	event       entity.ViolationEvent
}

func (s *proctoringService) evidenceWorker() {
	defer s.workers.Done()

	for job := range s.evidence {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StorageTimeout)
		location, err := s.s3Client.UploadObject(ctx, job.key, job.contentType, job.body)
		cancel()

		if err != nil {
			s.log.WithFields(logrus.Fields{
				"session_id": job.session.ID,
				"key":        job.key,
				"error":      err.Error(),
			}).Error("Failed to upload violation evidence")
		} else {
			job.session.addEvidence(job.key)
			job.event.EvidenceKey = job.key
			s.log.WithFields(logrus.Fields{
				"session_id": job.session.ID,
				"location":   location,
			}).Debug("Violation evidence uploaded")
		}

		s.publishViolation(context.Background(), job.event)
		job.session.pending.Done()
	}
}

func (s *proctoringService) stopEvidence() {
	s.evidenceMu.Lock()
	defer s.evidenceMu.Unlock()
	if s.evidenceClosed {
		return
	}
	s.evidenceClosed = true
	close(s.evidence)
}

// captureEvidence queues the frame for upload. When it returns true the worker
// owns event and publishes it after the upload, carrying the key only if the
// upload succeeded. Callers must hold as.frameMu.
func (s *proctoringService) captureEvidence(as *ActiveSession, result *proctor.FrameResult, event entity.ViolationEvent) bool {
	if s.s3Client == nil || as.limiter == nil || len(result.Image) == 0 {
		return false
	}
	if !as.limiter.Allow() {
		return false
	}

	frame := result.Metrics.TotalFrames
	job := evidenceJob{
		session:     as,
		key:         fmt.Sprintf("proctoring/%s/%s/%06d%s", as.InterviewID, as.ID, frame, proctor.Extension(result.Format)),
		contentType: proctor.ContentType(result.Format),
		body:        result.Image,
		event:       event,
	}

	s.evidenceMu.RLock()
	defer s.evidenceMu.RUnlock()
	if s.evidenceClosed {
		return false
	}

	as.pending.Add(1)
	select {
	case s.evidence <- job:
		return true
	default:
		as.pending.Done()
		s.log.WithFields(logrus.Fields{
			"session_id": as.ID,
			"frame":      frame,
		}).Warn("Evidence queue full, dropping frame")
		return false
	}
}

func (s *proctoringService) storeSnapshot(ctx context.Context, as *ActiveSession) {
	if s.redisServer == nil {
		return
	}
	snapshot, ok := as.liveSnapshot()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.redisServer.SetSnapshot(ctx, snapshot, s.cfg.SnapshotTTL); err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": as.ID,
			"error":      err.Error(),
		}).Warn("Failed to store live snapshot")
	}
}

func (s *proctoringService) deleteSnapshot(ctx context.Context, sessionID string) {
	if s.redisServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.redisServer.DeleteSnapshot(ctx, sessionID); err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		}).Warn("Failed to delete live snapshot")
	}
}

func (s *proctoringService) publishViolation(ctx context.Context, event entity.ViolationEvent) {
	if s.redisServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.redisServer.PublishViolation(ctx, event); err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"frame":      event.Frame,
			"error":      err.Error(),
		}).Warn("Failed to publish violation event")
	}
}
