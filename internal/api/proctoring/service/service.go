package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	proctoringRepository "ProctorGolang/internal/api/proctoring/repository"
	"ProctorGolang/internal/entity"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"ProctorGolang/pkg/s3"
	"ProctorGolang/pkg/utils"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"sync"
	"time"
)

type IProctoringService interface {
	StartSession(ctx context.Context, req proctoring.StartSessionRequest) (*ActiveSession, error)
	ProcessFrame(ctx context.Context, sessionID string, raw []byte) (*proctoring.FrameResponse, error)
	EndSession(ctx context.Context, sessionID string) (*entity.ProctoringSummary, error)
	ListActiveSessions(ctx context.Context) *proctoring.ActiveSessionListResponse
	ActiveCount() int
	GetLiveSnapshot(ctx context.Context, sessionID string) (*entity.LiveSnapshot, error)
	ListSummaries(ctx context.Context, interviewID string, query proctoring.ListSummariesQuery) (*proctoring.SummaryListResponse, error)
	GetSummary(ctx context.Context, sessionID string) (*proctoring.SummaryResponse, error)
	ListEvidence(ctx context.Context, sessionID string) (*proctoring.EvidenceListResponse, error)
	SubscribeViolations(ctx context.Context, interviewID string) (<-chan entity.ViolationEvent, func() error, error)
	Shutdown(ctx context.Context) error
}

type Config struct {
	// SnapshotTTL bounds how long a live snapshot outlives its last frame.
	SnapshotTTL time.Duration
	// EvidenceInterval is the minimum gap between two evidence uploads of one
	// session. Zero disables evidence capture.
	EvidenceInterval time.Duration
	EvidenceWorkers  int
	EvidenceQueue    int
	StorageTimeout   time.Duration
	PresignExpiry    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SnapshotTTL:      2 * time.Minute,
		EvidenceInterval: 5 * time.Second,
		EvidenceWorkers:  2,
		EvidenceQueue:    64,
		StorageTimeout:   3 * time.Second,
		PresignExpiry:    15 * time.Minute,
	}
}

type proctoringService struct {
	log         *logrus.Logger
	analyzer    *proctor.Analyzer
	repo        proctoringRepository.Repository
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	utils       utils.IUtils
	cfg         Config
	now         func() time.Time

	active cmap.ConcurrentMap[string, *ActiveSession]

	evidenceMu     sync.RWMutex
	evidence       chan evidenceJob
	evidenceClosed bool
	workers        sync.WaitGroup
}

// New wires the session registry and starts the evidence workers. redisServer
// and s3Client may be nil, in which case live snapshots and evidence capture
// are skipped.
func New(
	log *logrus.Logger,
	analyzer *proctor.Analyzer,
	repo proctoringRepository.Repository,
	redisServer redis.IRedis,
	s3Client s3.ItfS3,
	utils utils.IUtils,
	cfg Config,
) IProctoringService {
	defaults := DefaultConfig()
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = defaults.SnapshotTTL
	}
	if cfg.EvidenceWorkers <= 0 {
		cfg.EvidenceWorkers = defaults.EvidenceWorkers
	}
	if cfg.EvidenceQueue <= 0 {
		cfg.EvidenceQueue = defaults.EvidenceQueue
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = defaults.StorageTimeout
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = defaults.PresignExpiry
	}

	s := &proctoringService{
		log:         log,
		analyzer:    analyzer,
		repo:        repo,
		redisServer: redisServer,
		s3Client:    s3Client,
		utils:       utils,
		cfg:         cfg,
		now:         time.Now,
		active:      cmap.New[*ActiveSession](),
		evidence:    make(chan evidenceJob, cfg.EvidenceQueue),
	}

	for i := 0; i < cfg.EvidenceWorkers; i++ {
		s.workers.Add(1)
		go s.evidenceWorker()
	}

	return s
}

func (s *proctoringService) ActiveCount() int {
	return s.active.Count()
}

// Shutdown ends every active session, then drains the evidence queue.
func (s *proctoringService) Shutdown(ctx context.Context) error {
	for _, id := range s.active.Keys() {
		if _, err := s.EndSession(ctx, id); err != nil {
			s.log.WithFields(logrus.Fields{
				"session_id": id,
				"error":      err.Error(),
			}).Warn("Failed to end session during shutdown")
		}
	}

	s.stopEvidence()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
