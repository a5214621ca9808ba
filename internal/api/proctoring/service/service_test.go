package proctoringService

import (
	"ProctorGolang/internal/api/proctoring"
	proctoringRepository "ProctorGolang/internal/api/proctoring/repository"
	"ProctorGolang/internal/entity"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"ProctorGolang/pkg/utils"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeSummaries struct {
	mu        sync.Mutex
	saved     map[string]entity.ProctoringSummary
	createErr error
	lastLimit int
}

func (f *fakeSummaries) CreateSummary(_ context.Context, summary entity.ProctoringSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.saved[summary.ID] = summary
	return nil
}

func (f *fakeSummaries) GetSummaryByID(_ context.Context, id string) (entity.ProctoringSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary, ok := f.saved[id]
	if !ok {
		return entity.ProctoringSummary{}, proctoring.ErrSummaryNotFound
	}
	return summary, nil
}

func (f *fakeSummaries) GetSummariesByInterviewID(_ context.Context, interviewID string, limit, offset int) ([]entity.ProctoringSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	var out []entity.ProctoringSummary
	for _, summary := range f.saved {
		if summary.InterviewID == interviewID {
			out = append(out, summary)
		}
	}
	return out, len(out), nil
}

type fakeRepo struct {
	summaries *fakeSummaries
}

func (f *fakeRepo) NewClient(bool) (proctoringRepository.Client, error) {
	return proctoringRepository.Client{
		Summaries: f.summaries,
		Commit:    func() error { return nil },
		Rollback:  func() error { return nil },
	}, nil
}

type fakeRedis struct {
	mu        sync.Mutex
	snapshots map[string]entity.LiveSnapshot
	events    []entity.ViolationEvent
	setErr    error
}

func (f *fakeRedis) SetSnapshot(_ context.Context, snapshot entity.LiveSnapshot, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.snapshots[snapshot.SessionID] = snapshot
	return nil
}

func (f *fakeRedis) GetSnapshot(_ context.Context, sessionID string) (entity.LiveSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.snapshots[sessionID]
	if !ok {
		return entity.LiveSnapshot{}, redis.ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (f *fakeRedis) DeleteSnapshot(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, sessionID)
	return nil
}

func (f *fakeRedis) PublishViolation(_ context.Context, event entity.ViolationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRedis) SubscribeViolations(_ context.Context, _ string) (<-chan entity.ViolationEvent, func() error) {
	ch := make(chan entity.ViolationEvent)
	return ch, func() error { close(ch); return nil }
}

type fakeS3 struct {
	mu        sync.Mutex
	uploads   []string
	uploadErr error
}

func (f *fakeS3) UploadObject(_ context.Context, key string, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, key)
	return "s3://evidence/" + key, nil
}

func (f *fakeS3) PresignUrl(key string, _ time.Duration) (string, error) {
	return "https://evidence.local/" + key, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func noDetections(context.Context, *image.Gray) ([]image.Rectangle, error) {
	return nil, nil
}

func testFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc       *proctoringService
	summaries *fakeSummaries
	redis     *fakeRedis
	s3        *fakeS3
}

// newFixture builds a service whose analyzer never finds a face, so every
// frame carries exactly one violation.
func newFixture(t *testing.T, cfg Config, withRedis, withS3 bool) *fixture {
	t.Helper()
	analyzer, err := proctor.New(proctor.ClassifierFunc(noDetections), proctor.ClassifierFunc(noDetections), proctor.WithAnnotation(false))
	if err != nil {
		t.Fatalf("proctor.New() error = %v", err)
	}

	f := &fixture{summaries: &fakeSummaries{saved: map[string]entity.ProctoringSummary{}}}
	var redisServer redis.IRedis
	if withRedis {
		f.redis = &fakeRedis{snapshots: map[string]entity.LiveSnapshot{}}
		redisServer = f.redis
	}
	var s3Client *fakeS3
	if withS3 {
		s3Client = &fakeS3{}
		f.s3 = s3Client
	}

	var svc IProctoringService
	if s3Client != nil {
		svc = New(quietLogger(), analyzer, &fakeRepo{summaries: f.summaries}, redisServer, s3Client, utils.New(), cfg)
	} else {
		svc = New(quietLogger(), analyzer, &fakeRepo{summaries: f.summaries}, redisServer, nil, utils.New(), cfg)
	}
	f.svc = svc.(*proctoringService)
	t.Cleanup(func() {
		_ = f.svc.Shutdown(context.Background())
	})
	return f
}

func startSession(t *testing.T, svc IProctoringService) *ActiveSession {
	t.Helper()
	as, err := svc.StartSession(context.Background(), proctoring.StartSessionRequest{InterviewID: "int-1", CandidateID: "cand-1"})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	return as
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, Config{EvidenceInterval: 0}, true, false)
	ctx := context.Background()
	as := startSession(t, f.svc)
	frame := testFrame(t)

	for i := 1; i <= 3; i++ {
		resp, err := f.svc.ProcessFrame(ctx, as.ID, frame)
		if err != nil {
			t.Fatalf("frame %d: ProcessFrame() error = %v", i, err)
		}
		if resp.SessionID != as.ID {
			t.Errorf("Expected session_id %s, got %s", as.ID, resp.SessionID)
		}
		if resp.Metrics.TotalFrames != i {
			t.Errorf("Expected total_frames=%d, got %d", i, resp.Metrics.TotalFrames)
		}
		if resp.Frame == "" {
			t.Errorf("Expected an encoded frame in the response")
		}
	}

	if _, err := f.svc.GetLiveSnapshot(ctx, as.ID); err != nil {
		t.Errorf("GetLiveSnapshot() error = %v", err)
	}

	summary, err := f.svc.EndSession(ctx, as.ID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if summary.TotalFrames != 3 {
		t.Errorf("Expected total_frames=3, got %d", summary.TotalFrames)
	}
	if summary.ViolationCounts[proctor.NoFace] != 3 {
		t.Errorf("Expected no_face=3, got %d", summary.ViolationCounts[proctor.NoFace])
	}
	if summary.ViolationRate != 100 {
		t.Errorf("Expected violation_rate=100, got %v", summary.ViolationRate)
	}
	if _, ok := f.summaries.saved[as.ID]; !ok {
		t.Errorf("Expected summary to be persisted")
	}
	if _, ok := f.redis.snapshots[as.ID]; ok {
		t.Errorf("Expected live snapshot to be deleted at session end")
	}
	if len(f.redis.events) != 3 {
		t.Errorf("Expected 3 violation events, got %d", len(f.redis.events))
	}
	if f.svc.ActiveCount() != 0 {
		t.Errorf("Expected no active sessions, got %d", f.svc.ActiveCount())
	}

	if _, err := f.svc.EndSession(ctx, as.ID); !errors.Is(err, proctoring.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on second EndSession, got %v", err)
	}
}

func TestProcessFrameSkipsUndecodable(t *testing.T) {
	f := newFixture(t, Config{}, false, false)
	ctx := context.Background()
	as := startSession(t, f.svc)

	if _, err := f.svc.ProcessFrame(ctx, as.ID, []byte("not an image")); !errors.Is(err, proctoring.ErrInvalidFrame) {
		t.Fatalf("Expected ErrInvalidFrame, got %v", err)
	}
	if _, err := f.svc.ProcessFrame(ctx, as.ID, testFrame(t)); err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	summary, err := f.svc.EndSession(ctx, as.ID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if summary.SkippedFrames != 1 {
		t.Errorf("Expected skipped_frames=1, got %d", summary.SkippedFrames)
	}
	if summary.TotalFrames != 1 {
		t.Errorf("Expected total_frames=1, got %d", summary.TotalFrames)
	}
}

func TestProcessFrameUnknownSession(t *testing.T) {
	f := newFixture(t, Config{}, false, false)
	if _, err := f.svc.ProcessFrame(context.Background(), "missing", testFrame(t)); !errors.Is(err, proctoring.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestEvidenceIsRateLimited(t *testing.T) {
	f := newFixture(t, Config{EvidenceInterval: time.Hour}, true, true)
	ctx := context.Background()
	as := startSession(t, f.svc)
	frame := testFrame(t)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.ProcessFrame(ctx, as.ID, frame); err != nil {
			t.Fatalf("ProcessFrame() error = %v", err)
		}
	}

	summary, err := f.svc.EndSession(ctx, as.ID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if len(summary.EvidenceKeys) != 1 {
		t.Fatalf("Expected 1 evidence key, got %d", len(summary.EvidenceKeys))
	}
	// Annotation is off, so evidence keeps the input png encoding.
	if want := "proctoring/int-1/" + as.ID + "/000001.png"; summary.EvidenceKeys[0] != want {
		t.Errorf("Expected key %s, got %s", want, summary.EvidenceKeys[0])
	}

	byFrame := eventsByFrame(f.redis)
	if len(byFrame) != 3 {
		t.Fatalf("Expected 3 violation events, got %d", len(byFrame))
	}
	if byFrame[1].EvidenceKey != summary.EvidenceKeys[0] {
		t.Errorf("Expected frame 1 event to carry key %s, got %q", summary.EvidenceKeys[0], byFrame[1].EvidenceKey)
	}
	if byFrame[2].EvidenceKey != "" {
		t.Errorf("Expected frame 2 event without evidence, got %s", byFrame[2].EvidenceKey)
	}

	list, err := f.svc.ListEvidence(ctx, as.ID)
	if err != nil {
		t.Fatalf("ListEvidence() error = %v", err)
	}
	if len(list.Evidence) != 1 || list.Evidence[0].URL != "https://evidence.local/"+summary.EvidenceKeys[0] {
		t.Errorf("Unexpected evidence list %+v", list.Evidence)
	}
}

func TestStorageFailuresDoNotFailFrames(t *testing.T) {
	f := newFixture(t, Config{EvidenceInterval: time.Millisecond}, true, true)
	f.redis.setErr = errors.New("redis down")
	f.s3.uploadErr = errors.New("bucket gone")
	ctx := context.Background()
	as := startSession(t, f.svc)

	if _, err := f.svc.ProcessFrame(ctx, as.ID, testFrame(t)); err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	summary, err := f.svc.EndSession(ctx, as.ID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if len(summary.EvidenceKeys) != 0 {
		t.Errorf("Expected no evidence keys after failed upload, got %v", summary.EvidenceKeys)
	}

	byFrame := eventsByFrame(f.redis)
	event, ok := byFrame[1]
	if !ok {
		t.Fatalf("Expected the violation event to be published after a failed upload")
	}
	if event.EvidenceKey != "" {
		t.Errorf("Expected no evidence key for a failed upload, got %s", event.EvidenceKey)
	}
}

func eventsByFrame(r *fakeRedis) map[int]entity.ViolationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]entity.ViolationEvent, len(r.events))
	for _, e := range r.events {
		out[e.Frame] = e
	}
	return out
}

func TestEndSessionWhileStreaming(t *testing.T) {
	frame := testFrame(t)

	for round := 0; round < 20; round++ {
		f := newFixture(t, Config{EvidenceInterval: time.Microsecond}, false, true)
		ctx := context.Background()
		as := startSession(t, f.svc)

		firstDone := make(chan struct{})
		accepted := make(chan int, 1)
		go func() {
			n := 0
			for i := 0; i < 50; i++ {
				_, err := f.svc.ProcessFrame(ctx, as.ID, frame)
				if errors.Is(err, proctoring.ErrSessionNotFound) {
					break
				}
				if err != nil {
					t.Errorf("ProcessFrame() error = %v", err)
					break
				}
				n++
				if n == 1 {
					close(firstDone)
				}
			}
			if n == 0 {
				close(firstDone)
			}
			accepted <- n
		}()

		<-firstDone
		summary, err := f.svc.EndSession(ctx, as.ID)
		if err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}
		n := <-accepted

		if summary.TotalFrames != n {
			t.Fatalf("round %d: Expected summary to include all %d accepted frames, got %d", round, n, summary.TotalFrames)
		}
		f.s3.mu.Lock()
		uploads := len(f.s3.uploads)
		f.s3.mu.Unlock()
		if len(summary.EvidenceKeys) != uploads {
			t.Fatalf("round %d: Expected %d evidence keys, got %d", round, uploads, len(summary.EvidenceKeys))
		}
		if _, err := f.svc.ProcessFrame(ctx, as.ID, frame); !errors.Is(err, proctoring.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound after EndSession, got %v", err)
		}
	}
}

func TestEndSessionSaveFailure(t *testing.T) {
	f := newFixture(t, Config{}, false, false)
	f.summaries.createErr = errors.New("connection refused")
	as := startSession(t, f.svc)

	summary, err := f.svc.EndSession(context.Background(), as.ID)
	if !errors.Is(err, proctoring.ErrSaveSummary) {
		t.Errorf("Expected ErrSaveSummary, got %v", err)
	}
	if summary == nil || summary.ID != as.ID {
		t.Errorf("Expected the computed summary to be returned alongside the error")
	}
}

func TestGetLiveSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("local only", func(t *testing.T) {
		f := newFixture(t, Config{}, false, false)
		as := startSession(t, f.svc)

		if _, err := f.svc.GetLiveSnapshot(ctx, as.ID); !errors.Is(err, proctoring.ErrSnapshotUnavailable) {
			t.Errorf("Expected ErrSnapshotUnavailable before first frame, got %v", err)
		}
		if _, err := f.svc.ProcessFrame(ctx, as.ID, testFrame(t)); err != nil {
			t.Fatalf("ProcessFrame() error = %v", err)
		}
		snapshot, err := f.svc.GetLiveSnapshot(ctx, as.ID)
		if err != nil {
			t.Fatalf("GetLiveSnapshot() error = %v", err)
		}
		if snapshot.Metrics.TotalFrames != 1 {
			t.Errorf("Expected total_frames=1, got %d", snapshot.Metrics.TotalFrames)
		}
		if _, err := f.svc.GetLiveSnapshot(ctx, "elsewhere"); !errors.Is(err, proctoring.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("shared cache", func(t *testing.T) {
		f := newFixture(t, Config{}, true, false)
		f.redis.snapshots["remote"] = entity.LiveSnapshot{SessionID: "remote", InterviewID: "int-9"}

		snapshot, err := f.svc.GetLiveSnapshot(ctx, "remote")
		if err != nil {
			t.Fatalf("GetLiveSnapshot() error = %v", err)
		}
		if snapshot.InterviewID != "int-9" {
			t.Errorf("Expected interview int-9, got %s", snapshot.InterviewID)
		}
		if _, err := f.svc.GetLiveSnapshot(ctx, "missing"); !errors.Is(err, proctoring.ErrSnapshotUnavailable) {
			t.Errorf("Expected ErrSnapshotUnavailable, got %v", err)
		}
	})
}

func TestListSummaries(t *testing.T) {
	f := newFixture(t, Config{}, false, false)
	ctx := context.Background()

	if _, err := f.svc.ListSummaries(ctx, "  ", proctoring.ListSummariesQuery{}); !errors.Is(err, proctoring.ErrInvalidInterviewID) {
		t.Errorf("Expected ErrInvalidInterviewID, got %v", err)
	}

	as := startSession(t, f.svc)
	if _, err := f.svc.EndSession(ctx, as.ID); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	resp, err := f.svc.ListSummaries(ctx, "int-1", proctoring.ListSummariesQuery{})
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	if resp.Total != 1 || len(resp.Summaries) != 1 {
		t.Errorf("Expected 1 summary, got total=%d len=%d", resp.Total, len(resp.Summaries))
	}
	if f.summaries.lastLimit != defaultSummaryLimit {
		t.Errorf("Expected default limit %d, got %d", defaultSummaryLimit, f.summaries.lastLimit)
	}

	got, err := f.svc.GetSummary(ctx, as.ID)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if got.SessionID != as.ID {
		t.Errorf("Expected session_id %s, got %s", as.ID, got.SessionID)
	}
}

func TestOptionalStoresDisabled(t *testing.T) {
	f := newFixture(t, Config{}, false, false)
	ctx := context.Background()

	if _, err := f.svc.ListEvidence(ctx, "any"); !errors.Is(err, proctoring.ErrEvidenceDisabled) {
		t.Errorf("Expected ErrEvidenceDisabled, got %v", err)
	}
	if _, _, err := f.svc.SubscribeViolations(ctx, "int-1"); !errors.Is(err, proctoring.ErrLiveFeedDisabled) {
		t.Errorf("Expected ErrLiveFeedDisabled, got %v", err)
	}
}

func TestListActiveSessionsOrdered(t *testing.T) {
	f := newFixture(t, Config{}, false, false)
	first := startSession(t, f.svc)
	time.Sleep(2 * time.Millisecond)
	second := startSession(t, f.svc)

	resp := f.svc.ListActiveSessions(context.Background())
	if resp.Total != 2 {
		t.Fatalf("Expected 2 active sessions, got %d", resp.Total)
	}
	if resp.Sessions[0].SessionID != first.ID || resp.Sessions[1].SessionID != second.ID {
		t.Errorf("Expected sessions ordered by start time")
	}
}

func TestShutdownEndsActiveSessions(t *testing.T) {
	f := newFixture(t, Config{EvidenceInterval: time.Hour}, false, true)
	ctx := context.Background()
	as := startSession(t, f.svc)
	if _, err := f.svc.ProcessFrame(ctx, as.ID, testFrame(t)); err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	if err := f.svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if f.svc.ActiveCount() != 0 {
		t.Errorf("Expected no active sessions after shutdown, got %d", f.svc.ActiveCount())
	}
	saved, ok := f.summaries.saved[as.ID]
	if !ok {
		t.Fatalf("Expected summary to be persisted on shutdown")
	}
	if len(saved.EvidenceKeys) != 1 {
		t.Errorf("Expected queued evidence to finish before shutdown, got %v", saved.EvidenceKeys)
	}

	second := startSession(t, f.svc)
	if _, err := f.svc.ProcessFrame(ctx, second.ID, testFrame(t)); err != nil {
		t.Errorf("Expected frames to keep working after evidence is stopped, got %v", err)
	}
}
