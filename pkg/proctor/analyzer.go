package proctor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/disintegration/imaging"
)

// Classifier detects rectangles of one object class (frontal face, profile face)
// in a grayscale frame. Implementations must be safe for concurrent use.
type Classifier interface {
	Detect(ctx context.Context, gray *image.Gray) ([]image.Rectangle, error)
}

type ClassifierFunc func(ctx context.Context, gray *image.Gray) ([]image.Rectangle, error)

func (f ClassifierFunc) Detect(ctx context.Context, gray *image.Gray) ([]image.Rectangle, error) {
	return f(ctx, gray)
}

type Option func(*Analyzer)

func WithThresholds(t Thresholds) Option {
	return func(a *Analyzer) {
		a.thresholds = t
	}
}

// WithAnnotation toggles the overlay. When disabled the input bytes are returned
// unchanged.
func WithAnnotation(enabled bool) Option {
	return func(a *Analyzer) {
		if enabled {
			a.annotator = NewAnnotator()
		} else {
			a.annotator = nil
		}
	}
}

func WithJPEGQuality(quality int) Option {
	return func(a *Analyzer) {
		if quality > 0 && quality <= 100 {
			a.jpegQuality = quality
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// Analyzer is stateless apart from its shared read-only detectors; all per
// connection state lives in the Session passed to ProcessFrame.
type Analyzer struct {
	frontal     Classifier
	profile     Classifier
	thresholds  Thresholds
	annotator   *Annotator
	jpegQuality int
	now         func() time.Time
}

func New(frontal, profile Classifier, opts ...Option) (*Analyzer, error) {
	if frontal == nil || profile == nil {
		return nil, ErrMissingDetector
	}

	a := &Analyzer{
		frontal:     frontal,
		profile:     profile,
		thresholds:  DefaultThresholds(),
		annotator:   NewAnnotator(),
		jpegQuality: 70,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

func (a *Analyzer) CreateSession() *Session {
	return newSession(a.now())
}

// ProcessFrame runs the full violation pipeline on one encoded frame. The
// session is only mutated when the frame succeeds; a *DecodeError leaves it
// untouched and the caller is expected to move on to the next frame.
func (a *Analyzer) ProcessFrame(ctx context.Context, s *Session, raw []byte) (*FrameResult, error) {
	if s == nil {
		return nil, ErrNilSession
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Err: ErrEmptyFrame}
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Err: ErrEmptyFrame}
	}

	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	gray := toGray(img)
	size := gray.Bounds().Size()

	faces, err := a.detect(ctx, a.frontal, gray)
	if err != nil {
		return nil, fmt.Errorf("detect frontal faces: %w", err)
	}

	var (
		violations []string
		increments = map[ViolationKind]int{}
		center     *image.Point
		resolved   *image.Rectangle
		metrics    FrameMetrics
	)

	switch {
	case len(faces) == 0:
		profiles, err := a.detect(ctx, a.profile, gray)
		if err != nil {
			return nil, fmt.Errorf("detect profile faces: %w", err)
		}
		if len(profiles) > 0 {
			violations = append(violations, MsgProfile)
			increments[LookingAway]++
			metrics.FaceDetected = true
		} else {
			violations = append(violations, MsgNoFace)
			increments[NoFace]++
		}
	case len(faces) > 1:
		violations = append(violations, MsgMultipleFaces)
		increments[MultipleFaces]++
		faces = []image.Rectangle{LargestFace(faces)}
	}

	if len(faces) == 1 {
		face := faces[0]
		resolved = &face
		metrics.FaceDetected = true

		position := AnalyzePosition(face, size, a.thresholds)
		metrics.LookingStraight = position.LookingStraight
		hDev := position.HorizontalDeviation
		metrics.HorizontalDeviation = &hDev
		if !position.LookingStraight {
			violations = append(violations, MsgNotLooking)
			increments[LookingAway]++
		}

		status, ratio := AnalyzeDistance(face, size, a.thresholds)
		metrics.FaceSizeRatio = ratio
		switch status {
		case DistanceTooFar:
			violations = append(violations, MsgTooFar)
			increments[TooFar]++
		case DistanceTooClose:
			violations = append(violations, MsgTooClose)
			increments[TooClose]++
		}

		// Movement is reported but has no bucket in the breakdown.
		if prev, ok := s.lastCenter(); ok && Movement(prev, position.FaceCenter) > a.thresholds.MovementThreshold {
			violations = append(violations, MsgExcessiveMovement)
		}
		c := position.FaceCenter
		center = &c
	}

	next := s.prepare(increments, center)

	if violations == nil {
		violations = []string{}
	}
	metrics.CurrentViolations = violations
	metrics.ViolationCount = len(violations)
	metrics.TotalViolationRate = violationRate(next.counts.Total(), next.totalFrames)
	metrics.SessionDuration = round(a.now().Sub(s.startedAt).Seconds(), 1)
	metrics.TotalFrames = next.totalFrames
	metrics.ViolationsBreakdown = next.counts.Clone()

	out, format := raw, imaging.JPEG
	if a.annotator == nil {
		format = sourceFormat(raw)
	} else {
		canvas := a.annotator.Annotate(img, resolved, metrics)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(a.jpegQuality)); err != nil {
			return nil, fmt.Errorf("encode annotated frame: %w", err)
		}
		out = buf.Bytes()
	}

	s.commit(next)

	return &FrameResult{
		Image:   out,
		Format:  format,
		Metrics: metrics,
		Face:    resolved,
	}, nil
}

// detect runs a classifier and clips its output to the frame, dropping empty
// rectangles.
func (a *Analyzer) detect(ctx context.Context, c Classifier, gray *image.Gray) ([]image.Rectangle, error) {
	rects, err := c.Detect(ctx, gray)
	if err != nil {
		return nil, err
	}
	bounds := gray.Bounds()
	out := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		r = r.Canon().Intersect(bounds)
		if r.Empty() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// sourceFormat names the encoding of raw from its registered decoder.
func sourceFormat(raw []byte) imaging.Format {
	_, name, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return imaging.JPEG
	}
	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return imaging.JPEG
	}
	return format
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
