package proctor

import (
	"image"

	"github.com/disintegration/imaging"
)

type ViolationKind string

const (
	NoFace        ViolationKind = "no_face"
	MultipleFaces ViolationKind = "multiple_faces"
	LookingAway   ViolationKind = "looking_away"
	TooClose      ViolationKind = "too_close"
	TooFar        ViolationKind = "too_far"
)

// ViolationKinds is the fixed key set of a session's violation counts.
var ViolationKinds = []ViolationKind{NoFace, MultipleFaces, LookingAway, TooClose, TooFar}

const (
	MsgProfile           = "Person turned to side profile"
	MsgNoFace            = "No face detected"
	MsgMultipleFaces     = "Multiple faces detected"
	MsgNotLooking        = "Not looking straight at camera"
	MsgTooFar            = "Sitting too far from camera"
	MsgTooClose          = "Sitting too close to camera"
	MsgExcessiveMovement = "Excessive movement detected"
)

type DistanceStatus string

const (
	DistanceTooFar   DistanceStatus = "too_far"
	DistanceTooClose DistanceStatus = "too_close"
	DistanceGood     DistanceStatus = "good_distance"
)

type Thresholds struct {
	MaxHorizontalDeviation float64 `yaml:"max_horizontal_deviation" validate:"gt=0,lte=1"`
	MaxVerticalDeviation   float64 `yaml:"max_vertical_deviation" validate:"gt=0,lte=1"`
	MinFaceRatio           float64 `yaml:"min_face_ratio" validate:"gte=0,ltfield=MaxFaceRatio"`
	MaxFaceRatio           float64 `yaml:"max_face_ratio" validate:"gt=0,lte=1"`
	MovementThreshold      float64 `yaml:"movement_threshold" validate:"gt=0"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxHorizontalDeviation: 0.20,
		MaxVerticalDeviation:   0.15,
		MinFaceRatio:           0.02,
		MaxFaceRatio:           0.35,
		MovementThreshold:      50,
	}
}

type ViolationCounts map[ViolationKind]int

func newViolationCounts() ViolationCounts {
	counts := make(ViolationCounts, len(ViolationKinds))
	for _, kind := range ViolationKinds {
		counts[kind] = 0
	}
	return counts
}

func (c ViolationCounts) Total() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

func (c ViolationCounts) Clone() ViolationCounts {
	out := make(ViolationCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type FrameMetrics struct {
	FaceDetected        bool            `json:"face_detected"`
	LookingStraight     bool            `json:"looking_straight"`
	HorizontalDeviation *float64        `json:"horizontal_deviation,omitempty"`
	FaceSizeRatio       float64         `json:"face_size_ratio"`
	CurrentViolations   []string        `json:"current_violations"`
	ViolationCount      int             `json:"violation_count"`
	TotalViolationRate  float64         `json:"total_violation_rate"`
	SessionDuration     float64         `json:"session_duration"`
	TotalFrames         int             `json:"total_frames"`
	ViolationsBreakdown ViolationCounts `json:"violations_breakdown"`
}

// FrameResult is the output of one processed frame. Face is nil unless a single
// frontal face was resolved. Format is the encoding of Image: JPEG when
// annotated, the input's own format otherwise.
type FrameResult struct {
	Image   []byte
	Format  imaging.Format
	Metrics FrameMetrics
	Face    *image.Rectangle
}

var formatMedia = map[imaging.Format]struct{ contentType, ext string }{
	imaging.JPEG: {"image/jpeg", ".jpg"},
	imaging.PNG:  {"image/png", ".png"},
	imaging.GIF:  {"image/gif", ".gif"},
	imaging.TIFF: {"image/tiff", ".tif"},
	imaging.BMP:  {"image/bmp", ".bmp"},
}

// ContentType is the MIME type of f, or application/octet-stream when unknown.
func ContentType(f imaging.Format) string {
	if m, ok := formatMedia[f]; ok {
		return m.contentType
	}
	return "application/octet-stream"
}

// Extension is the file extension used when storing an image of format f.
func Extension(f imaging.Format) string {
	if m, ok := formatMedia[f]; ok {
		return m.ext
	}
	return ".bin"
}
