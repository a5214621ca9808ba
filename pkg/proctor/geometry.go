package proctor

import (
	"image"
	"math"
)

type PositionAnalysis struct {
	LookingStraight     bool
	HorizontalDeviation float64
	VerticalDeviation   float64
	FaceCenter          image.Point
}

// AnalyzePosition measures how far the face center sits from the frame center,
// normalized by frame width and height. Centers use integer halving.
func AnalyzePosition(face image.Rectangle, frame image.Point, t Thresholds) PositionAnalysis {
	center := faceCenter(face)
	frameCenter := image.Pt(frame.X/2, frame.Y/2)

	hDev := math.Abs(float64(center.X-frameCenter.X)) / float64(frame.X)
	vDev := math.Abs(float64(center.Y-frameCenter.Y)) / float64(frame.Y)

	return PositionAnalysis{
		LookingStraight:     hDev < t.MaxHorizontalDeviation && vDev < t.MaxVerticalDeviation,
		HorizontalDeviation: hDev,
		VerticalDeviation:   vDev,
		FaceCenter:          center,
	}
}

// AnalyzeDistance classifies the face-to-frame area ratio. too_far is checked
// before too_close; both bounds are exclusive.
func AnalyzeDistance(face image.Rectangle, frame image.Point, t Thresholds) (DistanceStatus, float64) {
	faceArea := face.Dx() * face.Dy()
	frameArea := frame.X * frame.Y
	ratio := float64(faceArea) / float64(frameArea)

	switch {
	case ratio < t.MinFaceRatio:
		return DistanceTooFar, ratio
	case ratio > t.MaxFaceRatio:
		return DistanceTooClose, ratio
	default:
		return DistanceGood, ratio
	}
}

func Movement(prev, cur image.Point) float64 {
	return math.Hypot(float64(cur.X-prev.X), float64(cur.Y-prev.Y))
}

// LargestFace returns the rectangle with the biggest area, keeping the first on ties.
func LargestFace(faces []image.Rectangle) image.Rectangle {
	largest := faces[0]
	for _, f := range faces[1:] {
		if f.Dx()*f.Dy() > largest.Dx()*largest.Dy() {
			largest = f
		}
	}
	return largest
}

func faceCenter(face image.Rectangle) image.Point {
	return image.Pt(face.Min.X+face.Dx()/2, face.Min.Y+face.Dy()/2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
