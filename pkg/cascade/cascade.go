package cascade

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

const (
	FrontalFace = "haarcascade_frontalface_default.xml"
	ProfileFace = "haarcascade_profileface.xml"
)

var ErrPoolClosed = errors.New("cascade pool closed")

var searchDirs = []string{
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv4/haarcascades",
	"/usr/share/opencv/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
	MaxSize      image.Point
}

func DefaultParams() Params {
	return Params{
		ScaleFactor:  1.3,
		MinNeighbors: 5,
	}
}

// ResolveModel looks for name in dir first, then in the usual OpenCV install
// locations.
func ResolveModel(dir, name string) (string, error) {
	candidates := make([]string, 0, len(searchDirs)+2)
	if dir != "" {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	candidates = append(candidates, name)
	for _, d := range searchDirs {
		candidates = append(candidates, filepath.Join(d, name))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("cascade model %s not found in %s or standard OpenCV locations", name, dir)
}

// Pool owns a fixed set of loaded classifiers. A gocv classifier is not safe
// for concurrent use, so each Detect call checks one out for its duration.
type Pool struct {
	params Params
	free   chan *gocv.CascadeClassifier
	all    []*gocv.CascadeClassifier

	closeOnce sync.Once
	done      chan struct{}
}

func NewPool(modelPath string, size int, params Params) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	if params.ScaleFactor <= 1 {
		params.ScaleFactor = DefaultParams().ScaleFactor
	}
	if params.MinNeighbors <= 0 {
		params.MinNeighbors = DefaultParams().MinNeighbors
	}

	p := &Pool{
		params: params,
		free:   make(chan *gocv.CascadeClassifier, size),
		done:   make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		c := gocv.NewCascadeClassifier()
		if !c.Load(modelPath) {
			c.Close()
			p.Close()
			return nil, fmt.Errorf("failed to load cascade classifier from %s", modelPath)
		}
		p.all = append(p.all, &c)
		p.free <- &c
	}

	return p, nil
}

func (p *Pool) Detect(ctx context.Context, gray *image.Gray) ([]image.Rectangle, error) {
	var c *gocv.CascadeClassifier
	select {
	case c = <-p.free:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}
	defer func() { p.free <- c }()

	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("convert frame to mat: %w", err)
	}
	defer mat.Close()

	return c.DetectMultiScaleWithParams(
		mat,
		p.params.ScaleFactor,
		p.params.MinNeighbors,
		0,
		p.params.MinSize,
		p.params.MaxSize,
	), nil
}

// Close waits for in-flight detections to hand their classifier back, then
// releases every classifier.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.done)
		for range p.all {
			c := <-p.free
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// FacePools pairs the frontal and profile classifiers used per frame.
type FacePools struct {
	Frontal *Pool
	Profile *Pool
}

// LoadFacePools resolves both stock face models under dir and loads size
// classifiers of each.
func LoadFacePools(dir string, size int, params Params) (*FacePools, error) {
	frontalPath, err := ResolveModel(dir, FrontalFace)
	if err != nil {
		return nil, err
	}
	profilePath, err := ResolveModel(dir, ProfileFace)
	if err != nil {
		return nil, err
	}

	frontal, err := NewPool(frontalPath, size, params)
	if err != nil {
		return nil, err
	}
	profile, err := NewPool(profilePath, size, params)
	if err != nil {
		return nil, errors.Join(err, frontal.Close())
	}

	return &FacePools{Frontal: frontal, Profile: profile}, nil
}

func (f *FacePools) Close() error {
	return errors.Join(f.Frontal.Close(), f.Profile.Close())
}
