package facedetect

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
)

// Looking directions reported with every result.
const (
	DirectionCenter  = "center"
	DirectionLeft    = "left"
	DirectionRight   = "right"
	DirectionAway    = "away"
	DirectionNoFace  = "no_face"
	DirectionUnknown = "unknown"
	DirectionError   = "error"
)

const (
	centerWeight        = 0.6
	levelWeight         = 0.4
	offCenterThreshold  = 0.3
	eyeLevelAwayPixels  = 20.0
	eyeLevelPenaltyRate = 2.0
)

var (
	ErrNotReady     = errors.New("face detector models not loaded")
	ErrInvalidFrame = errors.New("invalid frame geometry")
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Frame is the landmark geometry of one video frame. A frame without a box means no face was
// found by the capture side.
type Frame struct {
	Width    float64 `json:"width"`
	Box      *Box    `json:"box,omitempty"`
	LeftEye  []Point `json:"left_eye,omitempty"`
	RightEye []Point `json:"right_eye,omitempty"`
	Nose     []Point `json:"nose,omitempty"`
}

type Result struct {
	FaceDetected     bool   `json:"face_detected"`
	EyeContactRaw    int    `json:"eye_contact_raw"`
	LookingDirection string `json:"looking_direction"`
}

// Detector estimates eye contact from a frame. Detect may be slow; callers run it off the
// session goroutine.
type Detector interface {
	LoadModels(ctx context.Context) error
	Ready() bool
	Detect(ctx context.Context, frame Frame) (Result, error)
}

// Loader prepares whatever the detector needs before the first Detect.
type Loader func(ctx context.Context) error

// LandmarkDetector scores eye contact from face box centering and eye levelness.
type LandmarkDetector struct {
	load  Loader
	ready atomic.Bool
}

func NewLandmarkDetector(load Loader) *LandmarkDetector {
	return &LandmarkDetector{load: load}
}

func (d *LandmarkDetector) LoadModels(ctx context.Context) error {
	if d.load != nil {
		if err := d.load(ctx); err != nil {
			return err
		}
	}
	d.ready.Store(true)
	return nil
}

func (d *LandmarkDetector) Ready() bool {
	return d.ready.Load()
}

func (d *LandmarkDetector) Detect(ctx context.Context, frame Frame) (Result, error) {
	if !d.Ready() {
		return Result{LookingDirection: DirectionUnknown}, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return Result{LookingDirection: DirectionError}, err
	}
	return Score(frame)
}

// Score applies the centering/levelness heuristic to one frame.
func Score(frame Frame) (Result, error) {
	if frame.Box == nil {
		return Result{LookingDirection: DirectionNoFace}, nil
	}
	if frame.Width <= 0 || len(frame.LeftEye) == 0 || len(frame.RightEye) == 0 {
		return Result{LookingDirection: DirectionError}, ErrInvalidFrame
	}

	frameCenterX := frame.Width / 2
	faceCenterX := frame.Box.X + frame.Box.Width/2
	centerOffset := math.Abs(faceCenterX-frameCenterX) / frameCenterX
	centerScore := math.Max(0, 100-centerOffset*100)

	eyeLevelDiff := math.Abs(centroid(frame.LeftEye).Y - centroid(frame.RightEye).Y)
	levelScore := math.Max(0, 100-eyeLevelDiff*eyeLevelPenaltyRate)

	direction := DirectionCenter
	if centerOffset > offCenterThreshold {
		if faceCenterX < frameCenterX {
			direction = DirectionLeft
		} else {
			direction = DirectionRight
		}
	}
	if eyeLevelDiff > eyeLevelAwayPixels {
		direction = DirectionAway
	}

	return Result{
		FaceDetected:     true,
		EyeContactRaw:    int(math.Round(centerScore*centerWeight + levelScore*levelWeight)),
		LookingDirection: direction,
	}, nil
}

func centroid(points []Point) Point {
	var sum Point
	for _, p := range points {
		sum.X += p.X
		sum.Y += p.Y
	}
	n := float64(len(points))
	return Point{X: sum.X / n, Y: sum.Y / n}
}

// Static returns a fixed result. Used by the CLI replay and in tests.
type Static struct {
	Result   Result
	Err      error
	NotReady bool
}

func (s *Static) LoadModels(context.Context) error { return nil }

func (s *Static) Ready() bool { return !s.NotReady }

func (s *Static) Detect(context.Context, Frame) (Result, error) {
	return s.Result, s.Err
}
