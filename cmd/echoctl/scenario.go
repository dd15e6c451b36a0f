package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/echocoach/echo/internal/facedetect"
	"github.com/echocoach/echo/internal/recognizer"
)

const (
	defaultReplayClock = 50 * time.Millisecond
	frameWidth         = 640.0
	faceBoxSize        = 200.0
)

// Scenario is a scripted practice run. Step delays are in session time: replay scales them to
// its accelerated clock, drive plays them in real time.
type Scenario struct {
	Name            string         `yaml:"name"`
	DurationSeconds int            `yaml:"duration_seconds"`
	ClockInterval   time.Duration  `yaml:"clock_interval"`
	Camera          *bool          `yaml:"camera"`
	Face            ScenarioFace   `yaml:"face"`
	Steps           []ScenarioStep `yaml:"steps"`
}

// ScenarioFace shapes the synthetic landmark frames. Offset moves the face horizontally as a
// fraction of half the frame width; Tilt is the eye level difference in pixels.
type ScenarioFace struct {
	Absent bool    `yaml:"absent"`
	Offset float64 `yaml:"offset"`
	Tilt   float64 `yaml:"tilt"`
}

type ScenarioStep struct {
	After   time.Duration `yaml:"after"`
	Final   string        `yaml:"final"`
	Interim string        `yaml:"interim"`
	Error   string        `yaml:"error"`
	End     bool          `yaml:"end"`
}

func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

func ParseScenario(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if sc.DurationSeconds <= 0 {
		return errors.New("scenario: duration_seconds must be positive")
	}
	if sc.ClockInterval < 0 {
		return errors.New("scenario: clock_interval must not be negative")
	}
	if sc.Face.Offset < -1 || sc.Face.Offset > 1 {
		return errors.New("scenario: face.offset must be within [-1, 1]")
	}
	for i, st := range sc.Steps {
		if st.After < 0 {
			return fmt.Errorf("scenario: step %d: after must not be negative", i+1)
		}
		kinds := 0
		if st.Final != "" || st.Interim != "" {
			kinds++
		}
		if st.Error != "" {
			kinds++
		}
		if st.End {
			kinds++
		}
		if kinds != 1 {
			return fmt.Errorf("scenario: step %d: set exactly one of text, error or end", i+1)
		}
	}
	return nil
}

func (sc *Scenario) cameraEnabled() bool {
	return sc.Camera == nil || *sc.Camera
}

func (sc *Scenario) replayClock() time.Duration {
	if sc.ClockInterval > 0 {
		return sc.ClockInterval
	}
	return defaultReplayClock
}

// RecognizerSteps converts the scenario into script steps, scaling delays so one session second
// lasts clock.
func (sc *Scenario) RecognizerSteps(clock time.Duration) []recognizer.Step {
	scale := float64(clock) / float64(time.Second)
	steps := make([]recognizer.Step, 0, len(sc.Steps))
	for _, st := range sc.Steps {
		step := recognizer.Step{
			Delay:   time.Duration(float64(st.After) * scale),
			Final:   st.Final,
			Interim: st.Interim,
			End:     st.End,
		}
		if st.Error != "" {
			step.Error = recognizer.ParseErrorKind(strings.TrimSpace(st.Error))
		}
		steps = append(steps, step)
	}
	return steps
}

// Frame builds the landmark geometry sent on every clock tick.
func (sc *Scenario) Frame() facedetect.Frame {
	if sc.Face.Absent {
		return facedetect.Frame{Width: frameWidth}
	}
	centerX := frameWidth/2 + sc.Face.Offset*frameWidth/2
	eyeY := 200.0
	return facedetect.Frame{
		Width: frameWidth,
		Box: &facedetect.Box{
			X:      centerX - faceBoxSize/2,
			Y:      140,
			Width:  faceBoxSize,
			Height: faceBoxSize,
		},
		LeftEye:  []facedetect.Point{{X: centerX - 40, Y: eyeY}},
		RightEye: []facedetect.Point{{X: centerX + 40, Y: eyeY + sc.Face.Tilt}},
		Nose:     []facedetect.Point{{X: centerX, Y: eyeY + 40}},
	}
}
