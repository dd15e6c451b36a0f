package coach

import "math"

const eyeContactCapacity = 10

// EyeContactSampler buffers the most recent per-poll eye-contact scores.
type EyeContactSampler struct {
	samples *Ring[int]
}

func NewEyeContactSampler() *EyeContactSampler {
	return &EyeContactSampler{samples: NewRing[int](eyeContactCapacity)}
}

// Record appends raw when a face was detected and 0 otherwise.
func (e *EyeContactSampler) Record(faceDetected bool, raw int) {
	if !faceDetected {
		e.samples.Push(0)
		return
	}
	e.samples.Push(clampScore(raw))
}

// Disable forces the buffer to a single zero so the displayed score reads 0.
func (e *EyeContactSampler) Disable() {
	e.samples.Reset(0)
}

// Score is the rounded mean of the buffer, 0 when empty.
func (e *EyeContactSampler) Score() int {
	values := e.samples.Values()
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(values))))
}

func (e *EyeContactSampler) Samples() []int { return e.samples.Values() }

func (e *EyeContactSampler) Reset() { e.samples.Reset() }

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
