package coach

import (
	"math"
	"time"
)

const (
	paceHistoryCapacity = 20
	// Elapsed time is clamped to this floor; below it pace is still reported but not charted.
	minElapsedMinutes = 0.1
)

// WordsPerMinute is wordCount over elapsed minutes, with elapsed clamped to 0.1 minutes.
// A 3 second session with 100 words therefore reads 1000 WPM.
func WordsPerMinute(wordCount int, elapsed time.Duration) int {
	if wordCount <= 0 {
		return 0
	}
	minutes := math.Max(minElapsedMinutes, elapsed.Minutes())
	return int(math.Round(float64(wordCount) / minutes))
}

// PaceEstimator derives pace and keeps a bounded chart history.
type PaceEstimator struct {
	history      *Ring[int]
	sampledWords int
}

func NewPaceEstimator() *PaceEstimator {
	return &PaceEstimator{history: NewRing[int](paceHistoryCapacity)}
}

// Sample computes the current pace and appends it to the history when the word count has grown
// since the last appended sample and the session is past the 6 second floor.
func (p *PaceEstimator) Sample(wordCount int, elapsed time.Duration) int {
	pace := WordsPerMinute(wordCount, elapsed)
	if wordCount > p.sampledWords && elapsed.Minutes() > minElapsedMinutes {
		p.history.Push(pace)
		p.sampledWords = wordCount
	}
	return pace
}

func (p *PaceEstimator) History() []int { return p.history.Values() }

func (p *PaceEstimator) Reset() {
	p.history.Reset()
	p.sampledWords = 0
}
