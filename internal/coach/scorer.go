package coach

import (
	"math"
	"time"
	"unicode/utf8"
)

const (
	// MinSaveSeconds is the default session length a record requires (strictly greater).
	MinSaveSeconds      = 10
	recordTranscriptMax = 500
)

// Scorecard holds the sub-scores computed once at session end.
type Scorecard struct {
	PaceScore       int `json:"paceScore"`
	FillerScore     int `json:"fillerScore"`
	EyeContactScore int `json:"eyeContactScore"`
	OverallScore    int `json:"overallScore"`
	TotalFillers    int `json:"totalFillers"`
}

// PaceScore bands: 130..170 → 100, 120..180 → 80, 100..200 → 60, any speech → 40, none → 0.
func PaceScore(pace int) int {
	switch {
	case pace >= 130 && pace <= 170:
		return 100
	case pace >= 120 && pace <= 180:
		return 80
	case pace >= 100 && pace <= 200:
		return 60
	case pace > 0:
		return 40
	default:
		return 0
	}
}

// FillerScore bands the filler rate (fillers per 100 words).
func FillerScore(totalFillers, wordCount int) int {
	if wordCount == 0 {
		return 0
	}
	rate := float64(totalFillers) / float64(wordCount) * 100
	switch {
	case rate == 0:
		return 100
	case rate < 2:
		return 90
	case rate < 5:
		return 70
	case rate < 10:
		return 50
	default:
		return 30
	}
}

func OverallScore(paceScore, fillerScore, eyeContactScore int) int {
	return int(math.Round(float64(paceScore+fillerScore+eyeContactScore) / 3))
}

func Strengths(paceScore, fillerScore, eyeContactScore int) []string {
	var out []string
	if paceScore >= 80 {
		out = append(out, "Excellent speaking pace")
	}
	if fillerScore >= 80 {
		out = append(out, "Minimal use of filler words")
	}
	if eyeContactScore >= 70 {
		out = append(out, "Good eye contact with audience")
	}
	if len(out) == 0 {
		out = append(out, "Completed the practice session")
	}
	return out
}

func Improvements(paceScore, fillerScore, eyeContactScore int) []string {
	var out []string
	if paceScore < 60 {
		out = append(out, "Work on maintaining consistent pace")
	}
	if fillerScore < 60 {
		out = append(out, "Reduce filler words by pausing instead")
	}
	if eyeContactScore < 50 {
		out = append(out, "Improve eye contact with camera")
	}
	if len(out) == 0 {
		out = append(out, "Keep practicing to maintain skills")
	}
	return out
}

// ScoreSession converts the final running signals into a scorecard.
func ScoreSession(pace, eyeContact, totalFillers, wordCount int) Scorecard {
	paceScore := PaceScore(pace)
	fillerScore := FillerScore(totalFillers, wordCount)
	return Scorecard{
		PaceScore:       paceScore,
		FillerScore:     fillerScore,
		EyeContactScore: eyeContact,
		OverallScore:    OverallScore(paceScore, fillerScore, eyeContact),
		TotalFillers:    totalFillers,
	}
}

// ShouldSave reports whether a finished session is long enough to keep.
// Both conditions are required: elapsed strictly above minSeconds and at least one word.
func ShouldSave(elapsedSeconds, wordCount, minSeconds int) bool {
	return elapsedSeconds > minSeconds && wordCount > 0
}

type RecordMetrics struct {
	Pace         int          `json:"pace"`
	FillerWords  []FillerWord `json:"fillerWords"`
	EyeContact   int          `json:"eyeContact"`
	Sentiment    Sentiment    `json:"sentiment"`
	PaceScore    int          `json:"paceScore"`
	FillerScore  int          `json:"fillerScore"`
	TotalFillers int          `json:"totalFillers"`
}

// SessionRecord is the persisted summary of one completed session.
type SessionRecord struct {
	ID           string        `json:"id"`
	Date         time.Time     `json:"date"`
	Duration     int           `json:"duration"`
	WordCount    int           `json:"wordCount"`
	OverallScore int           `json:"overallScore"`
	Metrics      RecordMetrics `json:"metrics"`
	Transcript   string        `json:"transcript"`
	Strengths    []string      `json:"strengths"`
	Improvements []string      `json:"improvements"`
}

// TruncateTranscript keeps the first 500 characters.
func TruncateTranscript(s string) string {
	if utf8.RuneCountInString(s) <= recordTranscriptMax {
		return s
	}
	runes := []rune(s)
	return string(runes[:recordTranscriptMax])
}
