package coach

import "time"

// silenceSeconds without new words before the speaking indicator clears.
const silenceSeconds = 2

// Snapshot is the latest displayed metrics.
type Snapshot struct {
	Pace        int          `json:"pace"`
	FillerWords []FillerWord `json:"fillerWords"`
	EyeContact  int          `json:"eyeContact"`
	Sentiment   Sentiment    `json:"sentiment"`
	Transcript  string       `json:"transcript"`
}

func EmptySnapshot() Snapshot {
	return Snapshot{
		FillerWords: []FillerWord{},
		Sentiment:   sentimentSilent,
	}
}

// Session is the mutable state of one practice attempt. It is not safe for concurrent use;
// the owning controller serializes every call.
type Session struct {
	StartedAt      time.Time
	ElapsedSeconds int

	transcript Accumulator
	fillers    *FillerCounter
	pace       *PaceEstimator
	eyeContact *EyeContactSampler

	speaking  bool
	silentFor int
	lastWords int
	current   Snapshot
}

func NewSession(startedAt time.Time) *Session {
	return &Session{
		StartedAt:  startedAt,
		fillers:    NewFillerCounter(),
		pace:       NewPaceEstimator(),
		eyeContact: NewEyeContactSampler(),
		current:    EmptySnapshot(),
	}
}

// ApplyTranscript ingests one recognizer result. It reports whether the word count grew.
func (s *Session) ApplyTranscript(finalText, interimText string) bool {
	if suffix := s.transcript.Apply(finalText, interimText); suffix != "" {
		s.fillers.Scan(s.transcript.Transcript())
	}
	s.current.Transcript = s.transcript.Display()

	words := s.transcript.WordCount()
	if words <= s.lastWords {
		return false
	}
	s.lastWords = words
	s.speaking = true
	s.silentFor = 0
	return true
}

// RecognizerRestarted starts a new recognition run; its cumulative results do not extend the
// previous run's.
func (s *Session) RecognizerRestarted() { s.transcript.NewRun() }

// Tick advances the one-second session clock.
func (s *Session) Tick() {
	s.ElapsedSeconds++
	s.silentFor++
	if s.silentFor >= silenceSeconds {
		s.speaking = false
	}
}

// RecordEyeContact appends one detector sample.
func (s *Session) RecordEyeContact(faceDetected bool, raw int) {
	s.eyeContact.Record(faceDetected, raw)
}

// DisableEyeContact forces the eye-contact score to read 0.
func (s *Session) DisableEyeContact() {
	s.eyeContact.Disable()
}

// Recompute derives a fresh snapshot from the current state. Calling it twice with the same
// now and no events in between yields identical snapshots.
func (s *Session) Recompute(now time.Time) Snapshot {
	elapsed := now.Sub(s.StartedAt)
	words := s.transcript.WordCount()
	pace := s.pace.Sample(words, elapsed)
	fillers := s.fillers.Top(topFillerCount)
	eye := s.eyeContact.Score()

	display := s.transcript.Display()
	if display == "" {
		display = s.current.Transcript
	}

	s.current = Snapshot{
		Pace:        pace,
		FillerWords: fillers,
		EyeContact:  eye,
		Sentiment:   ClassifySentiment(pace, eye, len(fillers)),
		Transcript:  display,
	}
	return s.Current()
}

// Current returns a copy of the last computed snapshot.
func (s *Session) Current() Snapshot {
	out := s.current
	out.FillerWords = append([]FillerWord{}, s.current.FillerWords...)
	return out
}

func (s *Session) WordCount() int { return s.transcript.WordCount() }

func (s *Session) Transcript() string { return s.transcript.Transcript() }

func (s *Session) TotalFillers() int { return s.fillers.Total() }

func (s *Session) FillerCount(lexeme string) int { return s.fillers.Count(lexeme) }

func (s *Session) LastScannedOffset() int { return s.fillers.Offset() }

func (s *Session) PaceHistory() []int { return s.pace.History() }

func (s *Session) EyeContactSamples() []int { return s.eyeContact.Samples() }

func (s *Session) Speaking() bool { return s.speaking }

// Score computes the scorecard from the last displayed snapshot.
func (s *Session) Score() Scorecard {
	return ScoreSession(s.current.Pace, s.current.EyeContact, s.fillers.Total(), s.transcript.WordCount())
}

// Record builds the immutable session record for a scored session.
func (s *Session) Record(id string, date time.Time, card Scorecard) SessionRecord {
	snap := s.Current()
	return SessionRecord{
		ID:           id,
		Date:         date,
		Duration:     s.ElapsedSeconds,
		WordCount:    s.transcript.WordCount(),
		OverallScore: card.OverallScore,
		Metrics: RecordMetrics{
			Pace:         snap.Pace,
			FillerWords:  snap.FillerWords,
			EyeContact:   snap.EyeContact,
			Sentiment:    snap.Sentiment,
			PaceScore:    card.PaceScore,
			FillerScore:  card.FillerScore,
			TotalFillers: card.TotalFillers,
		},
		Transcript:   TruncateTranscript(snap.Transcript),
		Strengths:    Strengths(card.PaceScore, card.FillerScore, card.EyeContactScore),
		Improvements: Improvements(card.PaceScore, card.FillerScore, card.EyeContactScore),
	}
}
