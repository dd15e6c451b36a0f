package coach

import "strings"

// Accumulator keeps the append-only transcript built from cumulative recognizer results.
//
// Recognizers deliver the whole final text seen so far on every result, so Apply diffs against
// the previously seen length and only appends the unseen suffix. Interim text is display-only.
type Accumulator struct {
	transcript string
	seenFinal  int
	wordCount  int
	display    string
	newRun     bool
}

// Apply ingests one recognizer result and returns the suffix appended to the transcript
// (empty when nothing new was final).
func (a *Accumulator) Apply(finalText, interimText string) string {
	var suffix string
	switch {
	case finalText == "":
	case a.newRun:
		suffix = a.separated(finalText)
		a.seenFinal = len(finalText)
		a.newRun = false
	case len(finalText) > a.seenFinal:
		suffix = finalText[a.seenFinal:]
		a.seenFinal = len(finalText)
	case len(finalText) < a.seenFinal:
		// A restarted recognizer begins a fresh cumulative buffer.
		suffix = a.separated(finalText)
		a.seenFinal = len(finalText)
	}

	if suffix != "" {
		a.transcript += suffix
		a.wordCount = countWords(a.transcript)
	}

	switch {
	case a.transcript != "":
		a.display = a.transcript
	case interimText != "":
		a.display = interimText
	}
	return suffix
}

// NewRun marks the start of a new recognition run. The next final text is a fresh cumulative
// buffer and is appended in full.
func (a *Accumulator) NewRun() {
	a.seenFinal = 0
	a.newRun = true
}

func (a *Accumulator) separated(text string) string {
	if a.transcript != "" && !strings.HasSuffix(a.transcript, " ") && !strings.HasPrefix(text, " ") {
		return " " + text
	}
	return text
}

func (a *Accumulator) Transcript() string { return a.transcript }

func (a *Accumulator) WordCount() int { return a.wordCount }

// Display is the text shown to the user: final transcript, else interim, else the last value.
func (a *Accumulator) Display() string { return a.display }

func (a *Accumulator) Reset() { *a = Accumulator{} }

func countWords(text string) int {
	return len(strings.Fields(text))
}
