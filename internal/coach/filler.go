package coach

import (
	"sort"
	"strings"
)

// Lexicon lists filler lexemes in display tie-break order.
var Lexicon = []string{
	"um", "umm", "ummm",
	"uh", "uhh", "uhhh",
	"er", "err", "errr",
	"ah", "ahh", "ahhh",
	"like", "literally",
	"you know", "you see",
	"basically", "actually",
	"sort of", "kind of",
	"i mean", "i guess",
	"right", "okay", "so",
	"well", "anyway",
	"whatever", "obviously",
}

const (
	topFillerCount   = 5
	tokenPunctuation = ".,!?;:"
)

type FillerWord struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// FillerCounter tallies lexicon hits over the unscanned tail of a growing transcript.
type FillerCounter struct {
	lexicon []string
	counts  map[string]int
	offset  int
}

func NewFillerCounter() *FillerCounter {
	return NewFillerCounterWithLexicon(Lexicon)
}

func NewFillerCounterWithLexicon(lexicon []string) *FillerCounter {
	lex := make([]string, 0, len(lexicon))
	for _, w := range lexicon {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			lex = append(lex, w)
		}
	}
	return &FillerCounter{
		lexicon: lex,
		counts:  make(map[string]int),
	}
}

// Scan counts fillers in transcript[offset:] and advances the offset to len(transcript).
func (c *FillerCounter) Scan(transcript string) {
	if c.offset > len(transcript) {
		c.offset = len(transcript)
	}
	suffix := transcript[c.offset:]
	c.offset = len(transcript)
	if strings.TrimSpace(suffix) == "" {
		return
	}
	for word, n := range CountFillers(suffix, c.lexicon) {
		c.counts[word] += n
	}
}

// CountFillers applies the lexicon to one text slice.
//
// Phrases count non-overlapping substring matches. Single words count every token that equals
// or starts with the lexeme, so "umm" also counts as "um"; that over-count is intentional.
func CountFillers(text string, lexicon []string) map[string]int {
	lower := strings.ToLower(text)
	tokens := strings.Fields(lower)
	for i, tok := range tokens {
		tokens[i] = strings.TrimRight(tok, tokenPunctuation)
	}

	out := make(map[string]int)
	for _, lexeme := range lexicon {
		if strings.Contains(lexeme, " ") {
			if n := strings.Count(lower, lexeme); n > 0 {
				out[lexeme] += n
			}
			continue
		}
		for _, tok := range tokens {
			if tok == lexeme || strings.HasPrefix(tok, lexeme) {
				out[lexeme]++
			}
		}
	}
	return out
}

// Top returns up to n non-zero entries ordered by count desc, ties in lexicon order.
func (c *FillerCounter) Top(n int) []FillerWord {
	out := make([]FillerWord, 0, len(c.counts))
	for _, lexeme := range c.lexicon {
		if count := c.counts[lexeme]; count > 0 {
			out = append(out, FillerWord{Word: lexeme, Count: count})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (c *FillerCounter) Total() int {
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

func (c *FillerCounter) Count(lexeme string) int { return c.counts[lexeme] }

func (c *FillerCounter) Offset() int { return c.offset }

func (c *FillerCounter) Reset() {
	c.counts = make(map[string]int)
	c.offset = 0
}
