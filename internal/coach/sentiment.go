package coach

type Sentiment struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

var (
	sentimentSilent   = Sentiment{Positive: 0, Negative: 0, Neutral: 100}
	sentimentStrong   = Sentiment{Positive: 70, Negative: 5, Neutral: 25}
	sentimentGood     = Sentiment{Positive: 55, Negative: 15, Neutral: 30}
	sentimentRushed   = Sentiment{Positive: 20, Negative: 50, Neutral: 30}
	sentimentHesitant = Sentiment{Positive: 25, Negative: 35, Neutral: 40}
	sentimentMixed    = Sentiment{Positive: 40, Negative: 25, Neutral: 35}
)

// ClassifySentiment maps delivery signals onto a fixed set of bands. It never looks at the words.
func ClassifySentiment(pace, eyeContact, fillerEntries int) Sentiment {
	if pace == 0 {
		return sentimentSilent
	}
	idealPace := pace >= 130 && pace <= 170
	tooFast := pace > 180
	tooSlow := pace < 100
	goodEyeContact := eyeContact > 60
	fewFillers := fillerEntries < 3

	switch {
	case idealPace && goodEyeContact && fewFillers:
		return sentimentStrong
	case idealPace && (goodEyeContact || fewFillers):
		return sentimentGood
	case tooFast:
		return sentimentRushed
	case tooSlow:
		return sentimentHesitant
	default:
		return sentimentMixed
	}
}
