package emotion

import "strings"

const (
	matchScore     = 0.8
	emptyScore     = 0.5
	unmatchedScore = 0.6
)

type bucket struct {
	tag   Tag
	words []string
}

// lexicon order is the tie-break: the first bucket with a hit wins.
var lexicon = []bucket{
	{tag: Joy, words: []string{
		"happy", "glad", "joy", "great", "awesome", "excited", "love", "wonderful", "grateful", "thank",
		"amazing", "fantastic", "cheerful", "delighted",
	}},
	{tag: Sadness, words: []string{
		"sad", "depressed", "lonely", "cry", "crying", "miserable", "heartbroken", "down", "miss", "grief",
		"upset", "tired of",
	}},
	{tag: Anger, words: []string{
		"angry", "mad", "furious", "annoyed", "hate", "frustrated", "irritated", "rage", "pissed",
	}},
	{tag: Fear, words: []string{
		"scared", "afraid", "anxious", "worried", "nervous", "panic", "fear", "terrified", "stressed",
	}},
	{tag: Surprise, words: []string{
		"surprised", "wow", "shocked", "unexpected", "amazed", "can't believe", "no way",
	}},
	{tag: Disgust, words: []string{
		"disgust", "gross", "sick of", "revolting", "nasty", "yuck",
	}},
}

// Heuristic classifies text by keyword lookup. It never fails.
func Heuristic(text string) Reading {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Reading{Label: Neutral, Score: emptyScore, Source: SourceHeuristic}
	}

	for _, b := range lexicon {
		for _, word := range b.words {
			if strings.Contains(normalized, word) {
				return Reading{Label: b.tag, Score: matchScore, Source: SourceHeuristic}
			}
		}
	}

	return Reading{Label: Neutral, Score: unmatchedScore, Source: SourceHeuristic}
}
