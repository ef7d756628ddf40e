// Package emotion defines emotion readings and the offline lexicon classifier
// used whenever no remote model answers.
package emotion

import "strings"

// Tag is one of the supported emotion labels.
type Tag string

const (
	Neutral  Tag = "neutral"
	Joy      Tag = "joy"
	Sadness  Tag = "sadness"
	Anger    Tag = "anger"
	Fear     Tag = "fear"
	Surprise Tag = "surprise"
	Disgust  Tag = "disgust"
)

// Tags lists every label in declaration order.
var Tags = []Tag{Neutral, Joy, Sadness, Anger, Fear, Surprise, Disgust}

// Source records which classifier produced a reading.
type Source string

const (
	SourceRemote    Source = "remote"
	SourceHeuristic Source = "heuristic"
	SourceDisabled  Source = "disabled"
)

// Reading is the outcome of one emotion analysis.
type Reading struct {
	Label  Tag     `json:"label" yaml:"label"`
	Score  float64 `json:"score" yaml:"score"`
	Source Source  `json:"-" yaml:"-"`
}

var friendlyNames = map[Tag]string{
	Neutral:  "calm",
	Joy:      "happy",
	Sadness:  "sad",
	Anger:    "frustrated",
	Fear:     "anxious",
	Surprise: "surprised",
	Disgust:  "upset",
}

// FriendlyName returns the conversational tone word for a tag.
func FriendlyName(tag Tag) string {
	if name, ok := friendlyNames[tag]; ok {
		return name
	}
	return friendlyNames[Neutral]
}

// Parse normalises a label returned by an external model.
func Parse(raw string) (Tag, bool) {
	normalized := Tag(strings.ToLower(strings.TrimSpace(raw)))
	for _, tag := range Tags {
		if tag == normalized {
			return tag, true
		}
	}
	return "", false
}

// Disabled is the reading returned when emotion sensing is not permitted.
func Disabled() Reading {
	return Reading{Label: Neutral, Score: 0, Source: SourceDisabled}
}

// ClampScore keeps a confidence value inside [0,1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
