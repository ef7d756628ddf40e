// Package insights turns a mood history into aggregate statistics.
package insights

import (
	"time"

	"github.com/zhouzirui/lumi/backend/internal/analysis/emotion"
	"github.com/zhouzirui/lumi/backend/internal/service/mood"
)

// WindowDays is the length of the daily breakdown, today included.
const WindowDays = 7

// Day aggregates the entries of one UTC calendar day.
type Day struct {
	Date     string      `json:"date" yaml:"date"`
	Count    int         `json:"count" yaml:"count"`
	Average  float64     `json:"average" yaml:"average"`
	Dominant emotion.Tag `json:"dominant,omitempty" yaml:"dominant,omitempty"`
}

// Summary is the locally computed view of a mood history.
type Summary struct {
	Total    int                 `json:"total" yaml:"total"`
	Counts   map[emotion.Tag]int `json:"counts" yaml:"counts"`
	Average  float64             `json:"average" yaml:"average"`
	Dominant emotion.Tag         `json:"dominant,omitempty" yaml:"dominant,omitempty"`
	Latest   emotion.Tag         `json:"latest,omitempty" yaml:"latest,omitempty"`
	Daily    []Day               `json:"daily" yaml:"daily"`
}

// Compute summarises history as of now. Entries outside the daily window
// still count toward the totals.
func Compute(history []mood.Entry, now time.Time) Summary {
	s := Summary{
		Total:  len(history),
		Counts: make(map[emotion.Tag]int),
		Daily:  make([]Day, WindowDays),
	}

	today := now.UTC().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(WindowDays - 1))
	for i := range s.Daily {
		s.Daily[i].Date = first.AddDate(0, 0, i).Format(time.DateOnly)
	}
	dayCounts := make([]map[emotion.Tag]int, WindowDays)
	daySums := make([]float64, WindowDays)

	var sum float64
	var latest int64
	for _, e := range history {
		s.Counts[e.Label]++
		sum += e.Score
		if s.Latest == "" || e.Timestamp >= latest {
			latest = e.Timestamp
			s.Latest = e.Label
		}

		at := time.UnixMilli(e.Timestamp).UTC()
		if at.Before(first) || !at.Before(today.AddDate(0, 0, 1)) {
			continue
		}
		idx := int(at.Sub(first) / (24 * time.Hour))
		if dayCounts[idx] == nil {
			dayCounts[idx] = make(map[emotion.Tag]int)
		}
		dayCounts[idx][e.Label]++
		daySums[idx] += e.Score
		s.Daily[idx].Count++
	}

	if s.Total > 0 {
		s.Average = sum / float64(s.Total)
	}
	s.Dominant = dominant(s.Counts)
	for i := range s.Daily {
		if s.Daily[i].Count == 0 {
			continue
		}
		s.Daily[i].Average = daySums[i] / float64(s.Daily[i].Count)
		s.Daily[i].Dominant = dominant(dayCounts[i])
	}
	return s
}

// dominant picks the most frequent tag; ties go to the earlier declared tag.
func dominant(counts map[emotion.Tag]int) emotion.Tag {
	var best emotion.Tag
	bestCount := 0
	for _, tag := range emotion.Tags {
		if counts[tag] > bestCount {
			best, bestCount = tag, counts[tag]
		}
	}
	return best
}
