// Package crisis flags messages that contain self-harm or crisis language.
package crisis

import "strings"

// keywords is checked in order; the first hit wins.
var keywords = []string{
	"suicide",
	"kill myself",
	"self-harm",
	"overdose",
	"hopeless",
	"abuse",
	"assault",
	"emergency",
	"end it all",
	"no reason to live",
}

// Detect reports whether text contains any crisis keyword, ignoring case.
func Detect(text string) bool {
	_, ok := Match(text)
	return ok
}

// Match returns the first crisis keyword found in text.
func Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	normalized := strings.ToLower(text)
	for _, word := range keywords {
		if strings.Contains(normalized, word) {
			return word, true
		}
	}
	return "", false
}

// Keywords returns a copy of the crisis keyword list.
func Keywords() []string {
	return append([]string(nil), keywords...)
}
