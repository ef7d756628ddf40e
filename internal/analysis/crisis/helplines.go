package crisis

// Helpline is a contact shown to the user while a conversation is crisis locked.
type Helpline struct {
	Name    string `json:"name" yaml:"name"`
	Phone   string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Text    string `json:"text,omitempty" yaml:"text,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Region  string `json:"region" yaml:"region"`
	Summary string `json:"summary" yaml:"summary"`
}

var helplines = []Helpline{
	{
		Name:    "988 Suicide & Crisis Lifeline",
		Phone:   "988",
		Text:    "988",
		URL:     "https://988lifeline.org",
		Region:  "US",
		Summary: "Free, confidential support 24/7 for people in distress.",
	},
	{
		Name:    "Crisis Text Line",
		Text:    "HOME to 741741",
		URL:     "https://www.crisistextline.org",
		Region:  "US/UK/CA/IE",
		Summary: "Text with a trained crisis counselor any time.",
	},
	{
		Name:    "Emergency services",
		Phone:   "112",
		Region:  "International",
		Summary: "Call local emergency services if you are in immediate danger.",
	},
	{
		Name:    "Find A Helpline",
		URL:     "https://findahelpline.com",
		Region:  "International",
		Summary: "Directory of free support lines in your country.",
	},
}

// Helplines returns the contacts the client displays when a session locks.
func Helplines() []Helpline {
	return append([]Helpline(nil), helplines...)
}
