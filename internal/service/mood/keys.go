package mood

// Keys names the three persisted entries of one profile.
type Keys struct {
	Namespace string
	Consent   string
	Asked     string
	History   string
}

// NewKeys builds the key set under namespace. An empty namespace yields the
// bare device keys.
func NewKeys(namespace string) Keys {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return Keys{
		Namespace: namespace,
		Consent:   prefix + "lumi_consent",
		Asked:     prefix + "lumi_asked",
		History:   prefix + "lumi_mood_history",
	}
}
