package actor

// Story is the immutable narrative premise of a tale, created once at
// setup. Fields that would spoil the plot (AdventureAndMainEvent) are
// stripped before the story is handed to agents whose output the player
// sees ahead of time.
type Story struct {
	GameSystem                 string `json:"game"`
	WorldDetails               string `json:"world_details"`
	AdventureAndMainEvent      string `json:"adventure_and_main_event"`
	Theme                      string `json:"theme"`
	Tonality                   string `json:"tonality"`
	CharacterSimpleDescription string `json:"character_simple_description"`
	GeneralImagePrompt         string `json:"general_image_prompt"`
	ExpectedPartySize          int    `json:"expected_party_size,omitempty"`
	// ContentRating is an MPAA-style rating (G, PG, PG13, R). Ratings
	// below R soften the narration after generation.
	ContentRating string `json:"content_rating,omitempty"`
}

// WithoutSecrets returns a copy safe for prompt contexts that must not
// leak the main plot to the player (e.g. action suggestions).
func (s Story) WithoutSecrets() Story {
	s.AdventureAndMainEvent = ""
	return s
}
