package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// storyPreset is a ready-to-play tale the player can pick from the
// start modal. Sessions are created from the selected story verbatim.
type storyPreset struct {
	Name  string
	Story actor.Story
}

var storyPresets = []storyPreset{
	{
		Name: "The Emberfall Conspiracy",
		Story: actor.Story{
			GameSystem:                 "Dungeons & Dragons 5e",
			WorldDetails:               "The mountain city of Emberfall, built into the caldera of a dormant volcano, where forge-guilds rule and the old druidic orders have been outlawed.",
			AdventureAndMainEvent:      "The volcano is waking. The party must uncover which guild has been feeding the fire elemental bound beneath the city before Emberfall burns.",
			Theme:                      "political intrigue in a fantasy city on the brink of disaster",
			Tonality:                   "tense, smoky, flashes of dark humor",
			CharacterSimpleDescription: "an outlawed druid, a disgraced guild engineer, or a sellsword with a conscience",
			ExpectedPartySize:          2,
		},
	},
	{
		Name: "Drift Station Calypso",
		Story: actor.Story{
			GameSystem:                 "sci-fi survival, loosely Traveller-inspired",
			WorldDetails:               "Calypso, a decaying orbital station above a gas giant, half its rings abandoned to vacuum, run by a failing AI that still enforces century-old quarantine law.",
			AdventureAndMainEvent:      "A salvage contract goes wrong when the crew finds the quarantined ring is not empty. They must get their find off the station before the AI seals every lock.",
			Theme:                      "claustrophobic survival and salvage",
			Tonality:                   "cold, quiet dread, moments of gallows camaraderie",
			CharacterSimpleDescription: "a salvage rigger, a station-born smuggler, or a discharged fleet medic",
			ExpectedPartySize:          3,
		},
	},
	{
		Name: "The Hollow Court",
		Story: actor.Story{
			GameSystem:                 "dark fairy-tale fantasy",
			WorldDetails:               "The Hollow Court, a twilight realm of fae nobility where every favor has a price and names are currency.",
			AdventureAndMainEvent:      "A mortal child has been taken to the Court. The party bargains, sneaks, and duels through three fae households to win the child back before the Long Night ends.",
			Theme:                      "bargains, trickery, and the cost of promises",
			Tonality:                   "lyrical, eerie, sharply whimsical",
			CharacterSimpleDescription: "a changeling returned to the Court, a hedge witch, or an oathbound knight",
			ExpectedPartySize:          1,
		},
	},
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Timeout:    120 * time.Second,
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithMouseAllMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
