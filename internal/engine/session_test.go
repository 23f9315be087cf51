package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
)

// setupLLM answers character, stats, and level-up calls by inspecting
// the user message.
func setupLLM() *services.MockLLM {
	mockLLM := services.NewMockLLM()
	mockLLM.GenerateContentFunc = func(ctx context.Context, req *services.LLMRequest) (*services.LLMResponse, error) {
		switch {
		case strings.Contains(req.UserMessage, "Create the premise"):
			return services.NewRawResponse(`{
				"game": "Fantasy",
				"world_details": "A realm of rusting sky-fortresses",
				"adventure_and_main_event": "the fortress engines are waking",
				"theme": "skyfaring ruins",
				"tonality": "wondrous",
				"character_simple_description": "scavenger crew",
				"general_image_prompt": "clouds around iron towers"
			}`), nil
		case strings.Contains(req.UserMessage, "player character"):
			return services.NewRawResponse(`[
				{"name": "Kaela", "race": "Elf", "class": "Druid", "alignment": "neutral"},
				{"name": "Bram", "race": "Dwarf", "class": "Fighter", "alignment": "good"}
			]`), nil
		case strings.Contains(req.UserMessage, "starting stats"):
			return services.NewRawResponse(`{
				"level": 1,
				"resources": {"HP": {"max_value": 18, "start_value": 18, "game_ends_when_zero": true}, "MP": {"max_value": 8, "start_value": 8}},
				"attributes": {"strength": 1},
				"skills": {"survival": 2}
			}`), nil
		case strings.Contains(req.UserMessage, "Level the character up"):
			return services.NewRawResponse(`{
				"level": 2,
				"resources": {"HP": {"max_value": 24, "start_value": 24, "game_ends_when_zero": true}, "MP": {"max_value": 8, "start_value": 8}},
				"attributes": {"strength": 2},
				"skills": {"survival": 3}
			}`), nil
		}
		return services.NewRawResponse(`{"story": "Unused."}`), nil
	}
	return mockLLM
}

func TestCreateSession_BuildsPartyWithStats(t *testing.T) {
	store := storage.NewMockStorage()
	e := testEngine(setupLLM(), store)

	session, err := e.CreateSession(context.Background(), CreateSessionRequest{
		Story:     actor.Story{GameSystem: "Fantasy", Theme: "wilds"},
		PartySize: 2,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(session.Party.Members) != 2 {
		t.Fatalf("party size = %d, want 2", len(session.Party.Members))
	}
	if session.GameDifficulty != dice.GameDifficultyDefault {
		t.Errorf("game difficulty = %q", session.GameDifficulty)
	}

	first := session.Party.Members[0]
	if first.Character.Name != "Kaela" {
		t.Errorf("first member = %q, want Kaela", first.Character.Name)
	}
	stats, ok := session.PartyStats.StatsFor(first.ID)
	if !ok || stats.Level != 1 {
		t.Errorf("unexpected stats for first member: %+v", stats)
	}
	if got := session.LiveState[first.ID]["HP"].CurrentValue; got != 18 {
		t.Errorf("starting HP = %d, want 18", got)
	}

	saved, err := store.LoadSession(context.Background(), session.ID)
	if err != nil || saved == nil {
		t.Fatalf("session not persisted: %v", err)
	}
}

func TestCreateSession_GeneratesStoryFromHints(t *testing.T) {
	store := storage.NewMockStorage()
	e := testEngine(setupLLM(), store)

	session, err := e.CreateSession(context.Background(), CreateSessionRequest{
		StoryHints: "airships and ancient machines",
		PartySize:  2,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Story.GameSystem != "Fantasy" {
		t.Errorf("game system = %q, want Fantasy", session.Story.GameSystem)
	}
	if session.Story.AdventureAndMainEvent != "the fortress engines are waking" {
		t.Errorf("main event = %q", session.Story.AdventureAndMainEvent)
	}
	if session.Story.Theme != "skyfaring ruins" {
		t.Errorf("theme = %q", session.Story.Theme)
	}
	if len(session.Party.Members) != 2 {
		t.Errorf("party size = %d, want 2", len(session.Party.Members))
	}
}

func TestLevelUpMember_CarriesResourcesOver(t *testing.T) {
	store := storage.NewMockStorage()
	e := testEngine(setupLLM(), store)

	session, err := e.CreateSession(context.Background(), CreateSessionRequest{
		Story:     actor.Story{GameSystem: "Fantasy"},
		PartySize: 2,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	memberID := session.Party.Members[0].ID

	// Wound the character so the carry-over is visible.
	hp := session.LiveState[memberID]["HP"]
	hp.CurrentValue = 10
	session.LiveState[memberID]["HP"] = hp

	leveled, err := e.LevelUpMember(context.Background(), session.ID, memberID)
	if err != nil {
		t.Fatalf("LevelUpMember: %v", err)
	}
	if leveled.Level != 2 {
		t.Errorf("level = %d, want 2", leveled.Level)
	}

	saved, _ := store.LoadSession(context.Background(), session.ID)
	// 10 current + 6 max gained.
	if got := saved.LiveState[memberID]["HP"].CurrentValue; got != 16 {
		t.Errorf("HP after level up = %d, want 16", got)
	}
	if got := saved.LiveState[memberID]["HP"].MaxValue; got != 24 {
		t.Errorf("HP max after level up = %d, want 24", got)
	}
	stats, _ := saved.PartyStats.StatsFor(memberID)
	if stats.Level != 2 {
		t.Errorf("persisted level = %d, want 2", stats.Level)
	}
}
