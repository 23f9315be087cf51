package dice

import (
	"math/rand"
	"testing"
)

func TestRequiredValue_Bands(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tests := []struct {
		difficulty ActionDifficulty
		setting    GameDifficulty
		min, max   int
	}{
		{DifficultySimple, GameDifficultyDefault, 0, 0},
		{DifficultyNone, GameDifficultyDefault, 0, 0},
		{DifficultyMedium, GameDifficultyDefault, 8, 13},
		{DifficultyDifficult, GameDifficultyDefault, 14, 17},
		{DifficultyVeryDifficult, GameDifficultyDefault, 17, 20},
		{DifficultyMedium, GameDifficultyEasy, 4, 9},
		{DifficultyVeryDifficult, GameDifficultyEasy, 13, 16},
	}
	for _, tt := range tests {
		for i := 0; i < 200; i++ {
			got := RequiredValue(tt.difficulty, tt.setting, rng)
			if got < tt.min || got > tt.max {
				t.Fatalf("RequiredValue(%s, %s) = %d, want within [%d, %d]",
					tt.difficulty, tt.setting, got, tt.min, tt.max)
			}
		}
	}
}

func TestMustRoll(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		actionType ActionType
		difficulty ActionDifficulty
		inCombat   bool
		want       bool
	}{
		{"continue the tale never rolls", "continue the tale", ActionTypeMisc, DifficultyVeryDifficult, true, false},
		{"continue the tale case insensitive", "Continue The Tale", ActionTypeSpell, DifficultyDifficult, true, false},
		{"no difficulty", "walk across the room", ActionTypeMisc, DifficultyNone, false, false},
		{"unset difficulty", "walk across the room", ActionTypeMisc, "", true, false},
		{"simple", "open the unlocked door", ActionTypeMisc, DifficultySimple, false, false},
		{"spell always rolls", "cast firebolt", ActionTypeSpell, DifficultyMedium, false, true},
		{"social manipulation always rolls", "persuade the guard", ActionTypeSocialManipulation, DifficultyMedium, false, true},
		{"medium in combat", "swing at the goblin", ActionTypeAttack, DifficultyMedium, true, true},
		{"medium out of combat without trying verb", "walk to the gate", ActionTypeMisc, DifficultyMedium, false, false},
		{"medium out of combat with trying verb", "try to pick the lock", ActionTypeMisc, DifficultyMedium, false, true},
		{"medium search verb", "search the desk for letters", ActionTypeMisc, DifficultyMedium, false, true},
		{"difficult always rolls", "scale the cliff", ActionTypeMisc, DifficultyDifficult, false, true},
		{"very difficult always rolls", "leap the chasm", ActionTypeMisc, DifficultyVeryDifficult, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustRoll(tt.text, tt.actionType, tt.difficulty, tt.inCombat)
			if got != tt.want {
				t.Errorf("MustRoll = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetermineResult(t *testing.T) {
	tests := []struct {
		name                       string
		required, rolled, modifier int
		want                       RollResult
	}{
		{"natural 1 beats any modifier", 5, 1, 100, CriticalFailure},
		{"natural 1 with high requirement", 20, 1, 0, CriticalFailure},
		{"natural 20 beats any requirement", 20, 20, -100, CriticalSuccess},
		{"natural 20 low requirement", 2, 20, 0, CriticalSuccess},
		{"major failure", 15, 5, 0, MajorFailure},
		{"regular failure", 15, 11, 0, RegularFailure},
		{"partial failure", 15, 14, 0, PartialFailure},
		{"regular success exact", 15, 15, 0, RegularSuccess},
		{"regular success with modifier", 15, 12, 3, RegularSuccess},
		{"major success", 10, 16, 0, MajorSuccess},
		{"modifier pushes into failure", 12, 13, -4, RegularFailure},
		{"missing required", 0, 10, 0, ""},
		{"missing rolled", 10, 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineResult(tt.required, tt.rolled, tt.modifier)
			if got != tt.want {
				t.Errorf("DetermineResult(%d, %d, %d) = %q, want %q",
					tt.required, tt.rolled, tt.modifier, got, tt.want)
			}
		})
	}
}

func TestDetermineResult_CriticalsAreUnconditional(t *testing.T) {
	for required := 1; required <= 20; required++ {
		for modifier := -10; modifier <= 10; modifier++ {
			if got := DetermineResult(required, 1, modifier); got != CriticalFailure {
				t.Fatalf("rolled 1, required %d, modifier %d: got %q", required, modifier, got)
			}
			if got := DetermineResult(required, 20, modifier); got != CriticalSuccess {
				t.Fatalf("rolled 20, required %d, modifier %d: got %q", required, modifier, got)
			}
		}
	}
}

func TestKarmaModifier(t *testing.T) {
	tests := []struct {
		name     string
		history  []int
		required int
		want     int
	}{
		{"three losses grant half required rounded up", []int{-3, -2, -1}, 10, 5},
		{"recent win resets karma", []int{-3, -2, 1}, 10, 0},
		{"odd required rounds up", []int{-1, -1, -1}, 7, 4},
		{"only recent three count", []int{5, -4, -2, -1}, 10, 5},
		{"too little history", []int{-3, -2}, 10, 0},
		{"empty history", nil, 10, 0},
		{"zero difference is not a loss", []int{-3, 0, -1}, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KarmaModifier(tt.history, tt.required); got != tt.want {
				t.Errorf("KarmaModifier(%v, %d) = %d, want %d", tt.history, tt.required, got, tt.want)
			}
		})
	}
}
