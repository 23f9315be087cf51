// Package dice maps narrative difficulty to d20 roll requirements and
// buckets roll results into discrete outcome tiers. Resolution is
// deterministic given its inputs; randomness is injected only at roll time.
package dice

import (
	"math"
	"math/rand"
	"strings"
)

// ActionDifficulty is the narrative difficulty tier assigned to an action.
type ActionDifficulty string

const (
	DifficultyNone          ActionDifficulty = "none"
	DifficultySimple        ActionDifficulty = "simple"
	DifficultyMedium        ActionDifficulty = "medium"
	DifficultyDifficult     ActionDifficulty = "difficult"
	DifficultyVeryDifficult ActionDifficulty = "very_difficult"
)

// RollResult is the discrete outcome tier of a resolved dice roll.
type RollResult string

const (
	CriticalFailure RollResult = "critical_failure"
	MajorFailure    RollResult = "major_failure"
	RegularFailure  RollResult = "regular_failure"
	PartialFailure  RollResult = "partial_failure"
	RegularSuccess  RollResult = "regular_success"
	MajorSuccess    RollResult = "major_success"
	CriticalSuccess RollResult = "critical_success"

	// ResultUndetermined covers the structurally possible but
	// integer-unreachable gap between partial failure and regular success.
	// It must be narrated rather than silently bucketed.
	ResultUndetermined RollResult = "undetermined"
)

// GameDifficulty is the player-chosen overall game difficulty setting.
type GameDifficulty string

const (
	GameDifficultyEasy    GameDifficulty = "Easy"
	GameDifficultyDefault GameDifficulty = "Default"
)

// easyBonus is subtracted from the required value on Easy difficulty.
const easyBonus = 4

// ContinueTaleAction is the static action that advances the story without
// a player decision; it never rolls.
const ContinueTaleAction = "continue the tale"

// Required-value bands per difficulty tier. Medium is 8-13, difficult
// 14-17, very difficult 17-20.
var difficultyBands = map[ActionDifficulty][2]int{
	DifficultyMedium:        {8, 13},
	DifficultyDifficult:     {14, 17},
	DifficultyVeryDifficult: {17, 20},
}

// RequiredValue returns the value a d20 roll (plus modifier) must meet for
// the action to succeed. Simple actions require nothing.
func RequiredValue(difficulty ActionDifficulty, setting GameDifficulty, rng *rand.Rand) int {
	band, ok := difficultyBands[difficulty]
	if !ok {
		return 0
	}
	required := band[0] + rng.Intn(band[1]-band[0]+1)
	if setting == GameDifficultyEasy {
		required -= easyBonus
	}
	if required < 0 {
		required = 0
	}
	return required
}

// ActionType classifies a proposed player move.
type ActionType string

const (
	ActionTypeMisc               ActionType = "Misc"
	ActionTypeAttack             ActionType = "Attack"
	ActionTypeSpell              ActionType = "Spell"
	ActionTypeConversation       ActionType = "Conversation"
	ActionTypeSocialManipulation ActionType = "Social_Manipulation"
)

var tryingVerbs = []string{"attempt", "try", "seek", "search", "investigate"}

// MustRoll reports whether an action requires a dice roll before it is
// narrated.
func MustRoll(actionText string, actionType ActionType, difficulty ActionDifficulty, inCombat bool) bool {
	if strings.EqualFold(strings.TrimSpace(actionText), ContinueTaleAction) {
		return false
	}
	if difficulty == "" || difficulty == DifficultyNone || difficulty == DifficultySimple {
		return false
	}
	switch actionType {
	case ActionTypeSocialManipulation, ActionTypeSpell:
		return true
	}
	if difficulty == DifficultyMedium {
		if inCombat {
			return true
		}
		lowered := strings.ToLower(actionText)
		for _, verb := range tryingVerbs {
			if strings.Contains(lowered, verb) {
				return true
			}
		}
		return false
	}
	return true
}

// DetermineResult buckets a roll against its required value.
// A raw 1 is always a critical failure and a raw 20 always a critical
// success, regardless of modifier or requirement.
func DetermineResult(required, rolled, modifier int) RollResult {
	if required <= 0 || rolled <= 0 {
		return ""
	}
	switch rolled {
	case 1:
		return CriticalFailure
	case 20:
		return CriticalSuccess
	}
	diff := float64(rolled+modifier) - float64(required)
	switch {
	case diff <= -6:
		return MajorFailure
	case diff <= -3:
		return RegularFailure
	case diff <= -1:
		return PartialFailure
	case diff >= 6:
		return MajorSuccess
	case diff >= 0:
		return RegularSuccess
	default:
		// -1 < diff < 0: unreachable with integers, but must not be
		// coerced into a neighboring bucket.
		return ResultUndetermined
	}
}

// IsFailure reports whether a result is any failure tier.
func (r RollResult) IsFailure() bool {
	switch r {
	case CriticalFailure, MajorFailure, RegularFailure, PartialFailure:
		return true
	}
	return false
}

// KarmaModifier grants an anti-frustration bonus after three consecutive
// unfavorable rolls: half the required value, rounded up. Fewer than three
// recorded rolls never grant a bonus.
func KarmaModifier(rollDifferenceHistory []int, requiredValue int) int {
	if len(rollDifferenceHistory) < 3 {
		return 0
	}
	recent := rollDifferenceHistory[len(rollDifferenceHistory)-3:]
	for _, diff := range recent {
		if diff >= 0 {
			return 0
		}
	}
	return int(math.Ceil(float64(requiredValue) / 2))
}
