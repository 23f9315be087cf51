// Package engine orchestrates resolved turns: the affordability gate,
// dice resolution, narration, state reconciliation, persistence, and the
// event-evaluation handoff. Handlers call the engine; the engine is the
// only caller of the reconciler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services/queue"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/textfilter"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy rejects a turn while another is in flight. One turn
	// per session, never two.
	ErrSessionBusy   = errors.New("a turn is already in flight for this session")
	ErrUnknownMember = errors.New("unknown party member")
	ErrNothingToUndo = errors.New("nothing to undo")
)

// historyTokenBudget caps the chat transcript fed back into prompts.
// Older turns are compacted into a summary message once exceeded.
const historyTokenBudget = 8000

// rollHistoryLimit bounds the per-member roll difference log used by the
// karma modifier.
const rollHistoryLimit = 10

// skillAdvanceUses is how many successful uses of a skill raise it one
// rank.
const skillAdvanceUses = 10

// Agents bundles every prompt agent the engine drives.
type Agents struct {
	Story       *agents.StoryAgent
	Game        *agents.GameAgent
	Action      *agents.ActionAgent
	Difficulty  *agents.DifficultyAgent
	Combat      *agents.CombatAgent
	NPC         *agents.NPCAgent
	Summary     *agents.SummaryAgent
	Campaign    *agents.CampaignAgent
	Character   *agents.CharacterAgent
	Stats       *agents.CharacterStatsAgent
	ImagePrompt *agents.ImagePromptAgent
}

// NewAgents builds the full agent set over one dispatcher.
func NewAgents(dispatcher *agents.Dispatcher, logger *slog.Logger) *Agents {
	return &Agents{
		Story:       agents.NewStoryAgent(dispatcher, logger),
		Game:        agents.NewGameAgent(dispatcher, logger),
		Action:      agents.NewActionAgent(dispatcher, logger),
		Difficulty:  agents.NewDifficultyAgent(dispatcher, logger),
		Combat:      agents.NewCombatAgent(dispatcher, logger),
		NPC:         agents.NewNPCAgent(dispatcher, logger),
		Summary:     agents.NewSummaryAgent(dispatcher, logger),
		Campaign:    agents.NewCampaignAgent(dispatcher, logger),
		Character:   agents.NewCharacterAgent(dispatcher, logger),
		Stats:       agents.NewCharacterStatsAgent(dispatcher, logger),
		ImagePrompt: agents.NewImagePromptAgent(dispatcher, logger),
	}
}

// Engine runs the turn pipeline over storage and the agent set.
type Engine struct {
	storage storage.Storage
	queue   *queue.EventQueue
	agents  *Agents
	logger  *slog.Logger
	filter  *textfilter.Filter

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an engine. eventQueue may be nil when no background worker
// is deployed; event evaluation is skipped in that case.
func New(store storage.Storage, eventQueue *queue.EventQueue, ag *Agents, logger *slog.Logger) *Engine {
	return &Engine{
		storage: store,
		queue:   eventQueue,
		agents:  ag,
		logger:  logger,
		filter:  textfilter.NewFilter(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TurnRequest is one member's submitted action.
type TurnRequest struct {
	MemberID          string
	Action            actor.ProposedAction
	SupplementaryText string

	// OnStory streams partial narration when set; nil uses the blocking
	// path.
	OnStory func(text string, complete bool)
}

// RollReport is the dice resolution of one action, surfaced to the client
// alongside the narration.
type RollReport struct {
	Rolled        int                   `json:"rolled"`
	Modifier      int                   `json:"modifier"`
	KarmaBonus    int                   `json:"karma_bonus,omitempty"`
	RequiredValue int                   `json:"required_value"`
	Difficulty    dice.ActionDifficulty `json:"difficulty"`
	Result        dice.RollResult       `json:"result"`
}

// Outcome renders the roll for the narration prompt.
func (r *RollReport) Outcome() string {
	total := r.Rolled + r.Modifier + r.KarmaBonus
	s := fmt.Sprintf("rolled %d with modifier %+d", r.Rolled, r.Modifier)
	if r.KarmaBonus > 0 {
		s += fmt.Sprintf(" and karma bonus %+d", r.KarmaBonus)
	}
	s += fmt.Sprintf(" for a total of %d against required value %d: %s", total, r.RequiredValue, r.Result)
	return s
}

// TurnResult is everything one resolved turn produced.
type TurnResult struct {
	ActionState *state.GameActionState `json:"action_state"`
	Roll        *RollReport            `json:"roll,omitempty"`
	RemovedNPCs []string               `json:"removed_npcs,omitempty"`
}

func (e *Engine) roll20() int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(20) + 1
}

func (e *Engine) requiredValue(difficulty dice.ActionDifficulty, setting dice.GameDifficulty) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return dice.RequiredValue(difficulty, setting, e.rng)
}

// ResolveTurn runs the full pipeline for one action. The session's busy
// flag gates entry; state changes land only after narration succeeds.
func (e *Engine) ResolveTurn(ctx context.Context, sessionID uuid.UUID, req TurnRequest) (*TurnResult, error) {
	acquired, err := e.storage.AcquireBusy(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire turn flag: %w", err)
	}
	if !acquired {
		return nil, ErrSessionBusy
	}
	defer func() {
		if err := e.storage.ReleaseBusy(context.WithoutCancel(ctx), sessionID); err != nil {
			e.logger.Error("Failed to release turn flag", "session_id", sessionID.String(), "error", err)
		}
	}()

	session, err := e.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	member, ok := session.Party.Member(req.MemberID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, req.MemberID)
	}
	stats, _ := session.PartyStats.StatsFor(member.ID)
	live := session.LiveState[member.ID]

	if err := state.CheckAffordability(live, req.Action.ResourceCost); err != nil {
		return nil, err
	}

	inCombat, err := e.lastTurnInCombat(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	action := req.Action
	if action.ActionDifficulty == "" {
		if err := e.classify(ctx, session, member, stats, &action, inCombat); err != nil {
			return nil, err
		}
	}

	var roll *RollReport
	if dice.MustRoll(action.Text, action.Type, action.ActionDifficulty, inCombat) {
		roll = e.resolveRoll(session, member.ID, stats, action)
	}

	gameReq := e.gameRequest(session, action, req.SupplementaryText, roll)

	var actionState *state.GameActionState
	if req.OnStory != nil {
		actionState, err = e.agents.Game.GenerateStoryProgressionStream(ctx, gameReq, req.OnStory)
	} else {
		actionState, err = e.agents.Game.GenerateStoryProgression(ctx, gameReq)
	}
	if err != nil {
		return nil, err
	}

	if textfilter.ShouldFilter(session.Story.ContentRating) {
		actionState.Story = e.filter.Clean(actionState.Story)
	}

	// Costs become regular stats deltas so the action history alone can
	// rebuild the live state.
	actionState.StatsUpdate = append(actionState.StatsUpdate, costUpdates(member.ID, action.ResourceCost)...)

	if actionState.ImagePrompt == "" && actionState.Story != "" && session.Story.GeneralImagePrompt != "" {
		prompt, perr := e.agents.ImagePrompt.Generate(ctx, actionState.Story, session.Story.GeneralImagePrompt)
		if perr != nil {
			e.logger.Warn("Image prompt generation failed", "session_id", sessionID.String(), "error", perr)
		} else {
			actionState.ImagePrompt = prompt
		}
	}

	if err := e.introduceNPCs(ctx, session, actionState); err != nil {
		// A missing NPC sheet degrades the scene, it does not lose the
		// turn.
		e.logger.Warn("NPC generation failed", "session_id", sessionID.String(), "error", err)
	}

	reconciler := state.NewReconciler(session.LiveState, session.Party.IDToNames(), session.NPCs, session.Inventory, e.logger)
	removed, err := reconciler.Apply(actionState)
	if err != nil {
		return nil, fmt.Errorf("failed to apply turn delta: %w", err)
	}

	e.trackSkillProgression(session, member.ID, action, roll)

	if err := e.persistTurn(ctx, session, userMessage(action, req.SupplementaryText), actionState); err != nil {
		return nil, err
	}
	e.enqueueEvaluation(ctx, sessionID, member.ID, actionState.Story)

	return &TurnResult{ActionState: actionState, Roll: roll, RemovedNPCs: removed}, nil
}

// classify fills in difficulty fields for a free-text action.
func (e *Engine) classify(ctx context.Context, session *storage.Session, member actor.PartyMember, stats actor.CharacterStats, action *actor.ProposedAction, inCombat bool) error {
	result, err := e.agents.Difficulty.GenerateDifficulty(ctx, agents.DifficultyRequest{
		Story:       session.Story,
		Character:   member.Character,
		Stats:       stats,
		ActionText:  action.Text,
		LatestStory: latestAssistantMessage(session.History),
		InCombat:    inCombat,
	})
	if err != nil {
		return fmt.Errorf("failed to classify action: %w", err)
	}
	action.ActionDifficulty = result.ActionDifficulty
	if action.DiceRollModifier == 0 {
		action.DiceRollModifier = result.DiceRollModifier
	}
	if action.RelatedAttribute == "" {
		action.RelatedAttribute = result.RelatedAttribute
	}
	if action.RelatedSkill == "" {
		action.RelatedSkill = result.RelatedSkill
	}
	return nil
}

// resolveRoll rolls the d20 and records the difference for the karma
// mechanic.
func (e *Engine) resolveRoll(session *storage.Session, memberID string, stats actor.CharacterStats, action actor.ProposedAction) *RollReport {
	required := e.requiredValue(action.ActionDifficulty, session.GameDifficulty)
	if required <= 0 {
		return nil
	}

	modifier := action.DiceRollModifier
	if action.RelatedAttribute != "" {
		if v, ok := stats.LookupValue(action.RelatedAttribute); ok {
			modifier += v
		}
	}
	if action.RelatedSkill != "" {
		if v, ok := stats.LookupValue(action.RelatedSkill); ok {
			modifier += v
		}
	}

	cache := session.Party.Cache(memberID)
	karma := dice.KarmaModifier(cache.RollDifferenceHistory, required)

	rolled := e.roll20()
	result := dice.DetermineResult(required, rolled, modifier+karma)

	diff := rolled + modifier + karma - required
	cache.RollDifferenceHistory = append(cache.RollDifferenceHistory, diff)
	if len(cache.RollDifferenceHistory) > rollHistoryLimit {
		cache.RollDifferenceHistory = cache.RollDifferenceHistory[len(cache.RollDifferenceHistory)-rollHistoryLimit:]
	}

	return &RollReport{
		Rolled:        rolled,
		Modifier:      modifier,
		KarmaBonus:    karma,
		RequiredValue: required,
		Difficulty:    action.ActionDifficulty,
		Result:        result,
	}
}

func (e *Engine) gameRequest(session *storage.Session, action actor.ProposedAction, supplementary string, roll *RollReport) agents.GameRequest {
	req := agents.GameRequest{
		ActionText:        action.Text,
		SupplementaryText: supplementary,
		Story:             session.Story,
		Resources:         session.LiveState,
		Inventory:         session.Inventory,
		NPCs:              session.NPCs,
		History:           session.History,
	}
	if roll != nil {
		req.RollOutcome = roll.Outcome()
	}
	for _, m := range session.Party.Members {
		req.Characters = append(req.Characters, m.Character)
		if s, ok := session.PartyStats.StatsFor(m.ID); ok {
			req.Stats = append(req.Stats, s)
		}
	}
	return req
}

// introduceNPCs generates sheets for present NPCs seen for the first
// time, before the turn's deltas are applied, so a new NPC can already
// take damage in its debut scene.
func (e *Engine) introduceNPCs(ctx context.Context, session *storage.Session, actionState *state.GameActionState) error {
	var unknown []actor.NPCReference
	for _, ref := range actionState.CurrentlyPresentNPCs.All() {
		if ref.UniqueTechnicalNameID == "" {
			continue
		}
		if _, exists := session.NPCs[ref.UniqueTechnicalNameID]; exists {
			session.NPCs.AddKnownName(ref.UniqueTechnicalNameID, ref.DisplayName)
			continue
		}
		unknown = append(unknown, ref)
	}
	if len(unknown) == 0 {
		return nil
	}

	generated, err := e.agents.NPC.GenerateNPCStats(ctx, agents.NPCRequest{
		Story:      session.Story,
		NPCs:       unknown,
		PartyLevel: partyLevel(session.PartyStats),
		PartySize:  len(session.Party.Members),
	})
	if err != nil {
		return err
	}
	if session.NPCs == nil {
		session.NPCs = make(actor.NPCState, len(generated))
	}
	for id, npc := range generated {
		session.NPCs[id] = npc
	}
	return nil
}

// trackSkillProgression counts successful uses of a related skill and
// raises the rank one step per ten successes.
func (e *Engine) trackSkillProgression(session *storage.Session, memberID string, action actor.ProposedAction, roll *RollReport) {
	if roll == nil || action.RelatedSkill == "" || roll.Result.IsFailure() {
		return
	}
	cache := session.Party.Cache(memberID)
	if cache.SkillProgression == nil {
		cache.SkillProgression = make(map[string]int)
	}
	cache.SkillProgression[action.RelatedSkill]++
	if cache.SkillProgression[action.RelatedSkill] < skillAdvanceUses {
		return
	}
	cache.SkillProgression[action.RelatedSkill] = 0

	stats, ok := session.PartyStats.StatsFor(memberID)
	if !ok {
		return
	}
	if stats.Skills == nil {
		stats.Skills = make(map[string]int)
	}
	for k := range stats.Skills {
		if strings.EqualFold(k, action.RelatedSkill) {
			stats.Skills[k]++
			session.PartyStats.SetStats(memberID, stats)
			return
		}
	}
	stats.Skills[action.RelatedSkill] = 1
	session.PartyStats.SetStats(memberID, stats)
}

// persistTurn appends the turn to the transcript and the action history,
// compacting the transcript when it outgrows the token budget.
func (e *Engine) persistTurn(ctx context.Context, session *storage.Session, userMsg string, actionState *state.GameActionState) error {
	session.History = append(session.History,
		services.Message{Role: "user", Content: userMsg},
		services.Message{Role: "assistant", Content: actionState.Story},
	)
	compacted, err := e.agents.Summary.Summarize(ctx, session.History, historyTokenBudget)
	if err != nil {
		// An oversized transcript is recoverable on the next turn.
		e.logger.Warn("History compaction failed", "session_id", session.ID.String(), "error", err)
	} else {
		session.History = compacted
	}

	if err := e.storage.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := e.storage.AppendActionState(ctx, session.ID, actionState); err != nil {
		return fmt.Errorf("failed to append action state: %w", err)
	}
	return nil
}

func (e *Engine) enqueueEvaluation(ctx context.Context, sessionID uuid.UUID, memberID, story string) {
	if e.queue == nil || story == "" {
		return
	}
	task := queue.EvaluationTask{SessionID: sessionID, MemberID: memberID, StoryText: story}
	if err := e.queue.Enqueue(ctx, &task); err != nil {
		e.logger.Warn("Failed to enqueue event evaluation", "session_id", sessionID.String(), "error", err)
	}
}

func (e *Engine) lastTurnInCombat(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	history, err := e.storage.ActionHistory(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to load action history: %w", err)
	}
	if len(history) == 0 {
		return false, nil
	}
	return history[len(history)-1].IsCharacterInCombat, nil
}

func costUpdates(memberID string, cost map[string]int) []state.StatsUpdate {
	updates := make([]state.StatsUpdate, 0, len(cost))
	for key, amount := range cost {
		if amount <= 0 {
			continue
		}
		updates = append(updates, state.StatsUpdate{
			TargetID:    memberID,
			Type:        key + "_change",
			Value:       negativeValue(amount),
			Explanation: "resource cost",
		})
	}
	return updates
}

func negativeValue(amount int) []byte {
	return []byte(fmt.Sprintf("%d", -amount))
}

func userMessage(action actor.ProposedAction, supplementary string) string {
	msg := action.Text
	if supplementary != "" {
		msg += "\n" + supplementary
	}
	return msg
}

func latestAssistantMessage(history []services.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" {
			return history[i].Content
		}
	}
	return ""
}

func partyLevel(stats *actor.PartyStats) int {
	level := 1
	if stats == nil {
		return level
	}
	for _, m := range stats.Members {
		if m.Stats.Level > level {
			level = m.Stats.Level
		}
	}
	return level
}
