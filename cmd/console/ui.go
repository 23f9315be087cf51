package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

func transcriptMessage(role, content string) services.Message {
	return services.Message{Role: role, Content: content}
}

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do?"
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	session      *storage.Session
	history      []state.GameActionState
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Index into session.Party.Members of the member acting next
	activeIdx int

	// Story selection state
	showStoryModal bool
	selectedStory  int

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type turnMsg struct {
	result *turnView
	err    error
}

type sessionMsg struct {
	view *sessionView
	err  error
}

type sessionCreatedMsg struct {
	session *storage.Session
	err     error
}

type actionsMsg struct {
	actions map[string][]actor.ProposedAction
	err     error
}

type undoMsg struct {
	popped *state.GameActionState
	err    error
}

type levelUpMsg struct {
	stats *actor.CharacterStats
	err   error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	diceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")). // yellow
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:         cfg,
		client:         client,
		textarea:       ta,
		chatViewport:   chatVp,
		metaViewport:   metaVp,
		ready:          false,
		showStoryModal: true,
		selectedStory:  0,
	}
}

// activeMember returns the party member who acts on the next turn.
func (m *ConsoleUI) activeMember() (actor.PartyMember, bool) {
	if m.session == nil || m.session.Party == nil || len(m.session.Party.Members) == 0 {
		return actor.PartyMember{}, false
	}
	if m.activeIdx >= len(m.session.Party.Members) {
		m.activeIdx = 0
	}
	return m.session.Party.Members[m.activeIdx], true
}

func writeInitialContent(session *storage.Session, chatWidth int) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("INFINITE TALES") + "\n\n")
	content.WriteString("Type your actions below to play your tale.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	if session != nil && len(session.History) > 0 {
		formattedMsg := formatNarratorResponse(session.History[0].Content, chatWidth)
		content.WriteString(formattedMsg + "\n\n")
	}
	return content.String()
}

func writeMetadata(session *storage.Session, history []state.GameActionState, activeIdx int) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("TALE") + "\n\n")

	content.WriteString("Session:\n")
	content.WriteString(session.ID.String()[:8] + "...\n\n")

	content.WriteString("System:\n")
	content.WriteString(session.Story.GameSystem + "\n\n")

	content.WriteString(fmt.Sprintf("Turns: %d\n", len(history)))
	if len(history) > 0 && history[len(history)-1].IsCharacterInCombat {
		content.WriteString(errorStyle.Render("IN COMBAT") + "\n")
	}
	content.WriteString("\n")

	content.WriteString(titleStyle.Render("PARTY") + "\n\n")
	if session.Party != nil {
		for i, member := range session.Party.Members {
			marker := "  "
			if i == activeIdx {
				marker = "▸ "
			}
			content.WriteString(marker + speakerStyle.Render(member.Character.Name) + "\n")
			if session.PartyStats != nil {
				if stats, ok := session.PartyStats.StatsFor(member.ID); ok {
					content.WriteString(fmt.Sprintf("  Level %d %s\n", stats.Level, member.Character.Class))
				}
			}
			content.WriteString(formatResources(session.LiveState[member.ID]))
			content.WriteString("\n")
		}
	}

	if len(session.NPCs) > 0 {
		content.WriteString(titleStyle.Render("KNOWN NPCS") + "\n\n")
		var ids []string
		for id := range session.NPCs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			npc := session.NPCs[id]
			content.WriteString(fmt.Sprintf("• %s (%s %s)\n", id, npc.Rank, npc.Class))
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Act\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• /help: All commands\n")

	return content.String()
}

func formatResources(resources actor.Resources) string {
	if len(resources) == 0 {
		return ""
	}
	var keys []string
	for k := range resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		r := resources[k]
		b.WriteString(fmt.Sprintf("  %s %d/%d\n", k, r.CurrentValue, r.MaxValue))
	}
	return b.String()
}

// writeChatContent builds the chat content from the session transcript
// for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding

	if m.session == nil || len(m.session.History) == 0 {
		m.chatViewport.SetContent(writeInitialContent(m.session, chatWidth))
		return
	}

	var content strings.Builder

	content.WriteString(titleStyle.Render("INFINITE TALES") + "\n\n")
	content.WriteString("Welcome to your tale!\n")
	content.WriteString("Type your actions below to play.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	// Reformat the whole transcript for the current width
	for _, msg := range m.session.History {
		switch msg.Role {
		case "assistant", "system":
			formattedMsg := formatNarratorResponse(msg.Content, chatWidth)
			content.WriteString(formattedMsg + "\n\n")
		case "user":
			userMsg := userStyle.Render("You: ") + wordwrap.String(msg.Content, chatWidth-6) + "\n\n"
			content.WriteString(userMsg)
		}
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle story modal first
	if m.showStoryModal {
		return m.updateStoryModal(msg)
	}

	// Handle quit modal second
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		// Pass all mouse events to the chat viewport for scroll and
		// selection. The component ignores events outside its bounds.
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)

		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if !m.showStoryModal {
			chatWidth := int(float64(m.width)*0.75) - 4
			metaWidth := m.width - chatWidth - 6

			m.chatViewport.Width = chatWidth - 2
			m.chatViewport.Height = m.height - 7
			m.metaViewport.Width = metaWidth - 2
			m.metaViewport.Height = m.height - 4
			m.textarea.SetWidth(chatWidth - 4)

			// Reformat all content for the new width
			m.ready = true
			m.writeChatContent()

			if m.session != nil {
				m.metaViewport.SetContent(writeMetadata(m.session, m.history, m.activeIdx))
			}
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			member, ok := m.activeMember()
			if !ok {
				return m, nil
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0 // Reset progress animation

			// Show the action immediately; the API appends its own
			// transcript entry which replaces this one on refresh.
			m.session.History = append(m.session.History, transcriptMessage("user", member.Character.Name+": "+input))
			m.writeChatContent()

			return m, tea.Batch(m.sendTurnCmd(member.ID, input), progressTick())
		}

	case turnMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.writeChatContent()
			currentContent := m.chatViewport.View()
			errorMsg := errorStyle.Render("Error: "+msg.err.Error()) + "\n\n"
			m.chatViewport.SetContent(currentContent + errorMsg)
			m.chatViewport.GotoBottom()
			return m, m.refreshSession()
		}

		if msg.result.ActionState != nil {
			m.session.History = append(m.session.History, transcriptMessage("assistant", msg.result.ActionState.Story))
		}
		m.writeChatContent()
		if msg.result.Roll != nil {
			currentContent := m.chatViewport.View()
			m.chatViewport.SetContent(currentContent + formatRoll(msg.result.Roll) + "\n\n")
		}
		m.chatViewport.GotoBottom()
		m.advanceMember()
		return m, m.refreshSession()

	case sessionMsg:
		if msg.err == nil && msg.view != nil && msg.view.Session != nil {
			m.session = msg.view.Session
			m.history = msg.view.ActionHistory
			m.metaViewport.SetContent(writeMetadata(m.session, m.history, m.activeIdx))
			m.writeChatContent()
		}

	case actionsMsg:
		m.loading = false
		currentContent := m.chatViewport.View()
		if msg.err != nil {
			m.chatViewport.SetContent(currentContent + errorStyle.Render("Error: "+msg.err.Error()) + "\n\n")
		} else {
			m.chatViewport.SetContent(currentContent + m.formatCandidateActions(msg.actions))
		}
		m.chatViewport.GotoBottom()

	case undoMsg:
		m.loading = false
		currentContent := m.chatViewport.View()
		if msg.err != nil {
			m.chatViewport.SetContent(currentContent + errorStyle.Render("Error: "+msg.err.Error()) + "\n\n")
			m.chatViewport.GotoBottom()
			return m, nil
		}
		m.chatViewport.SetContent(currentContent + loadingStyle.Render("Last turn undone.") + "\n\n")
		m.chatViewport.GotoBottom()
		return m, m.refreshSession()

	case levelUpMsg:
		m.loading = false
		currentContent := m.chatViewport.View()
		if msg.err != nil {
			m.chatViewport.SetContent(currentContent + errorStyle.Render("Error: "+msg.err.Error()) + "\n\n")
			m.chatViewport.GotoBottom()
			return m, nil
		}
		member, _ := m.activeMember()
		notice := fmt.Sprintf("%s reaches level %d!", member.Character.Name, msg.stats.Level)
		m.chatViewport.SetContent(currentContent + diceStyle.Render(notice) + "\n\n")
		m.chatViewport.GotoBottom()
		return m, m.refreshSession()

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()     // Refresh the chat content to update the progress bar
			return m, progressTick() // Continue the animation
		}
	}

	// Update components for non-mouse events
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// advanceMember rotates the acting member after a resolved turn.
func (m *ConsoleUI) advanceMember() {
	if m.session == nil || m.session.Party == nil || len(m.session.Party.Members) == 0 {
		return
	}
	m.activeIdx = (m.activeIdx + 1) % len(m.session.Party.Members)
}

func formatRoll(roll *rollView) string {
	total := roll.Rolled + roll.Modifier + roll.KarmaBonus
	line := fmt.Sprintf("🎲 %d", roll.Rolled)
	if roll.Modifier != 0 {
		line += fmt.Sprintf(" %+d", roll.Modifier)
	}
	if roll.KarmaBonus != 0 {
		line += fmt.Sprintf(" %+d karma", roll.KarmaBonus)
	}
	line += fmt.Sprintf(" = %d vs %d (%s): %s", total, roll.RequiredValue, roll.Difficulty, roll.Result)
	return diceStyle.Render(line)
}

func (m *ConsoleUI) formatCandidateActions(actions map[string][]actor.ProposedAction) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Suggested actions:") + "\n")

	if m.session == nil || m.session.Party == nil {
		return b.String()
	}
	for _, member := range m.session.Party.Members {
		list := actions[member.ID]
		if len(list) == 0 {
			continue
		}
		b.WriteString(speakerStyle.Render(member.Character.Name+":") + "\n")
		for _, action := range list {
			b.WriteString("• " + action.Text)
			if action.ActionDifficulty != "" {
				b.WriteString(promptStyle.Render(fmt.Sprintf(" [%s]", action.ActionDifficulty)))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func formatNarratorResponse(response string, width int) string {
	// Check if response already has a speaker prefix
	hasPrefix := false
	if idx := strings.Index(response, ":"); idx > 0 && idx <= 20 {
		speaker := response[:idx]
		if len(strings.Fields(speaker)) <= 2 {
			hasPrefix = true
		}
	}

	// If no prefix, we'll add "Narrator: " so reduce available width
	wrapWidth := width
	if !hasPrefix {
		narratorPrefix := AgentName + ": "
		wrapWidth = width - len(narratorPrefix)
	}

	// Wrap the text to the available width
	wrappedResponse := wordwrap.String(response, wrapWidth)
	lines := strings.Split(wrappedResponse, "\n")
	var formattedLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			formattedLines = append(formattedLines, "")
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 && idx <= 20 {
			speaker := trimmed[:idx]
			rest := trimmed[idx+1:]
			if len(strings.Fields(speaker)) <= 2 {
				formattedLines = append(formattedLines, speakerStyle.Render(speaker+":")+rest)
				continue
			}
		}

		formattedLines = append(formattedLines, line)
	}

	result := strings.Join(formattedLines, "\n")
	if !hasPrefix && !strings.HasPrefix(strings.TrimSpace(result), speakerStyle.Render("")) {
		result = narratorStyle.Render(AgentName+": ") + result
	}

	return result
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		helpText := `
Commands:
• /help - Show this help
• /party - Show party details
• /actions - Suggest actions for the party
• /next - Switch the acting member
• /undo - Undo the last turn
• /levelup - Level up the acting member
• /copy - Copy the latest narration to the clipboard
• Ctrl+C - Quit game

How to play:
• Type your actions and press Enter
• The narrator will respond to continue the tale
• Be descriptive for better responses
`
		currentContent := m.chatViewport.View()
		m.chatViewport.SetContent(currentContent + titleStyle.Render("Help:") + helpText + "\n")
		m.chatViewport.GotoBottom()

	case "/party":
		var partyText strings.Builder
		partyText.WriteString(titleStyle.Render("Party:") + "\n")
		if m.session != nil && m.session.Party != nil {
			for _, member := range m.session.Party.Members {
				partyText.WriteString(speakerStyle.Render(member.Character.Name) + "\n")
				partyText.WriteString(fmt.Sprintf("  %s %s, %s\n", member.Character.Race, member.Character.Class, member.Character.Alignment))
				if m.session.PartyStats != nil {
					if stats, ok := m.session.PartyStats.StatsFor(member.ID); ok {
						for _, ability := range stats.SpellsAndAbilities {
							partyText.WriteString("  • " + ability.Name + "\n")
						}
					}
				}
			}
		}
		partyText.WriteString("\n")

		currentContent := m.chatViewport.View()
		m.chatViewport.SetContent(currentContent + partyText.String())
		m.chatViewport.GotoBottom()

	case "/actions":
		if m.loading {
			break
		}
		m.textarea.Reset()
		m.loading = true
		m.progressTick = 0
		m.writeChatContent()
		return m, tea.Batch(m.requestActionsCmd(), progressTick())

	case "/next":
		m.advanceMember()
		if member, ok := m.activeMember(); ok {
			currentContent := m.chatViewport.View()
			notice := loadingStyle.Render(member.Character.Name+" acts next.") + "\n\n"
			m.chatViewport.SetContent(currentContent + notice)
			m.chatViewport.GotoBottom()
			m.metaViewport.SetContent(writeMetadata(m.session, m.history, m.activeIdx))
		}

	case "/undo":
		if m.loading {
			break
		}
		m.textarea.Reset()
		m.loading = true
		m.progressTick = 0
		m.writeChatContent()
		return m, tea.Batch(m.undoCmd(), progressTick())

	case "/levelup":
		if m.loading {
			break
		}
		member, ok := m.activeMember()
		if !ok {
			break
		}
		m.textarea.Reset()
		m.loading = true
		m.progressTick = 0
		m.writeChatContent()
		return m, tea.Batch(m.levelUpCmd(member.ID), progressTick())

	case "/copy":
		text := latestNarration(m.session)
		currentContent := m.chatViewport.View()
		var notice string
		if text == "" {
			notice = errorStyle.Render("Nothing to copy yet.")
		} else if err := clipboard.WriteAll(text); err != nil {
			notice = errorStyle.Render("Clipboard unavailable: " + err.Error())
		} else {
			notice = loadingStyle.Render("Narration copied to clipboard.")
		}
		m.chatViewport.SetContent(currentContent + notice + "\n\n")
		m.chatViewport.GotoBottom()
	}

	m.textarea.Reset()
	return m, nil
}

func latestNarration(session *storage.Session) string {
	if session == nil {
		return ""
	}
	for i := len(session.History) - 1; i >= 0; i-- {
		if session.History[i].Role == "assistant" {
			return session.History[i].Content
		}
	}
	return ""
}

func (m ConsoleUI) sendTurnCmd(memberID, text string) tea.Cmd {
	return func() tea.Msg {
		result, err := sendTurn(m.client, m.config.APIBaseURL, m.session.ID, memberID, text)
		return turnMsg{result, err}
	}
}

func (m ConsoleUI) refreshSession() tea.Cmd {
	return func() tea.Msg {
		view, err := getSession(m.client, m.config.APIBaseURL, m.session.ID)
		return sessionMsg{view, err}
	}
}

func (m ConsoleUI) requestActionsCmd() tea.Cmd {
	return func() tea.Msg {
		actions, err := requestActions(m.client, m.config.APIBaseURL, m.session.ID)
		return actionsMsg{actions, err}
	}
}

func (m ConsoleUI) undoCmd() tea.Cmd {
	return func() tea.Msg {
		popped, err := undoTurn(m.client, m.config.APIBaseURL, m.session.ID)
		return undoMsg{popped, err}
	}
}

func (m ConsoleUI) levelUpCmd(memberID string) tea.Cmd {
	return func() tea.Msg {
		stats, err := levelUpMember(m.client, m.config.APIBaseURL, m.session.ID, memberID)
		return levelUpMsg{stats, err}
	}
}

func (m ConsoleUI) createSessionCmd(story actor.Story) tea.Cmd {
	return func() tea.Msg {
		session, err := createSession(m.client, m.config.APIBaseURL, story)
		return sessionCreatedMsg{session, err}
	}
}

func (m ConsoleUI) updateStoryModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case sessionCreatedMsg:
		// Regardless of outcome, we're no longer in the create-session loading phase
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.session = msg.session
			m.showStoryModal = false
			// Set up viewport dimensions now that we have a session
			if m.width > 0 && m.height > 0 {
				chatWidth := int(float64(m.width)*0.75) - 4
				metaWidth := m.width - chatWidth - 6
				m.chatViewport.Width = chatWidth - 2
				m.chatViewport.Height = m.height - 7
				m.metaViewport.Width = metaWidth - 2
				m.metaViewport.Height = m.height - 4
				m.textarea.SetWidth(chatWidth - 4)
			}
			m.chatViewport.SetContent(writeInitialContent(m.session, m.chatViewport.Width-6))
			m.metaViewport.SetContent(writeMetadata(m.session, m.history, m.activeIdx))
			m.textarea.Focus() // Ensure textarea gets focus when modal closes
			m.ready = true
		}
		return m, textarea.Blink // Return focus command

	case tea.KeyMsg:
		if m.err != nil {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				m.showQuitModal = true
				return m, nil
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selectedStory > 0 {
				m.selectedStory--
			}
		case tea.KeyDown:
			if m.selectedStory < len(storyPresets)-1 {
				m.selectedStory++
			}
		case tea.KeyEnter:
			if !m.loading && len(storyPresets) > 0 {
				m.loading = true
				return m, m.createSessionCmd(storyPresets[m.selectedStory].Story)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if m.showStoryModal {
					// We're in story selection, no need to focus textarea
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to abandon your tale?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())

	// Center the modal
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderStoryModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	if m.err != nil {
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to create session: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	} else if m.loading {
		content.WriteString(modalTitleStyle.Render("Creating Your Party..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("The narrator is assembling characters for your tale..."))
	} else {
		content.WriteString(modalTitleStyle.Render("Pick a Tale"))
		content.WriteString("\n\n")

		for i, preset := range storyPresets {
			if i == m.selectedStory {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", preset.Name)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", preset.Name)))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(wordwrap.String(storyPresets[m.selectedStory].Story.AdventureAndMainEvent, 56))
		content.WriteString("\n\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())

	// Center the modal
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showStoryModal {
		return m.renderStoryModal()
	}

	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"", // Add empty line for spacing
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	// Usable content width, minus the 3+3 horizontal padding
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80 // avoid overly wide bars
	} else if usable < 10 {
		usable = 10 // minimum visible bar
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
