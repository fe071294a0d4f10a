// Package main provides the studybuddy CLI entry point.
// This file implements the interactive chat interface using bubbletea.
package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"studybuddy/cmd/studybuddy/ui"
	"studybuddy/internal/backend"
	"studybuddy/internal/config"
	"studybuddy/internal/logging"
	"studybuddy/internal/session"
	"studybuddy/internal/staging"
	"studybuddy/internal/store"
	"studybuddy/internal/voice"
)

// chatModel is the main model for the interactive chat interface
type chatModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	isLoading bool
	editing   bool
	notice    string
	width     int
	height    int
	ready     bool
	cfg       config.Config

	// Backend
	controller *session.Controller
	machine    *voice.Machine
	workspace  string

	// uiMsgs carries events from background collaborators (session
	// hints, voice transcripts, staging updates) into the tea loop.
	uiMsgs chan tea.Msg
}

// Messages for tea updates
type (
	sessionEventMsg session.Event
	transcriptMsg   string
	stagingMsg      struct{}
)

// unavailableEngine is the speech collaborator when no capture device
// is reachable, which is the case for a plain terminal session.
type unavailableEngine struct{}

func (unavailableEngine) RequestPermission(context.Context) error {
	return errors.New("no speech capture device available in terminal mode")
}
func (unavailableEngine) Start(voice.EventSink) error { return nil }
func (unavailableEngine) Stop()                       {}

// initChat initializes the interactive chat model
func initChat() (chatModel, error) {
	workspace := resolveWorkspace()

	cfg, err := config.Load(workspace)
	if err != nil {
		return chatModel{}, err
	}
	if err := logging.Initialize(workspace, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
	}); err != nil {
		return chatModel{}, err
	}

	styles := ui.DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask me anything... (Enter to send, /help for commands)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	uiMsgs := make(chan tea.Msg, 64)
	push := func(msg tea.Msg) {
		select {
		case uiMsgs <- msg:
		default: // never block a collaborator on a slow UI
		}
	}

	responder, err := backend.NewFromConfig(context.Background(), cfg.Generation)
	if err != nil {
		return chatModel{}, err
	}

	var convStore store.ConversationStore
	if cfg.Storage.Enabled {
		s, serr := store.NewSQLiteStore(filepath.Join(workspace, cfg.Storage.DatabasePath))
		if serr != nil {
			return chatModel{}, serr
		}
		convStore = s
	}

	stagingMgr := staging.NewManager(
		cfg.Limits.MaxImages,
		cfg.Limits.MaxImageSizeBytes(),
		func() { push(stagingMsg{}) },
	)

	controller := session.New(session.Options{
		Responder: responder,
		Store:     convStore,
		Staging:   stagingMgr,
		Notify:    func(e session.Event) { push(sessionEventMsg(e)) },
	})

	machine := voice.NewMachine(unavailableEngine{}, voiceConfigFrom(cfg.Voice), voice.Hooks{
		TranscriptChanged: func(display string) {
			controller.SetDraft(display)
			push(transcriptMsg(display))
		},
		Finalized: func(text string, hasTranscript bool) {
			controller.FinalizeVoice(text, hasTranscript)
			push(transcriptMsg(text))
		},
		Notice: controller.PushNotice,
	})

	return chatModel{
		textinput:  ti,
		viewport:   vp,
		spinner:    sp,
		styles:     styles,
		renderer:   renderer,
		cfg:        cfg,
		controller: controller,
		machine:    machine,
		workspace:  workspace,
		uiMsgs:     uiMsgs,
	}, nil
}

// voiceConfigFrom converts the config durations, falling back to the
// documented defaults so an invalid string never arms a zero timer.
func voiceConfigFrom(cfg config.VoiceConfig) voice.Config {
	return voice.Config{
		StartTimeout:       config.ParseDurationOr(cfg.StartTimeout, 3*time.Second),
		TickInterval:       config.ParseDurationOr(cfg.TickInterval, time.Second),
		MaxDuration:        config.ParseDurationOr(cfg.MaxDuration, 120*time.Second),
		RestartDelay:       config.ParseDurationOr(cfg.RestartDelay, 300*time.Millisecond),
		NetworkErrorBudget: cfg.NetworkErrorBudget,
		TotalErrorBudget:   cfg.TotalErrorBudget,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForUIMsg(),
	)
}

// waitForUIMsg relays the next collaborator event into the tea loop.
func (m chatModel) waitForUIMsg() tea.Cmd {
	return func() tea.Msg { return <-m.uiMsgs }
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.editing {
				m.controller.CancelEdit()
				m.editing = false
				m.textinput.SetValue("")
				m.textinput.Placeholder = "Ask me anything... (Enter to send, /help for commands)"
				m.notice = "Edit cancelled."
				return m, nil
			}
			if m.machine.Recording() {
				m.machine.Cancel()
				m.controller.DiscardVoice()
				m.textinput.SetValue("")
				m.notice = "Voice capture cancelled."
				return m, nil
			}
			return m, tea.Quit

		case tea.KeyEnter:
			return m.handleSubmit()
		}

		m.textinput, tiCmd = m.textinput.Update(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		footerHeight := 3
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.viewport.SetContent(m.renderTimeline())

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case sessionEventMsg:
		cmd := m.handleSessionEvent(session.Event(msg))
		return m, tea.Batch(cmd, m.waitForUIMsg())

	case transcriptMsg:
		m.textinput.SetValue(string(msg))
		m.textinput.CursorEnd()
		return m, m.waitForUIMsg()

	case stagingMsg:
		// Redraw so the attachment badge tracks the staged set.
		return m, m.waitForUIMsg()
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// handleSessionEvent applies one controller hint to the view.
func (m *chatModel) handleSessionEvent(e session.Event) tea.Cmd {
	switch e.Kind {
	case session.EventScrollToEnd:
		m.viewport.SetContent(m.renderTimeline())
		m.viewport.GotoBottom()

	case session.EventFocusInput:
		m.textinput.Focus()

	case session.EventTypingChanged:
		m.isLoading = m.controller.Typing()
		m.viewport.SetContent(m.renderTimeline())
		if m.isLoading {
			return m.spinner.Tick
		}

	case session.EventNotice:
		m.notice = e.Text
	}
	return nil
}

// handleSubmit processes Enter: commit an edit, run a slash command, or
// send the drafted message.
func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.textinput.Value())

	if m.editing {
		switch err := m.controller.SaveEdit(value); {
		case errors.Is(err, session.ErrEmptyEdit):
			m.notice = "Edited text cannot be empty."
			return m, nil
		case err != nil:
			m.notice = err.Error()
			return m, nil
		}
		m.editing = false
		m.textinput.SetValue("")
		m.textinput.Placeholder = "Ask me anything... (Enter to send, /help for commands)"
		m.notice = ""
		return m, nil
	}

	if strings.HasPrefix(value, "/") {
		return m.handleCommand(value)
	}

	if m.machine.Recording() {
		// Enter while dictating finalizes first; the transcript lands
		// in the input for review, not straight into the timeline.
		m.machine.Stop()
		return m, nil
	}

	switch err := m.controller.Send(value); {
	case errors.Is(err, session.ErrEmptyMessage):
		return m, nil
	case errors.Is(err, session.ErrGenerationInFlight):
		m.notice = "Still thinking. Use /stop to interrupt."
		return m, nil
	case err != nil:
		m.notice = err.Error()
		return m, nil
	}

	m.textinput.SetValue("")
	m.notice = ""
	return m, nil
}

// handleCommand dispatches a slash command.
func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]
	m.textinput.SetValue("")

	switch cmd {
	case "/help":
		m.notice = "/attach <file>... • /remove <n> • /edit <n> • /regenerate • /stop • /voice • /clear • Esc: quit"

	case "/attach":
		if len(args) == 0 {
			m.notice = "Usage: /attach <file> [file...]"
			return m, nil
		}
		m.notice = m.attachFiles(args)

	case "/remove":
		if len(args) != 1 {
			m.notice = "Usage: /remove <n>"
			return m, nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || m.controller.Staging().Remove(n-1) != nil {
			m.notice = "No such attachment."
			return m, nil
		}
		m.notice = "Attachment removed."

	case "/edit":
		if len(args) != 1 {
			m.notice = "Usage: /edit <message number>"
			return m, nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			m.notice = "Usage: /edit <message number>"
			return m, nil
		}
		text, err := m.controller.StartEdit(n - 1)
		switch {
		case errors.Is(err, session.ErrNotEditable):
			m.notice = "Only your own messages can be edited."
		case errors.Is(err, session.ErrGenerationInFlight):
			m.notice = "Still thinking. Use /stop to interrupt."
		case err != nil:
			m.notice = err.Error()
		default:
			m.editing = true
			m.textinput.SetValue(text)
			m.textinput.CursorEnd()
			m.textinput.Placeholder = "Edit your message (Enter to save, Esc to cancel)"
			m.notice = fmt.Sprintf("Editing message %d. Later messages will be discarded on save.", n)
		}

	case "/regenerate":
		m.controller.Regenerate()

	case "/stop":
		m.controller.CancelGeneration()

	case "/voice":
		if m.machine.Recording() {
			m.machine.Stop()
			return m, nil
		}
		machine := m.machine
		return m, func() tea.Msg {
			// Errors surface through the Notice hook.
			_ = machine.Start(context.Background())
			return nil
		}

	case "/clear":
		m.controller.Clear()
		m.viewport.SetContent("")
		m.notice = "Conversation cleared."

	default:
		m.notice = fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	}
	return m, nil
}

// attachFiles stages each path and reports the outcome.
func (m chatModel) attachFiles(paths []string) string {
	candidates := make([]staging.Candidate, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Sprintf("Could not read %s: %v", p, err)
		}
		candidates = append(candidates, staging.Candidate{
			Name: filepath.Base(p),
			MIME: mimeForFile(p, data),
			Data: data,
		})
	}

	rejected := m.controller.Staging().StageAll(candidates)
	if len(rejected) == 0 {
		return fmt.Sprintf("Attached %d file(s).", len(candidates))
	}

	parts := make([]string, len(rejected))
	for i, err := range rejected {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// mimeForFile resolves a candidate's MIME type from its extension,
// sniffing the content when the extension is unknown.
func mimeForFile(path string, data []byte) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return http.DetectContentType(data)
}

// renderTimeline renders the conversation for the viewport.
func (m chatModel) renderTimeline() string {
	var sb strings.Builder

	for _, msg := range m.controller.Messages() {
		if msg.Sender == session.SenderUser {
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			label := fmt.Sprintf("You [%d]", msg.Index+1)
			if msg.IsVoice {
				label += " 🎤"
			}
			sb.WriteString(userStyle.Render(label) + "\n")
			sb.WriteString(m.styles.UserInput.Render(msg.Text))
			if n := len(msg.Images); n > 0 {
				sb.WriteString("\n" + m.styles.Muted.Render(fmt.Sprintf("📎 %d image(s) attached", n)))
			}
			sb.WriteString("\n\n")
		} else {
			assistantStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(assistantStyle.Render("📚 studybuddy") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Text))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery
func (m chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			// If glamour panics, return plain text
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()
	chatView := m.styles.Content.Render(m.viewport.View())

	if m.isLoading {
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Thinking..."
	}
	if m.notice != "" {
		chatView += "\n" + m.styles.Info.Render(m.notice)
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.renderFooter()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m chatModel) renderHeader() string {
	title := m.styles.Header.Render(" 📚 studybuddy ")
	version := m.styles.Badge.Render("v" + m.cfg.Version)

	var status string
	switch {
	case m.isLoading:
		status = m.styles.Warning.Render("● Thinking")
	case m.machine.Recording():
		status = m.styles.Error.Render("● Recording")
	default:
		status = m.styles.Success.Render("● Ready")
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		version,
		"  ",
		status,
	)

	workspace := m.styles.Muted.Render(fmt.Sprintf(" 📁 %s", m.workspace))
	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		workspace,
		m.styles.RenderDivider(m.width),
	)
}

func (m chatModel) renderFooter() string {
	left := "💬 Chat"
	if m.editing {
		left = "✏️ Editing"
	}
	if n := m.controller.Staging().Count(); n > 0 {
		left += fmt.Sprintf(" • 📎 %d staged", n)
	}
	help := m.styles.Muted.Render(fmt.Sprintf("%s • Enter: send • /help: commands • Esc: exit", left))
	return lipgloss.NewStyle().
		MarginTop(1).
		Render(help)
}

// runInteractiveChat starts the interactive chat interface
func runInteractiveChat() error {
	model, err := initChat()
	if err != nil {
		return err
	}
	defer logging.Shutdown()

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err = p.Run()
	return err
}
