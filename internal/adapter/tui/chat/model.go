// Package chat is the terminal chat surface: a conversation pane over the
// session controller, with tool-call progress lines for image generation.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"canvaschat/internal/domain"
	"canvaschat/internal/usecase"
)

// Deps are the dependencies injected into the chat model.
type Deps struct {
	Session *usecase.Session
	Logger  *slog.Logger
	// Theme is the persisted markdown style name; empty or unrecognized
	// values fall back to terminal auto-detection.
	Theme string
}

// messagesMsg delivers a fresh message list from the session observer.
type messagesMsg []domain.Message

// sendDoneMsg reports completion of an in-flight Send.
type sendDoneMsg struct{ err error }

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// Model is the root Bubble Tea model.
type Model struct {
	deps Deps

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	updates chan []domain.Message

	projectName string
	msgs        []domain.Message
	waiting     bool
	status      string
	width       int
	height      int
	ready       bool
	quitting    bool
}

// New creates the chat model and hooks it into the session's update stream.
func New(deps Deps, projectName string, seed []domain.Message) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	input := textarea.New()
	input.Placeholder = "Describe what to draw..."
	input.SetHeight(2)
	input.CharLimit = 0
	input.ShowLineNumbers = false
	input.Focus()

	updates := make(chan []domain.Message, 16)
	deps.Session.OnUpdate(func(msgs []domain.Message) {
		select {
		case updates <- msgs:
		default:
			// A newer list will follow; dropping an intermediate one is fine.
		}
	})

	return Model{
		deps:        deps,
		input:       input,
		spinner:     sp,
		updates:     updates,
		projectName: projectName,
		msgs:        seed,
	}
}

// Init starts the blink, the spinner and the update listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForUpdate())
}

// waitForUpdate blocks on the session observer channel.
func (m Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return messagesMsg(<-m.updates)
	}
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshContent()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		}

	case messagesMsg:
		m.msgs = msg
		m.refreshContent()
		return m, m.waitForUpdate()

	case sendDoneMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = errStyle.Render(msg.err.Error())
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.waiting {
		return m, nil
	}
	m.input.Reset()
	m.waiting = true
	m.status = ""

	session := m.deps.Session
	return m, func() tea.Msg {
		return sendDoneMsg{err: session.Send(context.Background(), text, nil)}
	}
}

// View renders the chat UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "  Loading..."
	}

	header := headerStyle.Render("◆ " + m.projectName)

	inputView := m.input.View()
	if m.waiting {
		inputView = m.spinner.View() + " " + helpStyle.Render("generating...")
	}

	parts := []string{header, m.viewport.View(), inputView}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, helpStyle.Render("enter: send · esc: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// layout resizes sub-models after a window change.
func (m *Model) layout() {
	headerH, inputH, helpH := 1, 2, 2
	vpHeight := m.height - headerH - inputH - helpH
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(m.width)

	style := glamour.WithAutoStyle()
	if name := NormalizeTheme(m.deps.Theme); name != "" {
		style = glamour.WithStandardStyle(name)
	}
	renderer, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(m.width),
	)
	if err != nil {
		m.deps.Logger.Warn("markdown renderer unavailable", "error", err)
		m.renderer = nil
	} else {
		m.renderer = renderer
	}
}

// refreshContent re-renders the conversation into the viewport and follows
// the tail.
func (m *Model) refreshContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderConversation(m.msgs, m.renderer))
	m.viewport.GotoBottom()
}

// renderConversation formats the message list for display. A nil renderer
// falls back to plain text.
func renderConversation(msgs []domain.Message, renderer *glamour.TermRenderer) string {
	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("You") + "  " + msg.Content + "\n\n")
		case domain.RoleAssistant:
			for _, tc := range msg.ToolCalls {
				b.WriteString(renderToolCall(tc) + "\n")
			}
			if msg.Content != "" {
				b.WriteString(renderMarkdown(msg.Content, renderer) + "\n")
			}
			if msg.HasToolCalls() || msg.Content != "" {
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderToolCall(tc domain.ToolCall) string {
	label := tc.Name
	if prompt, ok := tc.Arguments["prompt"].(string); ok && prompt != "" {
		label = fmt.Sprintf("%s(%q)", tc.Name, prompt)
	}
	if tc.Status == domain.ToolCallDone {
		line := doneStyle.Render("✓ " + label)
		if tc.ImageURL != "" {
			line += helpStyle.Render("  " + tc.ImageURL)
		}
		return line
	}
	return toolStyle.Render("⚙ " + label + "...")
}

// NormalizeTheme maps a stored theme name to a glamour standard style.
// Anything unrecognized (including the empty default) means auto-detect.
func NormalizeTheme(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "dark":
		return "dark"
	case "light":
		return "light"
	default:
		return ""
	}
}

func renderMarkdown(content string, renderer *glamour.TermRenderer) string {
	if renderer == nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
