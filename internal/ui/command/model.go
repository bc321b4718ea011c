package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/health-notify/internal/theme"
)

// Names of the palette commands.
const (
	Refresh  = "refresh"
	ReadAll  = "read-all"
	Inbox    = "inbox"
	Archived = "archived"
	Type     = "type"
	Quit     = "quit"
)

// Names lists the palette commands for completion.
var Names = []string{Refresh, ReadAll, Inbox, Archived, Type, Quit}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name string
	Arg  string
}

// Parse splits a command line into its name and optional argument.
// Common aliases are folded to their canonical names.
func Parse(line string) CommandMsg {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return CommandMsg{}
	}
	name := strings.ToLower(fields[0])
	switch name {
	case "r", "sync":
		name = Refresh
	case "readall", "read_all", "mark-all-read":
		name = ReadAll
	case "q", "exit":
		name = Quit
	}
	return CommandMsg{Name: name, Arg: strings.Join(fields[1:], " ")}
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = strings.Join(Names, " · ")
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(Names)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		c := Parse(m.input.Value())
		m.input.Reset()
		if c.Name == "" {
			return m, nil
		}
		return m, func() tea.Msg { return c }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Command Palette"),
		m.input.View(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
