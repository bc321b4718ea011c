package confirm

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/routing"
	"github.com/nhle/health-notify/internal/theme"
)

// ConfirmedMsg is dispatched when the user confirms the deletion.
type ConfirmedMsg struct {
	ID string
}

// CancelledMsg is dispatched when the user backs out.
type CancelledMsg struct{}

// binding holds the confirm value on the heap so that huh's Value()
// pointer remains valid across Bubble Tea model copies.
type binding struct {
	yes bool
}

// Model asks the user to confirm deleting a notification.
type Model struct {
	form   *huh.Form
	b      *binding
	id     string
	title  string
	width  int
	height int
}

// New creates an idle confirm dialog.
func New(width, height int) Model {
	return Model{
		b:      &binding{},
		width:  width,
		height: height,
	}
}

// Start opens the dialog for n.
func (m *Model) Start(n model.Notification) tea.Cmd {
	m.id = n.ID
	m.title = n.Title
	if m.title == "" {
		m.title = routing.Describe(n.Type).Label
	}
	m.b.yes = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Delete this notification?").
				Description(m.title + "\nThis cannot be undone.").
				Affirmative("Delete").
				Negative("Keep").
				Value(&m.b.yes),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
	return m.form.Init()
}

// Update handles messages for the dialog.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		if !m.b.yes {
			return m, func() tea.Msg { return CancelledMsg{} }
		}
		id := m.id
		return m, func() tea.Msg { return ConfirmedMsg{ID: id} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelledMsg{} }
	}

	return m, cmd
}

// View renders the dialog.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(theme.BorderStyle.Padding(0, 1).Render(m.form.View()))
}

// SetSize updates the dialog dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-8, 30), 60)
}
