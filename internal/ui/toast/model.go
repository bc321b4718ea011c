package toast

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/health-notify/internal/keys"
	"github.com/nhle/health-notify/internal/routing"
	"github.com/nhle/health-notify/internal/theme"
	"github.com/nhle/health-notify/internal/toast"
)

// maxVisible caps how many toasts are stacked on screen.
const maxVisible = toast.MaxVisible

// ExpireMsg fires when the oldest visible toast may have timed out.
type ExpireMsg struct {
	At time.Time
}

// OpenMsg asks the parent to activate a toast.
type OpenMsg struct {
	ToastID string
}

// DismissMsg asks the parent to close a toast without opening it.
type DismissMsg struct {
	ToastID string
}

// ExpireCmd schedules an ExpireMsg after d.
func ExpireCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return ExpireMsg{At: t}
	})
}

// Model renders the toast stack in the top right corner.
type Model struct {
	toasts  []toast.Toast
	focused bool
	cursor  int
	keys    *keys.KeyMap
	width   int
}

// New creates an empty toast overlay.
func New(k *keys.KeyMap, width int) Model {
	return Model{keys: k, width: width}
}

// SetToasts replaces the displayed toasts with the queue's active list.
func (m *Model) SetToasts(ts []toast.Toast) {
	m.toasts = ts
	if len(ts) == 0 {
		m.focused = false
		m.cursor = 0
		return
	}
	if m.cursor >= len(ts) {
		m.cursor = len(ts) - 1
	}
}

// Focused reports whether the overlay has keyboard focus.
func (m Model) Focused() bool {
	return m.focused && len(m.toasts) > 0
}

// Focus gives the overlay keyboard focus. The returned toast id should
// be held so it does not expire while the user reads it.
func (m *Model) Focus() (string, bool) {
	if len(m.toasts) == 0 {
		return "", false
	}
	m.focused = true
	return m.toasts[m.cursor].ID, true
}

// Blur returns keyboard focus to the underlying view.
func (m *Model) Blur() {
	m.focused = false
}

// Update handles keys while the overlay is focused.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok || !m.Focused() {
		return m, nil
	}

	switch {
	case key.Matches(kmsg, m.keys.Back), key.Matches(kmsg, m.keys.ToastFocus):
		m.focused = false

	case key.Matches(kmsg, m.keys.Down):
		if m.cursor < min(len(m.toasts), maxVisible)-1 {
			m.cursor++
		}

	case key.Matches(kmsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(kmsg, m.keys.Select), key.Matches(kmsg, m.keys.ToastOpen):
		id := m.toasts[m.cursor].ID
		return m, func() tea.Msg { return OpenMsg{ToastID: id} }

	case key.Matches(kmsg, m.keys.ToastDismiss):
		id := m.toasts[m.cursor].ID
		return m, func() tea.Msg { return DismissMsg{ToastID: id} }
	}
	return m, nil
}

// View renders the stacked toasts, newest on top.
func (m Model) View() string {
	if len(m.toasts) == 0 {
		return ""
	}

	w := min(max(m.width/3, 30), 48)
	var cards []string
	for i, t := range m.toasts {
		if i == maxVisible {
			more := lipgloss.NewStyle().
				Foreground(theme.ColorGray).
				Render("+ more unread")
			cards = append(cards, more)
			break
		}

		d := routing.Describe(t.Notification.Type)
		title := t.Notification.Title
		if title == "" {
			title = d.Label
		}
		header := theme.CategoryStyle(string(d.Category)).Render(d.Icon+" "+d.Label)
		body := lipgloss.NewStyle().Width(w - 4).MaxHeight(2).Render(title)

		style := theme.ToastStyle
		if m.Focused() && i == m.cursor {
			style = theme.FocusedToastStyle
		}
		cards = append(cards, style.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, header, body)))
	}

	if m.Focused() {
		hint := theme.HelpStyle.Render("enter open · x close · esc back")
		cards = append(cards, hint)
	}
	return lipgloss.JoinVertical(lipgloss.Right, cards...)
}

// SetWidth updates the available width.
func (m *Model) SetWidth(width int) {
	m.width = width
}
