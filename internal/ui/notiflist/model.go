package notiflist

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/health-notify/internal/keys"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/routing"
	"github.com/nhle/health-notify/internal/theme"
)

// SelectedMsg is sent when the user opens a notification.
type SelectedMsg struct {
	Notification model.Notification
}

// ActionMsg asks the parent to apply a lifecycle operation.
type ActionMsg struct {
	Op lifecycle.Op
	ID string
}

// TypeFilterMsg is sent when the user changes the type filter. An empty
// Type clears it.
type TypeFilterMsg struct {
	Type model.Type
}

// Model is the notification list view component.
type Model struct {
	list        list.Model
	keys        *keys.KeyMap
	filter      model.Filter
	filterMode  bool
	filterInput textinput.Model
	loading     bool
	width       int
	height      int
}

// New creates a new notification list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notification", "notifications")

	fi := textinput.New()
	fi.Placeholder = "notification type, e.g. medical_event (empty clears)"
	fi.Prompt = "/ "
	fi.Width = width - 4
	fi.ShowSuggestions = true
	suggestions := make([]string, 0, len(routing.Types()))
	for _, t := range routing.Types() {
		suggestions = append(suggestions, string(t))
	}
	fi.SetSuggestions(suggestions)

	return Model{
		list:        l,
		keys:        k,
		filterInput: fi,
		loading:     true,
		width:       width,
		height:      height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.filterMode {
			return m.handleFilterKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleFilterKeys processes key input while the type filter is edited.
func (m Model) handleFilterKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filterMode = false
		t := model.Type(strings.TrimSpace(m.filterInput.Value()))
		return m, func() tea.Msg { return TypeFilterMsg{Type: t} }

	case "esc":
		m.filterMode = false
		m.filterInput.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		n, ok := m.SelectedNotification()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return SelectedMsg{Notification: n} }

	case key.Matches(msg, m.keys.TypeFilter):
		m.filterMode = true
		m.filterInput.SetValue(string(m.filter.Type))
		return m, m.filterInput.Focus()

	case key.Matches(msg, m.keys.MarkRead):
		return m, m.action(lifecycle.OpMarkRead)

	case key.Matches(msg, m.keys.Archive):
		return m, m.action(lifecycle.OpArchive)

	case key.Matches(msg, m.keys.Restore):
		return m, m.action(lifecycle.OpRestore)

	case key.Matches(msg, m.keys.Delete):
		return m, m.action(lifecycle.OpDelete)
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) action(op lifecycle.Op) tea.Cmd {
	n, ok := m.SelectedNotification()
	if !ok {
		return nil
	}
	id := n.ID
	return func() tea.Msg { return ActionMsg{Op: op, ID: id} }
}

// View renders the list view.
func (m Model) View() string {
	if m.filterMode {
		filterBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.filterInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, filterBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when the list is empty.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return style.Render("Loading notifications...")
	case m.filter.Type != "":
		return style.Render("No " + routing.Describe(m.filter.Type).Label + " notifications.\nPress / to change the filter.")
	case m.filter.Status == model.StatusArchived:
		return style.Render("Nothing archived.")
	default:
		return style.Render("You're all caught up.")
	}
}

// SetNotifications replaces the displayed notifications, keeping the
// cursor on the same notification when it is still present.
func (m *Model) SetNotifications(notifications []model.Notification) tea.Cmd {
	m.loading = false

	selectedID := ""
	if n, ok := m.SelectedNotification(); ok {
		selectedID = n.ID
	}

	items := make([]list.Item, len(notifications))
	cursor := -1
	for i, n := range notifications {
		items[i] = Item{Notification: n}
		if n.ID == selectedID {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	if cursor >= 0 {
		m.list.Select(cursor)
	}
	return cmd
}

// SetFilter updates the filter shown in the title.
func (m *Model) SetFilter(f model.Filter) {
	m.filter = f
	m.loading = true

	title := "Inbox"
	if f.Status == model.StatusArchived {
		title = "Archived"
	} else if f.Status != "" {
		title = strings.ToLower(string(f.Status)) + " notifications"
	}
	if f.Type != "" {
		title += " · " + routing.Describe(f.Type).Label
	}
	m.list.Title = title
}

// Filter returns the filter currently displayed.
func (m Model) Filter() model.Filter {
	return m.filter
}

// SelectedNotification returns the notification under the cursor.
func (m Model) SelectedNotification() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Editing reports whether the type filter input has focus.
func (m Model) Editing() bool {
	return m.filterMode
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.filterInput.Width = width - 4
}
