package detail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/health-notify/internal/enrich"
	"github.com/nhle/health-notify/internal/keys"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/routing"
	"github.com/nhle/health-notify/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// LoadedMsg carries the resolved detail of a notification.
type LoadedMsg struct {
	Detail enrich.Detail
}

// ActionMsg signals the parent to apply a lifecycle operation to the
// displayed notification.
type ActionMsg struct {
	Op lifecycle.Op
	ID string
}

// Model is the notification detail view component.
type Model struct {
	detail   *enrich.Detail
	action   routing.Action
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		d := msg.Detail
		m.detail = &d
		m.loading = false
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.MarkRead):
			return m, m.emit(lifecycle.OpMarkRead)

		case key.Matches(msg, m.keys.Archive):
			return m, m.emit(lifecycle.OpArchive)

		case key.Matches(msg, m.keys.Restore):
			return m, m.emit(lifecycle.OpRestore)

		case key.Matches(msg, m.keys.Delete):
			return m, m.emit(lifecycle.OpDelete)
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) emit(op lifecycle.Op) tea.Cmd {
	if m.detail == nil {
		return nil
	}
	id := m.detail.Notification.ID
	return func() tea.Msg {
		return ActionMsg{Op: op, ID: id}
	}
}

// View renders the detail view.
func (m Model) View() string {
	if m.detail == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		if m.loading {
			return emptyStyle.Render("Loading notification...")
		}
		return emptyStyle.Render("No notification selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
// Title, message and timestamps are always rendered; the related record
// section degrades on its own.
func (m Model) renderContent() string {
	if m.detail == nil {
		return ""
	}

	n := m.detail.Notification
	desc := m.detail.Descriptor
	var sections []string

	// Title
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	title := n.Title
	if title == "" {
		title = desc.Label
	}
	sections = append(sections, titleStyle.Render(title))

	// Badges line: type + status
	typeBadge := theme.CategoryStyle(string(desc.Category)).Render(desc.Icon + " " + desc.Label)
	statusBadge := theme.StatusStyle(string(n.Status)).Render(string(n.Status))
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, typeBadge, "  ", statusBadge))
	sections = append(sections, "")

	// Metadata table
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		sections = append(sections, fmt.Sprintf(
			"%s %s",
			metaStyle.Render(fmt.Sprintf("%-10s", label+":")),
			valStyle.Render(value),
		))
	}

	row("Created", formatTime(&n.CreatedAt))
	if n.SentAt != nil {
		row("Sent", formatTime(n.SentAt))
	}
	if n.ReadAt != nil {
		row("Read", formatTime(n.ReadAt))
	}
	if n.ArchivedAt != nil {
		row("Archived", formatTime(n.ArchivedAt))
	}
	if m.action.Kind == routing.KindNavigate && m.action.Route != "" {
		row("Open in", m.action.Route)
	}

	refKeys := make([]string, 0, len(n.Related))
	for k := range n.Related {
		refKeys = append(refKeys, k)
	}
	sort.Strings(refKeys)
	for _, k := range refKeys {
		if v := n.Related.String(k); v != "" {
			row(k, v)
		}
	}

	// Separator
	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	// Message
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	sections = append(sections, headerStyle.Render("Message"))
	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	if desc.Enrich {
		sections = append(sections, "", separator, "")
		sections = append(sections, m.renderEnrichment(headerStyle, metaStyle, valStyle)...)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderEnrichment(headerStyle, metaStyle, valStyle lipgloss.Style) []string {
	d := m.detail
	out := []string{headerStyle.Render("Details")}

	if d.Unavailable {
		out = append(out, lipgloss.NewStyle().
			Foreground(theme.ColorYellow).
			Italic(true).
			Render("Details unavailable. Press esc and reopen to retry."))
		return out
	}
	if !d.Enriched() {
		out = append(out, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No further details."))
		return out
	}

	if d.Descriptor.Category == routing.CategoryMedical {
		if inc, err := enrich.DecodeIncident(d.Payload); err == nil {
			for _, f := range inc.Fields() {
				out = append(out, fmt.Sprintf(
					"%s %s",
					metaStyle.Render(fmt.Sprintf("%-16s", f[0]+":")),
					valStyle.Render(f[1]),
				))
			}
			return out
		}
	}

	// Unknown payload shape: show it indented.
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.Payload, "", "  "); err != nil {
		out = append(out, string(d.Payload))
		return out
	}
	out = append(out, buf.String())
	return out
}

// Show starts displaying n while its detail loads.
func (m *Model) Show(n model.Notification, action routing.Action) {
	m.action = action
	m.loading = true
	m.detail = &enrich.Detail{Notification: n, Descriptor: routing.Describe(n.Type)}
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Update the displayed notification's status after a mutation or poll
// without re-fetching its details.
func (m *Model) Refresh(n model.Notification) {
	if m.detail == nil || m.detail.Notification.ID != n.ID {
		return
	}
	m.detail.Notification = n
	m.viewport.SetContent(m.renderContent())
}

// CurrentID returns the id of the displayed notification.
func (m Model) CurrentID() string {
	if m.detail == nil {
		return ""
	}
	return m.detail.Notification.ID
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.detail != nil {
		m.viewport.SetContent(m.renderContent())
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
