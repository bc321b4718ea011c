package app

import (
	"fmt"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/model"
)

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerTitle := "Notifications"
	if m.unread > 0 {
		headerTitle = fmt.Sprintf("Notifications [%d new]", m.unread)
	}
	header := m.layout.RenderHeader(headerTitle, m.syncStatus())

	content := m.renderContent()
	if m.currentView != ViewHelp && m.currentView != ViewCommand {
		content = m.layout.WithToasts(content, m.toastView.View())
	}

	var statusBar string
	switch {
	case m.authError != "":
		statusBar = m.layout.RenderErrorBar(m.authError)
	case m.flash != "":
		statusBar = m.layout.RenderErrorBar(m.flash)
	default:
		statusBar = m.layout.RenderStatusBar(m.keyHints())
	}

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.list.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewConfirm:
		return m.confirmView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the sync state of the
// view on screen.
func (m Model) syncStatus() string {
	account := ""
	if m.deps.Session != nil {
		account = m.deps.Session.Label() + " · "
	}

	e := m.current
	if e == nil {
		return account + "connecting"
	}
	if e.Loading() {
		return account + "syncing"
	}
	if err := e.LastError(); err != nil {
		switch api.KindOf(err) {
		case api.KindNetwork:
			return account + "⚠ offline"
		case api.KindUnauthorized:
			return account + "⚠ signed out"
		default:
			return account + "⚠ sync failed"
		}
	}
	if m.lastSync.IsZero() {
		return account + "cached"
	}
	return account + "synced " + m.lastSync.Format("15:04")
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.toastView.Focused() {
		return "enter open | x close | j/k move | esc back"
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewConfirm:
		return "←/→ choose | enter confirm | esc cancel"
	case ViewDetail:
		return "esc back | m read | a archive | u restore | d delete | j/k scroll"
	default:
		if m.list.Editing() {
			return "enter apply | tab complete | esc cancel"
		}
		hints := "q quit | ? help | enter open | m read | a archive | d delete | M read all"
		if m.filter.Status == model.StatusArchived {
			hints = "q quit | ? help | u restore | d delete | 1 inbox"
		}
		if len(m.deps.Toasts.Active()) > 0 {
			hints += " | tab toasts"
		}
		return hints
	}
}
