package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/health-notify/internal/theme"
)

// Layout splits the terminal into a one-line header, the content area
// with an optional toast column on the right, and a one-line status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout for a terminal of width by height cells.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full terminal width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left between the header and the status
// bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// ListWidth returns the width of the list and detail views, which give
// up the toast column while toasts are on screen.
func (l Layout) ListWidth(toasts bool) int {
	if !toasts {
		return l.Width
	}
	return max(l.Width-l.ToastWidth(), 0)
}

// ToastWidth returns the width reserved for the toast stack.
func (l Layout) ToastWidth() int {
	return min(max(l.Width/3, 30), 48) + 3
}

// RenderHeader renders the header bar: the inbox title on the left and
// the sync status on the right.
func (l Layout) RenderHeader(title, syncStatus string) string {
	return l.bar(theme.HeaderStyle, theme.HeaderStyle.Render(title),
		theme.HeaderStyle.Align(lipgloss.Right).Render(syncStatus))
}

// RenderStatusBar renders the key hints across the bottom row.
func (l Layout) RenderStatusBar(hints string) string {
	return l.bar(theme.StatusBarStyle, theme.StatusBarStyle.Render(hints), "")
}

// RenderErrorBar renders a full-width banner for auth and sync errors.
func (l Layout) RenderErrorBar(message string) string {
	return theme.ErrorBarStyle.
		Width(l.Width).
		MaxHeight(1).
		Render(message)
}

// bar joins left and right with a filler in the background of style.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	gap := max(l.Width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
	if right == "" {
		return lipgloss.JoinHorizontal(lipgloss.Top, left, filler)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}

// WithToasts places the toast stack to the right of the content.
func (l Layout) WithToasts(content, toasts string) string {
	if toasts == "" {
		return content
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, content, " ", toasts)
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
