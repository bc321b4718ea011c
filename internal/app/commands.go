package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/health-notify/internal/enrich"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/routing"
	appsync "github.com/nhle/health-notify/internal/sync"
	"github.com/nhle/health-notify/internal/toast"
	"github.com/nhle/health-notify/internal/ui/detail"
)

// requestTimeout bounds the user-triggered calls made from commands.
const requestTimeout = 30 * time.Second

// engineReadyMsg is sent once the engine for filter has done its first
// fetch (or failed to).
type engineReadyMsg struct {
	filter model.Filter
	engine *appsync.Engine
	err    error
}

// engineEventMsg carries one event from an engine subscription. ok is
// false once the engine has closed the channel.
type engineEventMsg struct {
	engine *appsync.Engine
	ch     <-chan appsync.Event
	event  appsync.Event
	ok     bool
}

// mutationDoneMsg is sent when a lifecycle operation has finished.
type mutationDoneMsg struct {
	engine *appsync.Engine
	op     lifecycle.Op
	id     string
	err    error
}

// markAllDoneMsg is sent when mark-all-as-read has finished.
type markAllDoneMsg struct {
	engine *appsync.Engine
	err    error
}

// toastActivatedMsg is sent after a toast was opened.
type toastActivatedMsg struct {
	notification model.Notification
	action       routing.Action
	err          error
}

// openEngine returns a command that starts (or reuses) the engine for
// filter.
func (m Model) openEngine(filter model.Filter) tea.Cmd {
	set := m.deps.Engines
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		e, err := set.Get(ctx, filter)
		return engineReadyMsg{filter: filter, engine: e, err: err}
	}
}

// waitForEvent returns a command that blocks until the next event of a
// subscription. The caller re-issues it after each event.
func waitForEvent(e *appsync.Engine, ch <-chan appsync.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return engineEventMsg{engine: e, ch: ch, event: ev, ok: ok}
	}
}

// runMutation returns a command applying op to id through e.
func runMutation(e *appsync.Engine, op lifecycle.Op, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var err error
		switch op {
		case lifecycle.OpMarkRead:
			err = e.MarkAsRead(ctx, id)
		case lifecycle.OpArchive:
			err = e.Archive(ctx, id)
		case lifecycle.OpRestore:
			err = e.Restore(ctx, id)
		case lifecycle.OpDelete:
			err = e.Delete(ctx, id)
		}
		return mutationDoneMsg{engine: e, op: op, id: id, err: err}
	}
}

// markAll returns a command marking every unread notification of e read.
func markAll(e *appsync.Engine) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return markAllDoneMsg{engine: e, err: e.MarkAllAsRead(ctx)}
	}
}

// resolveDetail returns a command loading the related record of n.
func resolveDetail(r *enrich.Resolver, n model.Notification) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return detail.LoadedMsg{Detail: r.Resolve(ctx, n)}
	}
}

// activateToast returns a command that opens t: the notification is
// marked read through reader and the routing action comes back.
func activateToast(q *toast.Queue, reader toast.Reader, t toast.Toast, role model.Role) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		action, err := q.Activate(ctx, t.ID, reader, role)
		n := t.Notification
		if err == nil && lifecycle.IsUnread(n) {
			n, _ = lifecycle.MarkRead(n, time.Now())
		}
		return toastActivatedMsg{notification: n, action: action, err: err}
	}
}
