package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/credential"
	"github.com/nhle/health-notify/internal/enrich"
	"github.com/nhle/health-notify/internal/keys"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/routing"
	appsync "github.com/nhle/health-notify/internal/sync"
	"github.com/nhle/health-notify/internal/toast"
	"github.com/nhle/health-notify/internal/ui"
	"github.com/nhle/health-notify/internal/ui/command"
	"github.com/nhle/health-notify/internal/ui/confirm"
	"github.com/nhle/health-notify/internal/ui/detail"
	helpview "github.com/nhle/health-notify/internal/ui/help"
	"github.com/nhle/health-notify/internal/ui/notiflist"
	toastview "github.com/nhle/health-notify/internal/ui/toast"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
	ViewConfirm
)

// Deps are the long-lived services the root model drives.
type Deps struct {
	Engines  *appsync.EngineSet
	Toasts   *toast.Queue
	Resolver *enrich.Resolver
	Session  *credential.Session

	// Inbox is the filter of the default view. Its engine feeds the
	// toast queue and the unread badge whatever view is showing.
	Inbox model.Filter

	Log *zap.Logger
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the sync engines behind the views.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	deps         Deps
	log          *zap.Logger

	// inbox is the engine for deps.Inbox; current is the engine of the
	// filter on screen. They are the same engine on the default view.
	inbox   *appsync.Engine
	current *appsync.Engine
	filter  model.Filter

	list        notiflist.Model
	detail      detail.Model
	toastView   toastview.Model
	confirmView confirm.Model
	helpView    helpview.Model
	commandView command.Model

	ready         bool
	unread        int
	lastSync      time.Time
	authError     string
	flash         string
	expiryPending bool
}

// New creates the root model.
func New(deps Deps) Model {
	k := keys.DefaultKeyMap()
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	list := notiflist.New(k, 80, 24)
	list.SetFilter(deps.Inbox)

	help := helpview.New(k, 80, 24)
	if deps.Session != nil {
		help.SetAccount(deps.Session.Label())
	}

	m := Model{
		currentView: ViewList,
		keys:        k,
		deps:        deps,
		log:         log,
		filter:      deps.Inbox,
		list:        list,
		detail:      detail.New(k, 80, 24),
		toastView:   toastview.New(k, 80),
		confirmView: confirm.New(80, 24),
		helpView:    help,
		commandView: command.New(80, 24),
	}
	m.checkSession()
	return m
}

// Init starts the inbox engine.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		m.openEngine(m.deps.Inbox),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case engineReadyMsg:
		return m, m.handleEngineReady(msg)

	case engineEventMsg:
		if !msg.ok {
			return m, nil
		}
		cmd := m.applyEvent(msg.engine, msg.event)
		return m, tea.Batch(cmd, waitForEvent(msg.engine, msg.ch))

	case mutationDoneMsg:
		return m, m.handleMutationDone(msg)

	case markAllDoneMsg:
		if msg.err != nil {
			m.reportError("mark all read", msg.err)
		}
		m.deps.Engines.RequestRefreshExcept(msg.engine)
		return m, nil

	case toastActivatedMsg:
		if msg.err != nil {
			m.reportError("mark read", msg.err)
		}
		m.deps.Engines.RequestRefreshExcept(m.inbox)
		m.syncToasts()
		return m, tea.Batch(m.openDetail(msg.notification, msg.action), m.scheduleExpiry())

	case notiflist.SelectedMsg:
		n := msg.Notification
		cmd := m.openDetail(n, routing.Dispatch(n, m.role()))
		if lifecycle.IsUnread(n) && m.current != nil {
			cmd = tea.Batch(cmd, runMutation(m.current, lifecycle.OpMarkRead, n.ID))
		}
		return m, cmd

	case notiflist.ActionMsg:
		return m, m.startAction(msg.Op, msg.ID)

	case detail.ActionMsg:
		return m, m.startAction(msg.Op, msg.ID)

	case notiflist.TypeFilterMsg:
		return m, m.setFilter(model.Filter{Type: msg.Type, Status: m.filter.Status})

	case detail.LoadedMsg:
		if msg.Detail.Notification.ID != m.detail.CurrentID() {
			return m, nil
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case confirm.ConfirmedMsg:
		m.currentView = m.previousView
		if m.currentView == ViewDetail && m.detail.CurrentID() == msg.ID {
			m.currentView = ViewList
		}
		if m.current == nil {
			return m, nil
		}
		return m, runMutation(m.current, lifecycle.OpDelete, msg.ID)

	case confirm.CancelledMsg:
		m.currentView = m.previousView
		return m, nil

	case toastview.ExpireMsg:
		m.expiryPending = false
		if expired := m.deps.Toasts.Expire(msg.At); len(expired) > 0 {
			m.syncToasts()
		}
		return m, m.scheduleExpiry()

	case toastview.OpenMsg:
		m.toastView.Blur()
		t, ok := m.deps.Toasts.Get(msg.ToastID)
		if !ok {
			m.syncToasts()
			return m, nil
		}
		return m, m.activateToast(t)

	case toastview.DismissMsg:
		m.deps.Toasts.Dismiss(msg.ToastID)
		m.syncToasts()
		return m, m.scheduleExpiry()

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case tea.KeyMsg:
		m.flash = ""
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work across views. It reports
// whether the key was consumed.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return tea.Quit, true
	}

	// Text inputs and forms own the keyboard while they have focus.
	if m.currentView == ViewConfirm {
		return nil, false
	}
	if m.currentView == ViewList && m.list.Editing() {
		return nil, false
	}
	if m.currentView == ViewCommand {
		if key.Matches(msg, m.keys.Back) || key.Matches(msg, m.keys.Command) {
			m.currentView = m.previousView
			return nil, true
		}
		return nil, false
	}

	if m.toastView.Focused() {
		var cmd tea.Cmd
		m.toastView, cmd = m.toastView.Update(msg)
		if !m.toastView.Focused() {
			// Focus left the stack; resume auto-dismiss timing for the rest.
			return tea.Batch(cmd, m.scheduleExpiry()), true
		}
		return cmd, true
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.currentView == ViewList {
			return tea.Quit, true
		}

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.ToastFocus):
		if _, ok := m.toastView.Focus(); ok {
			for _, t := range m.deps.Toasts.Active() {
				m.deps.Toasts.Hold(t.ID)
			}
			return nil, true
		}

	case key.Matches(msg, m.keys.Refresh):
		if m.current != nil {
			m.current.RequestRefresh()
		}
		return nil, true

	case key.Matches(msg, m.keys.MarkAllRead):
		return m.markAllRead(), true

	case key.Matches(msg, m.keys.Inbox):
		if m.currentView == ViewList || m.currentView == ViewDetail {
			m.currentView = ViewList
			return m.openInbox(), true
		}

	case key.Matches(msg, m.keys.Archived):
		if m.currentView == ViewList || m.currentView == ViewDetail {
			m.currentView = ViewList
			return m.setFilter(model.Filter{Type: m.filter.Type, Status: model.StatusArchived}), true
		}
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewConfirm:
		m.confirmView, cmd = m.confirmView.Update(msg)
	}

	return m, cmd
}

// handleEngineReady wires a freshly started engine into the views.
func (m *Model) handleEngineReady(msg engineReadyMsg) tea.Cmd {
	if msg.err != nil {
		if !errors.Is(msg.err, appsync.ErrClosed) {
			m.reportError("start sync", msg.err)
		}
		return nil
	}

	e := msg.engine
	isInbox := msg.filter.Key() == m.deps.Inbox.Key()
	isCurrent := msg.filter.Key() == m.filter.Key()

	if !isInbox && !isCurrent {
		// The user moved on while the engine was starting.
		m.deps.Engines.Release(msg.filter)
		return nil
	}
	if (isInbox && m.inbox == e) || (!isInbox && m.current == e) {
		return nil
	}

	if isInbox {
		m.inbox = e
	}
	if isCurrent {
		m.current = e
	}

	// Subscribe before reading so no event falls between the two.
	ch := e.Subscribe()
	st := e.Snapshot()
	cmd := m.applyEvent(e, appsync.Event{
		Kind:          appsync.EventRefreshed,
		Cycle:         st.Cycle,
		Notifications: st.Notifications,
		Unread:        st.Unread,
		ServerUnread:  st.ServerUnread,
		Err:           st.LastError,
	})
	if !st.LastSync.IsZero() {
		m.lastSync = st.LastSync
	}
	return tea.Batch(cmd, waitForEvent(e, ch))
}

// applyEvent updates the views fed by e.
func (m *Model) applyEvent(e *appsync.Engine, ev appsync.Event) tea.Cmd {
	var cmds []tea.Cmd

	if e == m.inbox {
		m.unread = ev.Unread
		if fresh := m.deps.Toasts.Observe(ev.Notifications); len(fresh) > 0 {
			m.log.Debug("toasts shown", zap.Int("count", len(fresh)))
		}
		m.syncToasts()
		cmds = append(cmds, m.scheduleExpiry())
	}

	if e == m.current {
		cmds = append(cmds, m.list.SetNotifications(ev.Notifications))
		if m.currentView == ViewDetail {
			for _, n := range ev.Notifications {
				if n.ID == m.detail.CurrentID() {
					m.detail.Refresh(n)
					break
				}
			}
		}
		if ev.Kind == appsync.EventRefreshed && ev.Err == nil && ev.Cycle > 0 {
			m.lastSync = time.Now()
		}
		if api.IsUnauthorized(ev.Err) {
			m.authError = authMessage
		} else if ev.Kind == appsync.EventRefreshed && ev.Err == nil {
			m.authError = ""
			m.checkSession()
		}
	}

	return tea.Batch(cmds...)
}

func (m *Model) handleMutationDone(msg mutationDoneMsg) tea.Cmd {
	if msg.err != nil {
		m.reportError(string(msg.op), msg.err)
	} else {
		switch msg.op {
		case lifecycle.OpDelete:
			m.deps.Resolver.Forget(msg.id)
			m.deps.Toasts.Rearm(msg.id)
		case lifecycle.OpRestore:
			// A restored notification may come back unread and toast again.
			m.deps.Toasts.Rearm(msg.id)
		}
	}
	m.deps.Engines.RequestRefreshExcept(msg.engine)
	return nil
}

// startAction applies op to the notification with id. Delete asks first.
func (m *Model) startAction(op lifecycle.Op, id string) tea.Cmd {
	if m.current == nil {
		return nil
	}
	if op != lifecycle.OpDelete {
		return runMutation(m.current, op, id)
	}

	n, ok := m.current.Get(id)
	if !ok {
		return nil
	}
	m.previousView = m.currentView
	m.currentView = ViewConfirm
	return m.confirmView.Start(n)
}

// openDetail shows n in the detail view and resolves its related record.
func (m *Model) openDetail(n model.Notification, action routing.Action) tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewDetail
	m.detail.Show(n, action)
	return resolveDetail(m.deps.Resolver, n)
}

// openInbox switches to the default view. Opening it while notifications
// are unread marks them all read.
func (m *Model) openInbox() tea.Cmd {
	cmd := m.setFilter(m.deps.Inbox)
	if m.unread == 0 {
		return cmd
	}
	return tea.Batch(cmd, m.markAllRead())
}

func (m *Model) markAllRead() tea.Cmd {
	e := m.current
	if e == nil || e.UnreadCount() == 0 {
		return nil
	}
	return markAll(e)
}

// setFilter moves the list to another filter, starting its engine when
// needed. Engines other than the inbox are released when left.
func (m *Model) setFilter(f model.Filter) tea.Cmd {
	if f.Key() == m.filter.Key() {
		return nil
	}
	old := m.filter
	m.filter = f
	m.list.SetFilter(f)
	m.current = nil

	if old.Key() != m.deps.Inbox.Key() {
		m.deps.Engines.Release(old)
	}
	if f.Key() == m.deps.Inbox.Key() && m.inbox != nil {
		m.current = m.inbox
		return m.list.SetNotifications(m.inbox.Notifications())
	}
	return m.openEngine(f)
}

func (m *Model) activateToast(t toast.Toast) tea.Cmd {
	if m.inbox == nil {
		return nil
	}
	return activateToast(m.deps.Toasts, m.inbox, t, m.role())
}

// syncToasts copies the queue's active toasts into the overlay.
func (m *Model) syncToasts() {
	m.toastView.SetToasts(m.deps.Toasts.Active())
	if m.ready {
		m.resize()
	}
}

// scheduleExpiry arms one timer for the earliest auto-dismiss deadline.
func (m *Model) scheduleExpiry() tea.Cmd {
	if m.expiryPending {
		return nil
	}
	d, ok := nextExpiry(m.deps.Toasts.Active(), time.Now())
	if !ok {
		return nil
	}
	m.expiryPending = true
	return toastview.ExpireCmd(d)
}

func nextExpiry(active []toast.Toast, now time.Time) (time.Duration, bool) {
	var next time.Time
	for _, t := range active {
		if t.Held || t.ExpiresAt.IsZero() {
			continue
		}
		if next.IsZero() || t.ExpiresAt.Before(next) {
			next = t.ExpiresAt
		}
	}
	if next.IsZero() {
		return 0, false
	}
	return max(next.Sub(now), 10*time.Millisecond), true
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	switch c.Name {
	case command.Refresh:
		if m.current != nil {
			m.current.RequestRefresh()
		}
		return nil
	case command.ReadAll:
		return m.markAllRead()
	case command.Inbox:
		m.currentView = ViewList
		return m.openInbox()
	case command.Archived:
		m.currentView = ViewList
		return m.setFilter(model.Filter{Type: m.filter.Type, Status: model.StatusArchived})
	case command.Type:
		m.currentView = ViewList
		return m.setFilter(model.Filter{Type: model.Type(c.Arg), Status: m.filter.Status})
	case command.Quit:
		return tea.Quit
	default:
		m.flash = fmt.Sprintf("unknown command %q", c.Name)
		return nil
	}
}

func (m *Model) reportError(what string, err error) {
	m.log.Warn(what+" failed", zap.Error(err))
	if api.IsUnauthorized(err) || errors.Is(err, credential.ErrExpired) {
		m.authError = authMessage
		return
	}
	m.flash = fmt.Sprintf("%s failed: %v", what, err)
}

const authMessage = "Signed out: run healthnotify -login <token> and restart"

// checkSession raises the auth banner once the token has expired.
func (m *Model) checkSession() {
	if m.deps.Session != nil && m.deps.Session.Expired() {
		m.authError = authMessage
	}
}

func (m Model) role() model.Role {
	if m.deps.Session == nil {
		return ""
	}
	return m.deps.Session.Role
}

// resize recomputes the size of every view. The toast stack takes a
// column on the right while it is visible.
func (m *Model) resize() {
	w := m.layout.ListWidth(len(m.deps.Toasts.Active()) > 0)
	h := m.layout.ContentHeight()
	m.list.SetSize(w, h)
	m.detail.SetSize(w, h)
	m.confirmView.SetSize(w, h)
	m.helpView.SetSize(m.layout.ContentWidth(), h)
	m.commandView.SetSize(m.layout.ContentWidth(), h)
	m.toastView.SetWidth(m.layout.Width)
}
