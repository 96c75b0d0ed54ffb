package tray

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"

	"duet/internal/core/session"
)

// MenuHost receives the rebuilt tray menu. desktop.App satisfies it.
type MenuHost interface {
	SetSystemTrayMenu(menu *fyne.Menu)
}

// Mode is an entry of the "Start mode" submenu.
type Mode struct {
	ID   string
	Name string
}

// Callbacks defines tray action handlers.
type Callbacks struct {
	OnStartMode   func(id string)
	OnTogglePause func()
	OnStop        func()
	OnShowWindow  func()
	OnQuit        func()
}

// Manager handles system tray state.
type Manager struct {
	host       MenuHost
	statusItem *fyne.MenuItem
	startItem  *fyne.MenuItem
	pauseItem  *fyne.MenuItem
	stopItem   *fyne.MenuItem
	showItem   *fyne.MenuItem
	quitItem   *fyne.MenuItem
	callbacks  Callbacks
	status     session.Status
}

// New creates a tray manager with the provided modes and callbacks.
func New(host MenuHost, modes []Mode, callbacks Callbacks) *Manager {
	manager := &Manager{
		host:      host,
		callbacks: callbacks,
	}

	manager.statusItem = fyne.NewMenuItem(statusLine(session.State{}), nil)
	manager.statusItem.Disabled = true

	items := make([]*fyne.MenuItem, 0, len(modes))
	for _, mode := range modes {
		id := mode.ID
		items = append(items, fyne.NewMenuItem(mode.Name, func() {
			if manager.callbacks.OnStartMode != nil {
				manager.callbacks.OnStartMode(id)
			}
		}))
	}
	manager.startItem = fyne.NewMenuItem("Start mode", nil)
	manager.startItem.ChildMenu = fyne.NewMenu("", items...)
	manager.startItem.Disabled = len(items) == 0

	manager.pauseItem = fyne.NewMenuItem("Pause", func() {
		if manager.callbacks.OnTogglePause != nil {
			manager.callbacks.OnTogglePause()
		}
	})
	manager.pauseItem.Disabled = true

	manager.stopItem = fyne.NewMenuItem("Stop", func() {
		if manager.callbacks.OnStop != nil {
			manager.callbacks.OnStop()
		}
	})
	manager.stopItem.Disabled = true

	manager.showItem = fyne.NewMenuItem("Show window", func() {
		if manager.callbacks.OnShowWindow != nil {
			manager.callbacks.OnShowWindow()
		}
	})

	manager.quitItem = fyne.NewMenuItem("Quit", func() {
		if manager.callbacks.OnQuit != nil {
			manager.callbacks.OnQuit()
		}
	})
	manager.quitItem.IsQuit = true

	manager.refreshMenu()
	return manager
}

// Apply updates the menu from a session snapshot. Call on the UI goroutine.
func (manager *Manager) Apply(state session.State) {
	label := statusLine(state)
	if label == manager.statusItem.Label && state.Status == manager.status {
		return
	}
	manager.statusItem.Label = label

	if manager.status != state.Status {
		manager.status = state.Status
		if state.Status == session.StatusPaused {
			manager.pauseItem.Label = "Resume"
		} else {
			manager.pauseItem.Label = "Pause"
		}
		manager.pauseItem.Disabled = !state.Status.Active()
		manager.stopItem.Disabled = state.Status == session.StatusIdle
	}
	manager.refreshMenu()
}

func (manager *Manager) refreshMenu() {
	if manager.host == nil {
		return
	}
	manager.host.SetSystemTrayMenu(fyne.NewMenu("duet",
		manager.statusItem,
		fyne.NewMenuItemSeparator(),
		manager.startItem,
		manager.pauseItem,
		manager.stopItem,
		manager.showItem,
		fyne.NewMenuItemSeparator(),
		manager.quitItem,
	))
}

func statusLine(state session.State) string {
	phase, ok := state.CurrentPhase()
	switch {
	case state.Status == session.StatusIdle || !ok:
		return "No session"
	case state.Status == session.StatusFinished:
		return "Session complete"
	}

	line := fmt.Sprintf("%s, %s left", phase.Type.Label(), formatRemaining(state.RemainingTimeInPhase))
	if state.Status == session.StatusPaused {
		line += " (paused)"
	}
	return line
}

func formatRemaining(value time.Duration) string {
	if value < 0 {
		value = 0
	}
	seconds := int((value + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
