// Package overlay shows the running session in a small floating window.
package overlay

import (
	"fmt"
	"image/color"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"duet/internal/core/events"
	"duet/internal/core/session"
)

// Config defines overlay visuals.
type Config struct {
	Opacity uint8
}

// Callbacks defines the window's button handlers.
type Callbacks struct {
	OnTogglePause func()
	OnStop        func()
}

// Window manages the session UI.
type Window struct {
	window      fyne.Window
	config      Config
	callbacks   Callbacks
	background  *canvas.Rectangle
	stripe      *canvas.Rectangle
	titleLabel  *canvas.Text
	phaseLabel  *canvas.Text
	detailLabel *canvas.Text
	timerLabel  *canvas.Text
	tipLabel    *widget.Label
	pauseButton *widget.Button
	stopButton  *widget.Button

	sessionID  string
	phaseIndex int
	tipSession string
	tipIndex   int
	tip        string
	pick       func(n int) int
}

var (
	idleColor = color.NRGBA{R: 0x9A, G: 0xA5, B: 0xB1, A: 0xFF}
	textColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// New creates the session window. It starts hidden.
func New(app fyne.App, config Config, callbacks Callbacks) *Window {
	window := app.NewWindow("duet")
	if app.Icon() != nil {
		window.SetIcon(app.Icon())
	}

	background := canvas.NewRectangle(color.NRGBA{R: 0x1B, G: 0x1F, B: 0x24, A: config.Opacity})
	stripe := canvas.NewRectangle(idleColor)
	stripe.SetMinSize(fyne.NewSize(0, 8))

	titleLabel := canvas.NewText("duet", textColor)
	titleLabel.TextStyle = fyne.TextStyle{Bold: true}
	titleLabel.TextSize = 14

	phaseLabel := canvas.NewText("", textColor)
	phaseLabel.TextStyle = fyne.TextStyle{Bold: true}
	phaseLabel.TextSize = 22

	detailLabel := canvas.NewText("", textColor)
	detailLabel.TextSize = 13

	timerLabel := canvas.NewText("--:--", color.NRGBA{R: 232, G: 190, B: 66, A: 255})
	timerLabel.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	timerLabel.TextSize = 34

	tipLabel := widget.NewLabel("")
	tipLabel.Wrapping = fyne.TextWrapWord

	overlay := &Window{
		window:      window,
		config:      config,
		callbacks:   callbacks,
		background:  background,
		stripe:      stripe,
		titleLabel:  titleLabel,
		phaseLabel:  phaseLabel,
		detailLabel: detailLabel,
		timerLabel:  timerLabel,
		tipLabel:    tipLabel,
		phaseIndex:  -1,
		pick:        rand.IntN,
	}
	overlay.pauseButton = widget.NewButton("Pause", func() {
		if overlay.callbacks.OnTogglePause != nil {
			overlay.callbacks.OnTogglePause()
		}
	})
	overlay.stopButton = widget.NewButton("Stop", func() {
		if overlay.callbacks.OnStop != nil {
			overlay.callbacks.OnStop()
		}
	})

	info := container.New(&infoLayout{}, titleLabel, phaseLabel, detailLabel, timerLabel)
	buttons := container.NewVBox(overlay.pauseButton, overlay.stopButton)
	content := container.NewBorder(stripe, tipLabel, nil, buttons, info)
	window.SetContent(container.NewStack(background, container.NewPadded(content)))
	window.Resize(fyne.NewSize(380, 220))
	window.SetCloseIntercept(func() {
		window.Hide()
	})

	overlay.apply(session.State{})
	return overlay
}

// Show brings the window to the front.
func (overlay *Window) Show() {
	overlay.window.Show()
	overlay.window.RequestFocus()
}

// Hide hides the window without affecting the session.
func (overlay *Window) Hide() {
	overlay.window.Hide()
}

// Update renders a snapshot. Safe to call from any goroutine.
func (overlay *Window) Update(state session.State) {
	fyne.Do(func() {
		overlay.apply(state)
	})
}

// ShowTips displays one of the tips carried by a TipsAvailable event for as
// long as the event's phase is current.
func (overlay *Window) ShowTips(event events.Event) {
	tip, ok := pickTip(event.Tips, overlay.pick)
	if !ok {
		return
	}
	fyne.Do(func() {
		overlay.setTip(event.SessionID, event.PhaseIndex, tip)
	})
}

func (overlay *Window) setTip(sessionID string, phaseIndex int, tip string) {
	overlay.tipSession = sessionID
	overlay.tipIndex = phaseIndex
	overlay.tip = tip
	overlay.refreshTip()
}

func pickTip(tips []string, pick func(n int) int) (string, bool) {
	if len(tips) == 0 {
		return "", false
	}
	return tips[pick(len(tips))], true
}

func (overlay *Window) apply(state session.State) {
	overlay.sessionID = state.SessionID
	overlay.phaseIndex = state.CurrentPhaseIndex

	phase, ok := state.CurrentPhase()
	if !ok || state.Status == session.StatusIdle {
		overlay.setText(overlay.titleLabel, "duet")
		overlay.setText(overlay.phaseLabel, "No session")
		overlay.setText(overlay.detailLabel, "Start a mode from the tray menu")
		overlay.setText(overlay.timerLabel, "--:--")
		overlay.setStripe(idleColor)
		overlay.pauseButton.SetText("Pause")
		overlay.pauseButton.Disable()
		overlay.stopButton.Disable()
		overlay.refreshTip()
		return
	}

	sequence := state.ActiveSequence
	overlay.setText(overlay.titleLabel, sequence.Name)
	overlay.setText(overlay.timerLabel, formatDuration(state.RemainingTimeInPhase))
	overlay.setText(overlay.detailLabel, detailText(state))
	overlay.setStripe(parseHexColor(phase.Type.Color()))

	label := phase.Type.Label()
	switch state.Status {
	case session.StatusPaused:
		label += " (paused)"
		overlay.pauseButton.SetText("Resume")
		overlay.pauseButton.Enable()
	case session.StatusFinished:
		label = "Session complete"
		overlay.pauseButton.SetText("Pause")
		overlay.pauseButton.Disable()
	default:
		overlay.pauseButton.SetText("Pause")
		overlay.pauseButton.Enable()
	}
	overlay.setText(overlay.phaseLabel, label)
	overlay.stopButton.Enable()
	overlay.refreshTip()
}

func (overlay *Window) refreshTip() {
	tip := ""
	if overlay.tipSession == overlay.sessionID && overlay.tipIndex == overlay.phaseIndex && overlay.sessionID != "" {
		tip = overlay.tip
	}
	overlay.tipLabel.SetText(tip)
}

func (overlay *Window) setText(text *canvas.Text, value string) {
	if text.Text == value {
		return
	}
	text.Text = value
	text.Refresh()
}

func (overlay *Window) setStripe(fill color.Color) {
	overlay.stripe.FillColor = fill
	overlay.stripe.Refresh()
}

func detailText(state session.State) string {
	sequence := state.ActiveSequence
	parts := []string{fmt.Sprintf("Phase %d of %d", state.CurrentPhaseIndex+1, len(sequence.Phases))}
	if state.Round > 0 {
		parts = append(parts, fmt.Sprintf("round %d", state.Round))
	}
	parts = append(parts, formatDuration(state.RemainingSession())+" left")
	return strings.Join(parts, ", ")
}

func formatDuration(value time.Duration) string {
	if value < 0 {
		value = 0
	}
	seconds := int((value + time.Second - 1) / time.Second)
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// parseHexColor parses #RRGGBB, returning the idle color on malformed input.
func parseHexColor(value string) color.NRGBA {
	hex := strings.TrimPrefix(value, "#")
	if len(hex) != 6 {
		return idleColor
	}
	parsed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return idleColor
	}
	return color.NRGBA{R: uint8(parsed >> 16), G: uint8(parsed >> 8), B: uint8(parsed), A: 0xFF}
}

type infoLayout struct{}

func (layout *infoLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	if len(objects) < 4 {
		return
	}
	title := objects[0]
	phase := objects[1]
	detail := objects[2]
	timer := objects[3]

	pad := float32(4)
	availableWidth := max(size.Width-pad*2, 0)

	titleSize := title.MinSize()
	title.Move(fyne.NewPos(pad, pad))
	title.Resize(fyne.NewSize(availableWidth, titleSize.Height))

	phaseSize := phase.MinSize()
	phaseY := pad + titleSize.Height + 4
	phase.Move(fyne.NewPos(pad, phaseY))
	phase.Resize(fyne.NewSize(availableWidth, phaseSize.Height))

	detailSize := detail.MinSize()
	detailY := phaseY + phaseSize.Height + 4
	detail.Move(fyne.NewPos(pad, detailY))
	detail.Resize(fyne.NewSize(availableWidth, detailSize.Height))

	timerSize := timer.MinSize()
	timerY := max(size.Height-pad-timerSize.Height, detailY+detailSize.Height)
	timer.Move(fyne.NewPos(pad, timerY))
	timer.Resize(timerSize)
}

func (layout *infoLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	if len(objects) < 4 {
		return fyne.NewSize(0, 0)
	}
	var width, height float32
	for _, object := range objects[:4] {
		objectSize := object.MinSize()
		width = max(width, objectSize.Width)
		height += objectSize.Height
	}
	return fyne.NewSize(width+8, height+20)
}
