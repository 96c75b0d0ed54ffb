package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"duet/internal/core/events"
	"duet/internal/core/model"
	"duet/internal/core/session"
)

const clearLine = "\r\x1b[2K"

// statusView prints engine snapshots and events. In place mode redraws a
// single status line once per displayed second; otherwise a line is printed
// whenever the phase or status changes.
type statusView struct {
	mu       sync.Mutex
	out      io.Writer
	inPlace  bool
	newline  string
	renderer *lipgloss.Renderer
	dim      lipgloss.Style
	strong   lipgloss.Style

	drawn      bool
	lastLine   string
	lastStatus session.Status
	lastIndex  int
	lastSecond int64
}

func newStatusView(out io.Writer, inPlace, raw bool) *statusView {
	renderer := lipgloss.NewRenderer(out)
	view := &statusView{
		out:        out,
		inPlace:    inPlace,
		newline:    "\n",
		renderer:   renderer,
		dim:        renderer.NewStyle().Faint(true),
		strong:     renderer.NewStyle().Bold(true),
		lastIndex:  -1,
		lastSecond: -1,
	}
	if raw {
		view.newline = "\r\n"
	}
	return view
}

// Update consumes an engine snapshot.
func (view *statusView) Update(state session.State) {
	view.mu.Lock()
	defer view.mu.Unlock()

	second := int64(displaySeconds(state.RemainingTimeInPhase))
	changed := state.Status != view.lastStatus || state.CurrentPhaseIndex != view.lastIndex
	view.lastStatus = state.Status
	view.lastIndex = state.CurrentPhaseIndex

	if state.Status == session.StatusIdle {
		return
	}
	if view.inPlace {
		if !changed && second == view.lastSecond {
			return
		}
		view.lastSecond = second
		view.lastLine = view.line(state)
		fmt.Fprint(view.out, clearLine+view.lastLine)
		view.drawn = true
		return
	}
	if changed {
		fmt.Fprint(view.out, view.line(state)+view.newline)
	}
}

// Event prints a boundary event above the status line.
func (view *statusView) Event(event events.Event) {
	view.mu.Lock()
	defer view.mu.Unlock()

	var text strings.Builder
	fmt.Fprintf(&text, "%s %s", view.dim.Render(formatClock(event.Elapsed)), describeEvent(event))
	for _, tip := range event.Tips {
		text.WriteString(view.newline + "      " + view.dim.Render("tip:") + " " + tip)
	}

	if view.inPlace && view.drawn {
		fmt.Fprint(view.out, clearLine+text.String()+view.newline+view.lastLine)
		return
	}
	fmt.Fprint(view.out, text.String()+view.newline)
}

// Close ends the status line.
func (view *statusView) Close() {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.inPlace && view.drawn {
		fmt.Fprint(view.out, view.newline)
		view.drawn = false
	}
}

func (view *statusView) line(state session.State) string {
	phase, ok := state.CurrentPhase()
	if !ok {
		return view.dim.Render("idle")
	}
	sequence := state.ActiveSequence

	badge := view.renderer.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color(phase.Type.Color())).
		Padding(0, 1)

	parts := []string{
		badge.Render(phase.Type.Label()),
		view.strong.Render(formatClock(state.RemainingTimeInPhase)),
	}
	if state.Round > 0 {
		parts = append(parts, fmt.Sprintf("round %d/%d", state.Round, model.RoundCount(*sequence)))
	}
	parts = append(parts,
		fmt.Sprintf("phase %d/%d", state.CurrentPhaseIndex+1, len(sequence.Phases)),
		fmt.Sprintf("%s left", formatClock(state.RemainingSession())),
	)
	switch state.Status {
	case session.StatusPaused:
		parts = append(parts, view.dim.Render("paused, press p to resume"))
	case session.StatusFinished:
		parts = append(parts, "finished")
	}
	return strings.Join(parts, "  ")
}

func describeEvent(event events.Event) string {
	switch event.Kind {
	case events.KindSessionStart:
		return "session started"
	case events.KindSlotStart:
		return event.Phase.Label() + " speaks"
	case events.KindSlotEnd:
		return event.Phase.Label() + " is done"
	case events.KindTransitionEnd:
		return "transition over"
	case events.KindClosingStart:
		return "closing round"
	case events.KindCooldownStart:
		return "cooldown"
	case events.KindCooldownEnd:
		return "session complete"
	case events.KindTipsAvailable:
		return event.Phase.Label()
	default:
		return string(event.Kind)
	}
}

// displaySeconds rounds up so a phase shows its full length at the start
// and reaches zero only when it is over.
func displaySeconds(duration time.Duration) int {
	if duration <= 0 {
		return 0
	}
	return int((duration + time.Second - 1) / time.Second)
}

func formatClock(duration time.Duration) string {
	seconds := displaySeconds(duration)
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
