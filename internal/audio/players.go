package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"duet/internal/core/events"
)

// LogPlayer records cues in the log instead of making a sound.
type LogPlayer struct {
	Logger *slog.Logger
	// Level defaults to info.
	Level slog.Level
}

func (player LogPlayer) PlayCue(ctx context.Context, event events.Event) error {
	log := player.Logger
	if log == nil {
		log = logger
	}
	log.Log(ctx, player.Level, "cue",
		"cue", string(event.Kind),
		"session_id", event.SessionID,
		"phase_index", event.PhaseIndex,
		"phase", event.Phase.String(),
		"at", event.Elapsed)
	return nil
}

// DefaultBellCues are the cues that mark the end of someone's speaking time.
var DefaultBellCues = []events.Kind{events.KindSlotEnd, events.KindCooldownEnd}

// BellPlayer rings the terminal bell for a subset of cues.
type BellPlayer struct {
	Out  io.Writer
	Cues []events.Kind
}

func (player BellPlayer) PlayCue(_ context.Context, event events.Event) error {
	cues := player.Cues
	if cues == nil {
		cues = DefaultBellCues
	}
	if !slices.Contains(cues, event.Kind) {
		return nil
	}
	if _, err := io.WriteString(player.Out, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}

// Players plays each cue through every player in turn.
type Players []Player

func (players Players) PlayCue(ctx context.Context, event events.Event) error {
	var errs []error
	for _, player := range players {
		if err := player.PlayCue(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
