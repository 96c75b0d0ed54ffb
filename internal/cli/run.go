package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"duet/internal/audio"
	"duet/internal/core/clock"
	"duet/internal/core/session"
	"duet/internal/guidance"
	"duet/internal/storage"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [mode]",
		Short: "Run a session",
		Long: `Run a session with the given mode, or the configured default mode.

On a terminal, press p to pause or resume and q to stop.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modeID := ""
			if len(args) == 1 {
				modeID = args[0]
			}
			return runSession(cmd.Context(), rootOpts, cmd, modeID)
		},
	}
	return cmd
}

func runSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, modeID string) error {
	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}
	if modeID == "" {
		modeID = env.config.DefaultMode
	}

	modes, err := env.openModes()
	if err != nil {
		return err
	}
	mode, err := modes.Get(modeID)
	if err != nil {
		return err
	}
	mode = env.config.ApplyGuidance(mode)
	if err := mode.Err(); err != nil {
		return fmt.Errorf("mode %s: %w", mode.ID, err)
	}

	tips, err := guidance.Builtin()
	if err != nil {
		return err
	}
	history, err := storage.OpenHistory(env.config.DataDir)
	if err != nil {
		return err
	}
	defer history.Close()

	engineOpts := []session.Option{
		session.WithClock(clock.New(clock.WithInterval(env.config.TickInterval))),
		session.WithGuidance(tips),
		session.WithLogger(env.logger),
	}
	if env.config.Audio.Enabled {
		players := audio.Players{audio.LogPlayer{Logger: env.logger, Level: slog.LevelDebug}}
		if env.config.Audio.Bell {
			players = append(players, audio.BellPlayer{Out: cmd.OutOrStdout()})
		}
		sink := audio.NewQueueSink(players,
			audio.WithQueueSize(env.config.Audio.QueueSize),
			audio.WithLogger(env.logger))
		defer sink.Close()
		engineOpts = append(engineOpts, session.WithAudioSink(sink))
	}
	engine := session.New(engineOpts...)
	defer engine.Close()

	detach := storage.NewRecorder(history, env.logger).Attach(engine)
	defer detach()

	out := cmd.OutOrStdout()
	keys, restore := rawKeys(cmd.InOrStdin())
	defer restore()
	view := newStatusView(out, isTerminal(out), keys != nil)
	defer view.Close()

	finished := make(chan struct{})
	var finishOnce sync.Once
	engine.SubscribeEvents(view.Event)
	engine.Subscribe(func(state session.State) {
		view.Update(state)
		if state.Status == session.StatusFinished {
			finishOnce.Do(func() { close(finished) })
		}
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "%s: %d phases%s", mode.Name, len(mode.Phases), view.newline)
	if !engine.Start(mode) {
		return fmt.Errorf("mode %s could not be started", mode.ID)
	}
	defer engine.Stop()

	for {
		select {
		case <-finished:
			return nil
		case <-ctx.Done():
			return nil
		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			switch key {
			case 'p', ' ':
				if engine.State().Status == session.StatusPaused {
					engine.Resume()
				} else {
					engine.Pause()
				}
			case 'q', 3:
				return nil
			}
		}
	}
}

// rawKeys puts a terminal stdin in raw mode and streams its key presses.
// It returns nil channels when stdin is not a terminal.
func rawKeys(in io.Reader) (<-chan byte, func()) {
	file, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return nil, func() {}
	}
	previous, err := term.MakeRaw(int(file.Fd()))
	if err != nil {
		return nil, func() {}
	}

	keys := make(chan byte)
	done := make(chan struct{})
	go func() {
		defer close(keys)
		pumpKeys(file, keys, done)
	}()

	var once sync.Once
	return keys, func() {
		once.Do(func() {
			close(done)
			_ = term.Restore(int(file.Fd()), previous)
		})
	}
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// pumpKeys forwards single bytes from in to keys until in fails or done is
// closed.
func pumpKeys(in io.Reader, keys chan<- byte, done <-chan struct{}) {
	buffer := make([]byte, 1)
	for {
		if _, err := in.Read(buffer); err != nil {
			return
		}
		select {
		case keys <- buffer[0]:
		case <-done:
			return
		}
	}
}
