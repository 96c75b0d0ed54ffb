package main

import (
	"errors"
	"log"
	"log/slog"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"

	"duet/internal/audio"
	"duet/internal/config"
	"duet/internal/core/clock"
	"duet/internal/core/events"
	"duet/internal/core/session"
	"duet/internal/guidance"
	"duet/internal/platform"
	"duet/internal/storage"
	"duet/internal/ui/overlay"
	"duet/internal/ui/tray"
)

const windowOpacity = 230

func main() {
	guard, err := platform.AcquireSingleInstance(config.AppName)
	if err != nil {
		if errors.Is(err, platform.ErrAlreadyRunning) {
			if err := platform.SignalRunning(config.AppName); err != nil {
				log.Printf("activate running instance: %v", err)
			}
			return
		}
		log.Printf("single instance: %v", err)
		return
	}
	defer func() {
		_ = guard.Release()
	}()

	cfg, err := config.Load("")
	if err != nil {
		log.Printf("config: %v", err)
		return
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	modes, err := storage.OpenModes(cfg.DataDir)
	if err != nil {
		logger.Error("open modes", "error", err)
		return
	}
	available, err := modes.List()
	if err != nil {
		logger.Error("list modes", "error", err)
		return
	}
	tips, err := guidance.Builtin()
	if err != nil {
		logger.Error("load guidance", "error", err)
		return
	}
	history, err := storage.OpenHistory(cfg.DataDir)
	if err != nil {
		logger.Error("open history", "error", err)
		return
	}
	defer history.Close()

	engineOpts := []session.Option{
		session.WithClock(clock.New(clock.WithInterval(cfg.TickInterval))),
		session.WithGuidance(tips),
		session.WithLogger(logger),
	}
	if cfg.Audio.Enabled {
		sink := audio.NewQueueSink(audio.LogPlayer{Logger: logger, Level: slog.LevelInfo},
			audio.WithQueueSize(cfg.Audio.QueueSize),
			audio.WithLogger(logger))
		defer sink.Close()
		engineOpts = append(engineOpts, session.WithAudioSink(sink))
	}
	engine := session.New(engineOpts...)
	defer engine.Close()

	detach := storage.NewRecorder(history, logger).Attach(engine)
	defer detach()

	fyneApp := app.NewWithID("io.duet.tray")
	fyneApp.SetIcon(theme.MediaPlayIcon())
	desktopApp, ok := fyneApp.(desktop.App)
	if !ok {
		logger.Error("system tray unsupported on this platform")
		return
	}

	sessionWindow := overlay.New(fyneApp, overlay.Config{Opacity: windowOpacity}, overlay.Callbacks{
		OnTogglePause: func() { togglePause(engine) },
		OnStop:        engine.Stop,
	})

	entries := make([]tray.Mode, 0, len(available))
	for _, mode := range available {
		entries = append(entries, tray.Mode{ID: mode.ID, Name: mode.Name})
	}
	trayManager := tray.New(desktopApp, entries, tray.Callbacks{
		OnStartMode: func(id string) {
			mode, err := modes.Get(id)
			if err != nil {
				logger.Error("start mode", "mode", id, "error", err)
				return
			}
			if engine.Start(cfg.ApplyGuidance(mode)) {
				sessionWindow.Show()
			}
		},
		OnTogglePause: func() { togglePause(engine) },
		OnStop:        engine.Stop,
		OnShowWindow:  sessionWindow.Show,
		OnQuit: func() {
			engine.Stop()
			fyneApp.Quit()
		},
	})

	activeIcon := theme.MediaPlayIcon()
	pausedIcon := theme.MediaPauseIcon()
	desktopApp.SetSystemTrayIcon(activeIcon)

	fyneApp.Lifecycle().SetOnStarted(func() {
		engine.SubscribeEvents(func(event events.Event) {
			if event.Kind == events.KindTipsAvailable {
				sessionWindow.ShowTips(event)
			}
		})
		engine.Subscribe(func(state session.State) {
			sessionWindow.Update(state)
			fyne.Do(func() {
				trayManager.Apply(state)
				if state.Status == session.StatusPaused {
					desktopApp.SetSystemTrayIcon(pausedIcon)
				} else {
					desktopApp.SetSystemTrayIcon(activeIcon)
				}
			})
		})
		go guard.Serve(func() {
			fyne.Do(sessionWindow.Show)
		})
	})

	fyneApp.Run()
}

func togglePause(engine *session.Engine) {
	if engine.State().Status == session.StatusPaused {
		engine.Resume()
		return
	}
	engine.Pause()
}
