// Package cli implements the duet command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"duet/internal/config"
	"duet/internal/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the duet CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "duet",
		Short: "Timed two-person conversation sessions",
		Long: `duet runs structured conversations between two people: alternating
speaking slots, transitions, closing rounds and a cooldown, each timed and
announced with a cue.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default is the user config dir)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewModesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

type environment struct {
	config config.Config
	logger *slog.Logger
}

func loadEnvironment(opts *RootOptions, cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return &environment{config: cfg, logger: logger}, nil
}

func (env *environment) openModes() (*storage.ModeStore, error) {
	modes, err := storage.OpenModes(env.config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open modes: %w", err)
	}
	return modes, nil
}
