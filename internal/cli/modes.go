package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"duet/internal/core/model"
)

// NewModesCommand creates the modes command group.
func NewModesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "Manage session modes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in and custom modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModesList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show the phases of a mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModesShow(rootOpts, cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a modes YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModesValidate(rootOpts, cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <file>",
		Short: "Add or replace custom modes from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModesAdd(rootOpts, cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a custom mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModesDelete(rootOpts, cmd, args[0])
		},
	})

	return cmd
}

func runModesList(opts *RootOptions, cmd *cobra.Command) error {
	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}
	modes, err := env.openModes()
	if err != nil {
		return err
	}
	list, err := modes.List()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tPHASES\tROUNDS\tTOTAL\tGUIDANCE\tSOURCE")
	for _, mode := range list {
		source := "custom"
		if mode.Locked {
			source = "built-in"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			mode.ID, mode.Name, len(mode.Phases), model.RoundCount(mode),
			formatClock(model.TotalDuration(mode)), mode.GuidanceLevel, source)
	}
	return writer.Flush()
}

func runModesShow(opts *RootOptions, cmd *cobra.Command, id string) error {
	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}
	modes, err := env.openModes()
	if err != nil {
		return err
	}
	mode, err := modes.Get(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", mode.Name, mode.ID)
	fmt.Fprintf(out, "guidance: %s\n", mode.GuidanceLevel)
	fmt.Fprintf(out, "rounds: %d\n", model.RoundCount(mode))
	fmt.Fprintf(out, "total: %s\n\n", formatClock(model.TotalDuration(mode)))

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tTYPE\tLABEL\tDURATION\tSTARTS AT")
	var startsAt time.Duration
	for index, phase := range mode.Phases {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n",
			index+1, phase.Type, phase.Type.Label(), formatClock(phase.Duration()), formatClock(startsAt))
		startsAt += phase.Duration()
	}
	return writer.Flush()
}

func runModesValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}
	modes, err := env.openModes()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read modes file: %w", err)
	}
	decoded, err := modes.Decode(path, data)
	if err != nil {
		return err
	}

	for _, mode := range decoded {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d phases, %s)\n",
			mode.ID, len(mode.Phases), formatClock(model.TotalDuration(mode)))
	}
	return nil
}

func runModesAdd(opts *RootOptions, cmd *cobra.Command, path string) error {
	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}
	modes, err := env.openModes()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read modes file: %w", err)
	}
	decoded, err := modes.Decode(path, data)
	if err != nil {
		return err
	}
	for _, mode := range decoded {
		if err := modes.Save(mode); err != nil {
			return err
		}
		env.logger.Debug("mode saved", "mode", mode.ID, "path", modes.Path())
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", mode.ID)
	}
	return nil
}

func runModesDelete(opts *RootOptions, cmd *cobra.Command, id string) error {
	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}
	modes, err := env.openModes()
	if err != nil {
		return err
	}
	if err := modes.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	return nil
}
