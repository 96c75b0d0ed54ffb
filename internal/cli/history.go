package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"duet/internal/storage"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, cmd, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of sessions to show (0 for all)")

	return cmd
}

func runHistory(opts *RootOptions, cmd *cobra.Command, limit int) error {
	env, err := loadEnvironment(opts, cmd)
	if err != nil {
		return err
	}
	history, err := storage.OpenHistory(env.config.DataDir)
	if err != nil {
		return err
	}
	defer history.Close()

	records, err := history.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded")
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "STARTED\tMODE\tOUTCOME\tTALKED\tPAUSED\tPHASES")
	for _, record := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			record.StartedAt.Local().Format("2006-01-02 15:04"),
			record.ModeID, record.Outcome,
			formatClock(record.Elapsed), formatClock(record.Paused),
			record.PhasesCompleted, record.PhaseCount)
	}
	return writer.Flush()
}
