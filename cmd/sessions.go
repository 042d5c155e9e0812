package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/kestrel/internal/engine"
	"github.com/kestrelhq/kestrel/internal/observability"
)

// newSessionsCmd creates the `sessions` command for inspecting persisted
// task sessions. With no argument it lists ids; with one it prints the
// step records of that session.
func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions [id]",
		Short: "Lists persisted task sessions or shows one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			tracker := engine.NewTracker(cfg.Storage().TaskLogDir, observability.GetLogger())

			if len(args) == 0 {
				ids, err := tracker.List()
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no persisted sessions")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			session, err := tracker.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Instruction: %s\n", session.Instruction)
			printSession(cmd, session)
			return nil
		},
	}
}
