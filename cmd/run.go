package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/agent"
	"github.com/kestrelhq/kestrel/internal/observability"
)

// newRunCmd creates the `run` command, the main entry point for executing
// a natural-language task.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run \"instruction\"",
		Short: "Executes a natural-language task against the desktop or a browser",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment.
			for flag, key := range map[string]string{
				"safe-mode":   "safety.safe_mode",
				"driver":      "executor.driver",
				"provider":    "oracle.provider",
				"model":       "oracle.model",
				"max-retries": "engine.max_retries",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			// Flags bound in PreRunE land in viper after the config was
			// parsed; apply them through the setters.
			if cmd.Flags().Changed("safe-mode") {
				cfg.SetSafeMode(viper.GetBool("safety.safe_mode"))
			}
			if cmd.Flags().Changed("driver") {
				cfg.SetExecutorDriver(viper.GetString("executor.driver"))
			}
			if cmd.Flags().Changed("provider") {
				cfg.SetOracleProvider(viper.GetString("oracle.provider"))
			}
			if cmd.Flags().Changed("model") {
				cfg.SetOracleModel(viper.GetString("oracle.model"))
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.SetEngineMaxRetries(viper.GetInt("engine.max_retries"))
			}

			instruction := strings.Join(args, " ")
			logger.Info("Running task",
				zap.String("instruction", instruction),
				zap.String("driver", cfg.Executor().Driver),
				zap.Bool("safe_mode", cfg.Safety().SafeMode))

			a, err := agent.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to assemble agent: %w", err)
			}
			defer a.Close()
			a.Start(ctx)

			session, err := a.RunTask(ctx, instruction)
			if err != nil {
				return err
			}

			printSession(cmd, session)
			if session.Status == schemas.TaskAborted {
				return fmt.Errorf("task aborted: %s", session.AbortReason)
			}
			return nil
		},
	}

	runCmd.Flags().Bool("safe-mode", true, "reject destructive actions outside safe zones")
	runCmd.Flags().String("driver", "desktop", "input surface: desktop or browser")
	runCmd.Flags().String("provider", "ollama", "oracle provider: ollama, openai or gemini")
	runCmd.Flags().String("model", "", "oracle model name")
	runCmd.Flags().Int("max-retries", 2, "retries per step before it counts as failed")

	return runCmd
}

func printSession(cmd *cobra.Command, s *schemas.TaskSession) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session:  %s\n", s.ID)
	fmt.Fprintf(out, "Status:   %s\n", s.Status)
	fmt.Fprintf(out, "Progress: %s\n", s.ProgressBar())
	for _, rec := range s.Records {
		mark := "ok"
		if !rec.Success {
			mark = "FAILED"
		}
		fmt.Fprintf(out, "  [%d] %-6s %s (attempts: %d)\n", rec.Step.Index, mark, rec.Step.Description, rec.Attempts)
		if rec.Error != "" {
			fmt.Fprintf(out, "      %s\n", rec.Error)
		}
	}
	if s.AbortReason != "" {
		fmt.Fprintf(out, "Abort reason: %s\n", s.AbortReason)
	}
}
