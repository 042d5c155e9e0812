package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/kestrelhq/kestrel/internal/agent"
	"github.com/kestrelhq/kestrel/internal/observability"
)

// newObserveCmd creates the `observe` command: one perception cycle,
// printed, no actuation.
func newObserveCmd() *cobra.Command {
	var (
		asJSON   bool
		watch    bool
		interval time.Duration
	)

	observeCmd := &cobra.Command{
		Use:   "observe",
		Short: "Captures and analyzes the screen once without acting on it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			a, err := agent.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to assemble agent: %w", err)
			}
			defer a.Close()

			if watch {
				// Runs until interrupted; Ctrl+C is the normal way out.
				if err := a.Watch(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}

			sc, err := a.Observe(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(sc, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Resolution:  %dx%d\n", sc.Resolution.Width, sc.Resolution.Height)
			fmt.Fprintf(out, "Confidence:  %.2f\n", sc.OverallConfidence)
			fmt.Fprintf(out, "OCR words:   %d\n", len(sc.Words))
			fmt.Fprintf(out, "UI elements: %d\n", len(sc.UIElements))
			for _, el := range sc.UIElements {
				fmt.Fprintf(out, "  %-9s at (%d,%d) %dx%d\n", el.Type, el.BBox.X, el.BBox.Y, el.BBox.Width, el.BBox.Height)
			}
			if sc.SceneDescription != "" {
				fmt.Fprintf(out, "Scene: %s\n", sc.SceneDescription)
			}
			if sc.ScreenshotPath != "" {
				fmt.Fprintf(out, "Screenshot: %s\n", sc.ScreenshotPath)
			}
			return nil
		},
	}

	observeCmd.Flags().BoolVar(&asJSON, "json", false, "print the full screen context as JSON")
	observeCmd.Flags().BoolVar(&watch, "watch", false, "keep observing at a fixed interval until interrupted")
	observeCmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "pause between watch cycles")
	return observeCmd
}
