package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/profile-aggregator/internal/config"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "run",
		Annotations: map[string]string{needsApp: "true"},
		Short:       "Execute one aggregation run and exit",
		Long: `Fetches every source, assembles the aggregate and delivers it. Prints a
one-line status and exits non-zero when the run was aborted or when both
delivery and the fallback write failed.`,
		RunE: withApp(runRunCommand),
	}
	cmd.Flags().String("mode", "", fmt.Sprintf("override pipeline.mode (%s or %s)", config.ModeFailFast, config.ModeBestEffort))
	return cmd
}

func runRunCommand(cmd *cobra.Command, appInstance App) error {
	result, runErr := appInstance.RunOnce(cmd.Context())
	if result.RunID == "" {
		if runErr == nil {
			runErr = errors.New("run did not start")
		}
		return fmt.Errorf("run: %w", runErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.StatusLine())
	if runErr != nil {
		return fmt.Errorf("run %s ended with outcome %s: %w", result.RunID, result.Outcome, runErr)
	}
	return nil
}
