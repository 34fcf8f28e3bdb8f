package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "serve",
		Annotations: map[string]string{needsApp: "true"},
		Short:       "Serve the HTTP API for triggering and inspecting runs",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			appInstance.Logger().Info("serve command starting")
			if err := appInstance.Serve(cmd.Context()); err != nil {
				appInstance.Logger().Error("serve failed", zap.Error(err))
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		}),
	}
}
