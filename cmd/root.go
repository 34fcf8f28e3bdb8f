// Package cmd defines the CLI commands for the aggregator executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/pipeline"
	"github.com/JakeFAU/profile-aggregator/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// needsApp marks commands that require the application to be built.
const needsApp = "needs_app"

// App is what the commands need from the application. Tests swap in fakes.
type App interface {
	RunOnce(ctx context.Context) (pipeline.RunResult, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

type appOptions struct {
	ConfigPath string
	Mode       string
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, opts appOptions) (App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Mode != "" {
		cfg.Pipeline.Mode = opts.Mode
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return server.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "aggregator",
		Short: "Aggregates fake profile data from public APIs and delivers it downstream.",
		Long: `aggregator fetches a fake identity, phone number, IBAN, payment card,
first name, pet name, quote and joke from third-party APIs, combines them
into one record and POSTs it to an ingestion endpoint. When delivery fails
the record is written to a fallback file instead.`,
		SilenceUsage: true,

		// Builds the application once flags are parsed and stores it in the
		// context for the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[needsApp] != "true" {
				return nil
			}
			opts := appOptions{ConfigPath: cfgFile}
			if f := cmd.Flags().Lookup("mode"); f != nil {
				opts.Mode = f.Value.String()
			}
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (YAML, JSON or TOML)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp runs fn against the App in the command context and closes the App
// afterwards, whether fn succeeded or not.
func withApp(fn func(cmd *cobra.Command, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := appInstance.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
				appInstance.Logger().Warn("close application failed", zap.Error(cerr))
			}
		}()
		return fn(cmd, appInstance)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
