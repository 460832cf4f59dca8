package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"go-quarantine/internal/app"
	"go-quarantine/internal/config"
	"go-quarantine/internal/logger"
)

// Version is reported by --version.
const Version = "0.3.0"

type rootOptions struct {
	configFile string
	root       string
	database   string
	logLevel   string
	cfg        *config.Config
}

// NewRootCommand builds the quarantine command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Isolate, restore and delete files flagged by the scanner",
		Long: `quarantine moves infected files into a locked-down directory, records
their SHA-256 digest and permissions, and restores or deletes them later.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides QUARANTINE_CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.root, "root", "", "quarantine root directory (overrides QUARANTINE_ROOT)")
	cmd.PersistentFlags().StringVar(&opts.database, "database", "", "sqlite database path (overrides DATABASE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newRestoreCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newCleanupCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if o.root != "" {
		cfg.QuarantineRoot = o.root
	}
	if o.database != "" {
		cfg.DatabaseDriver = config.DriverSQLite
		cfg.DatabasePath = o.database
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	log, err := logger.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	o.cfg = cfg
	return nil
}

// withApp opens the application for the duration of fn.
func (o *rootOptions) withApp(ctx context.Context, fn func(a *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := app.New(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			slog.Warn("close failed", "error", closeErr)
		}
	}()

	return fn(application)
}
