package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go-quarantine/internal/app"
	"go-quarantine/internal/model"
	"go-quarantine/internal/scanresult"
)

func newAddCommand(opts *rootOptions) *cobra.Command {
	var threat model.ThreatDetail
	var output string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Move a file into quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			threat.FilePath = args[0]
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				result := a.Manager.QuarantineFile(cmd.Context(), args[0], threat)
				return writeResult(cmd.OutOrStdout(), output, result)
			})
		},
	}

	cmd.Flags().StringVar(&threat.ThreatName, "threat", "", "threat name reported by the scanner")
	cmd.Flags().StringVar(&threat.Category, "category", "", "threat category")
	cmd.Flags().StringVar(&threat.Severity, "severity", "", "threat severity")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "import <scan-result>",
		Short: "Quarantine every threat listed in a scan result file",
		Long: `import reads a scan result document (JSON with comments, or YAML),
checks it against the scan result schema and quarantines each reported file.
Nothing is moved unless the scan status is INFECTED.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			scan, err := scanresult.ReadFile(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				results := a.Manager.QuarantineScanResult(cmd.Context(), scan)
				return writeResults(cmd.OutOrStdout(), output, results)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var status string
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quarantine entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Manager.ListEntries(cmd.Context(), model.EntryStatus(status))
				if err != nil {
					return err
				}
				if done, err := emit(cmd.OutOrStdout(), output, entries); done {
					return err
				}
				return writeEntryTable(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list QUARANTINED, RESTORED or DELETED entries")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one quarantine entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				entry, err := a.Manager.GetEntry(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("entry %s: %w", args[0], err)
				}
				if done, err := emit(cmd.OutOrStdout(), output, entry); done {
					return err
				}
				return writeEntryDetail(cmd.OutOrStdout(), entry)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newRestoreCommand(opts *rootOptions) *cobra.Command {
	var destination string
	var output string

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Verify and restore a quarantined file",
		Long: `restore checks the quarantined file against its recorded SHA-256 digest
and moves it back to its original path, or to --to. An existing file at the
destination is never replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				result := a.Manager.RestoreFile(cmd.Context(), args[0], destination)
				return writeResult(cmd.OutOrStdout(), output, result)
			})
		},
	}

	cmd.Flags().StringVar(&destination, "to", "", "restore to this path instead of the original one")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete a quarantined file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				result := a.Manager.DeleteFile(cmd.Context(), args[0])
				return writeResult(cmd.OutOrStdout(), output, result)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report files without entries and entries without files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Manager.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				done, err := emit(cmd.OutOrStdout(), output, report)
				if err != nil {
					return err
				}
				if !done {
					writeReconcile(cmd.OutOrStdout(), report)
				}
				if !report.Consistent() {
					return &ExitError{Code: 1}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newCleanupCommand(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete quarantined files older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				age := olderThan
				if age == 0 {
					age = a.Config.RetentionPeriod
				}
				deleted, err := a.Manager.CleanupOlderThan(cmd.Context(), age)
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries older than %s\n", deleted, age)
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold (default RETENTION_PERIOD)")
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count and size of quarantined files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				stats, err := a.Manager.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if done, err := emit(cmd.OutOrStdout(), output, stats); done {
					return err
				}
				writeStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}
