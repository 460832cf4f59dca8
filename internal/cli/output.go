package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"go-quarantine/internal/model"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// emit writes v as JSON or YAML. It reports false for the table format so
// the caller renders text itself.
func emit(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func writeEntryTable(w io.Writer, entries []model.QuarantineEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSIZE\tQUARANTINED\tTHREAT\tORIGINAL PATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Status, humanize.IBytes(uint64(e.FileSize)),
			e.QuarantinedAt.Local().Format(time.DateTime), e.ThreatName, e.OriginalPath)
	}
	return tw.Flush()
}

func writeEntryDetail(w io.Writer, e model.QuarantineEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", e.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", e.Status)
	fmt.Fprintf(tw, "Original path:\t%s\n", e.OriginalPath)
	fmt.Fprintf(tw, "Quarantine path:\t%s\n", e.QuarantinePath)
	fmt.Fprintf(tw, "SHA-256:\t%s\n", e.FileHash)
	fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", humanize.IBytes(uint64(e.FileSize)), e.FileSize)
	fmt.Fprintf(tw, "Permissions:\t%#o\n", e.OriginalPermissions.Perm())
	fmt.Fprintf(tw, "Threat:\t%s\n", e.ThreatName)
	fmt.Fprintf(tw, "Category:\t%s\n", e.Category)
	fmt.Fprintf(tw, "Severity:\t%s\n", e.Severity)
	fmt.Fprintf(tw, "Quarantined:\t%s (%s)\n", e.QuarantinedAt.Local().Format(time.DateTime), humanize.Time(e.QuarantinedAt))
	if e.StatusChangedAt != nil {
		fmt.Fprintf(tw, "Status changed:\t%s\n", e.StatusChangedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// writeResult renders a workflow result and turns a failure into an
// ExitError once it has been printed.
func writeResult(w io.Writer, format string, result model.QuarantineResult) error {
	if done, err := emit(w, format, result); done {
		if err != nil {
			return err
		}
		return resultExit(result)
	}

	if result.IsSuccess() {
		fmt.Fprintf(w, "%s\n", result.Status)
	} else {
		fmt.Fprintf(w, "%s: %s\n", result.Status, result.ErrorMessage)
	}
	if result.Entry != nil {
		if err := writeEntryDetail(w, *result.Entry); err != nil {
			return err
		}
	}
	return resultExit(result)
}

func writeResults(w io.Writer, format string, results []model.QuarantineResult) error {
	failed := 0
	for _, r := range results {
		if !r.IsSuccess() {
			failed++
		}
	}

	if done, err := emit(w, format, results); !done {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STATUS\tID\tPATH\tMESSAGE")
		for _, r := range results {
			id, path := "-", "-"
			if r.Entry != nil {
				id, path = r.Entry.ID, r.Entry.OriginalPath
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Status, id, path, r.ErrorMessage)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if failed > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

func resultExit(result model.QuarantineResult) error {
	if result.IsSuccess() {
		return nil
	}
	return &ExitError{Code: 1}
}

func writeStats(w io.Writer, stats model.QuarantineStats) {
	fmt.Fprintf(w, "Quarantined files: %d\n", stats.EntryCount)
	fmt.Fprintf(w, "Total size: %s\n", humanize.IBytes(uint64(stats.TotalSize)))
}

func writeReconcile(w io.Writer, report model.ReconcileReport) {
	if report.Consistent() {
		fmt.Fprintln(w, "Quarantine root and entries agree.")
		return
	}
	if len(report.OrphanFiles) > 0 {
		fmt.Fprintf(w, "Files without an entry (%d):\n", len(report.OrphanFiles))
		fmt.Fprintln(w, "  "+strings.Join(report.OrphanFiles, "\n  "))
	}
	if len(report.MissingEntries) > 0 {
		fmt.Fprintf(w, "Entries without a file (%d):\n", len(report.MissingEntries))
		for _, e := range report.MissingEntries {
			fmt.Fprintf(w, "  %s  %s\n", e.ID, e.QuarantinePath)
		}
	}
}
