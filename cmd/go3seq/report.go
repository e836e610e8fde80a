package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/acorg/go3seq/internal/models"
	"github.com/acorg/go3seq/internal/recombinant"
)

// printReport lists each recombinant with its breakpoints, flags children
// already reported for the same parents and ends with a summary grouped by
// parent pair.
func printReport(w io.Writer, recs []*models.Recombinant) {
	summary := recombinant.NewSummary()

	for _, rec := range recs {
		fmt.Fprintf(w, "%s may be a recombinant of %s and %s\n", rec.RecombinantID, rec.PID, rec.QID)
		if summary.Add(rec) {
			fmt.Fprintln(w, "  ALREADY SEEN!")
		}
		for _, bp := range rec.Breakpoints {
			fmt.Fprintf(w, "  %s\n", bp)
		}
	}

	fmt.Fprintf(w, "%s found.\n", english.Plural(summary.Count, "potential recombinant", ""))

	if summary.Count == 0 {
		return
	}

	fmt.Fprintf(w, "Summary of %s:\n", english.Plural(len(summary.Pairs), "parent pair", ""))
	for _, pair := range summary.Pairs {
		fmt.Fprintf(w, "%s from parents: %s and %s\n",
			english.Plural(len(pair.Recombinants), "possible recombinant", ""), pair.P, pair.Q)
		for _, rec := range pair.Recombinants {
			fmt.Fprintf(w, "  Child %s\n", rec.RecombinantID)
			for _, bp := range rec.Breakpoints {
				fmt.Fprintf(w, "    %s\n", bp)
			}
		}
	}
}

func printStatus(w io.Writer, run *models.Run, invs []*models.Invocation) {
	fmt.Fprintf(w, "Run #%d (%s)\n", run.ID, run.RunKey)
	fmt.Fprintf(w, "Status: %s\n", run.Status)
	fmt.Fprintf(w, "Started: %s\n", humanize.Time(run.CreatedAt))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "Finished: %s\n", humanize.Time(*run.CompletedAt))
	}
	fmt.Fprintf(w, "Input: %s\n", run.InputPath)
	fmt.Fprintf(w, "P-value table: %s\n", run.PValueTable)
	if run.Threshold != "" {
		fmt.Fprintf(w, "t: %s\n", run.Threshold)
	}
	if run.WorkspacePath != "" {
		fmt.Fprintf(w, "Workspace: %s\n", run.WorkspacePath)
	}
	fmt.Fprintf(w, "Recombinants: %d\n", run.RecombinantCount)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}

	if len(invs) > 0 {
		fmt.Fprintln(w, "\nInvocations:")
		for _, inv := range invs {
			status := fmt.Sprintf("exit %d", inv.ExitCode)
			if inv.DryRun {
				status = "dry run"
			}
			fmt.Fprintf(w, "  %d. %s [%s, %s]\n", inv.SequenceNum, inv.CommandLine(), status,
				inv.Duration().Round(time.Millisecond))
		}
	}
}

func printProfile(w io.Writer, p *models.Profile) {
	fmt.Fprintf(w, "%s", p.Name)
	if p.Description != "" {
		fmt.Fprintf(w, ": %s", p.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  table: %s\n", p.PValueTable)
	if p.Threshold != nil {
		fmt.Fprintf(w, "  t: %v\n", p.Threshold)
	}
	if p.Filter != "" {
		fmt.Fprintf(w, "  filter: %s\n", p.Filter)
	}
}

func graphTitle(count int, threshold string) string {
	title := english.Plural(count, "recombinant", "")
	if threshold != "" {
		title += fmt.Sprintf(" (t = %s)", threshold)
	}
	return title
}

func pluralRecombinants(n int) string {
	return english.Plural(n, "recombinant", "")
}
