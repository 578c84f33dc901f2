package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/askiada/gradle-usage/internal/report"
	"github.com/askiada/gradle-usage/internal/store"
)

const defaultHistoryLimit = 20

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Lists recorded scans, or prints the report of one of them.",
		Long: `Without argument, history lists the most recent scans recorded in the
history database. Given a run identifier, or a unique prefix of one, it prints
the report of that scan.`,
		GroupID: reportsGroup,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.HistoryDB == "" {
				return ErrNoHistory
			}

			history, err := store.Open(cmd.Context(), a.cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer history.Close()

			if len(args) == 0 {
				runs, err := history.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}

				return printRuns(cmd.OutOrStdout(), runs)
			}

			run, err := history.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			entries, err := history.Projects(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			return printLines(cmd.OutOrStdout(), report.Lines(report.Build(entries)))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Number of runs listed, 0 lists every run.")

	return cmd
}

func printRuns(w io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No scan recorded")

		return err
	}

	for _, run := range runs {
		status := fmt.Sprintf("%d projects", run.Total)
		if !run.Finished() {
			status = "incomplete"
		}

		_, err := fmt.Fprintf(w, "%s  %s  %-12s  %s\n",
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			status,
			strings.Join(run.Roots, ", "),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func printLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}
