package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/journal"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect recorded generation jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsPruneCommand(ctx))
	return jobsCmd
}

func (c *commandContext) withJournal(fn func(*journal.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var count int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(store *journal.Store) error {
				jobs, err := store.Recent(cmd.Context(), count)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(jobColumns, buildJobRows(jobs)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 20, "Number of jobs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output jobs as JSON")
	return cmd
}

func buildJobRows(jobs []journal.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Selection,
			string(job.State),
			fmt.Sprintf("%d/%d", job.Done, job.Total),
			fmt.Sprintf("%d/%d", job.Rounds, job.MaxRounds),
			job.FinishedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its pending posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(store *journal.Store) error {
				job, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:       %s\n", job.ID)
				fmt.Fprintf(out, "Selection: %s\n", job.Selection)
				fmt.Fprintf(out, "State:     %s\n", job.State)
				fmt.Fprintf(out, "Comments:  %d/%d\n", job.Done, job.Total)
				fmt.Fprintf(out, "Rounds:    %d/%d\n", job.Rounds, job.MaxRounds)
				fmt.Fprintf(out, "Started:   %s\n", job.StartedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "Finished:  %s\n", job.FinishedAt.Local().Format(time.RFC3339))
				if job.SubmitError != "" {
					fmt.Fprintf(out, "Submit:    %s\n", job.SubmitError)
				}
				for _, id := range job.Pending {
					fmt.Fprintf(out, "Pending:   %s\n", strconv.FormatInt(id, 10))
				}
				return nil
			})
		},
	}
}

func newJobsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete jobs that finished before a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return ctx.withJournal(func(store *journal.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of the oldest job to keep")
	return cmd
}
