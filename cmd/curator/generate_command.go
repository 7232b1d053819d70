package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/generation"
	"curator/internal/session"
)

// stopTimeout bounds the stop request sent after an interrupt.
const stopTimeout = 10 * time.Second

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate AI comments for the loaded posts and wait for them",
		Long: "Submit every loaded post (with its follow-up text) for comment generation and poll\n" +
			"until all comments arrive or the round budget runs out. Interrupt to stop the job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var sink session.Sink = session.NopSink{}
			if !quiet {
				sink = &progressPrinter{out: out}
			}
			ctrl, cleanup, err := ctx.openSession(cmd.Context(), sessionOptions{sink: sink, journal: true, reload: true})
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := ctrl.Dispatch(cmd.Context(), session.Command{Action: session.ActionGenerate})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Job %s: %s\n", outcome.JobID, outcome.Message)

			result, err := ctrl.Generator().Wait(cmd.Context())
			if errors.Is(err, context.Canceled) {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), stopTimeout)
				defer cancel()
				fmt.Fprintln(out, "Interrupted; stopping generation")
				if _, stopErr := ctrl.Dispatch(stopCtx, session.Command{Action: session.ActionStop}); stopErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "stop request failed: %v\n", stopErr)
				}
				result, err = ctrl.Generator().Wait(stopCtx)
			}
			if err != nil {
				return err
			}
			printResult(out, result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final summary")
	return cmd
}

func printResult(out io.Writer, result generation.Result) {
	fmt.Fprintf(out, "%s: %s comments in %d rounds\n", result.State, result.Summary(), result.Rounds)
	if result.SubmitError != "" {
		fmt.Fprintf(out, "Submit error: %s\n", result.SubmitError)
	}
	if len(result.Pending) > 0 {
		ids := make([]string, len(result.Pending))
		for i, id := range result.Pending {
			ids[i] = strconv.FormatInt(id, 10)
		}
		fmt.Fprintf(out, "Still pending: %s\n", strings.Join(ids, ", "))
	}
}

// progressPrinter writes a line whenever a comment lands.
type progressPrinter struct {
	session.NopSink

	mu   sync.Mutex
	out  io.Writer
	done int
}

func (p *progressPrinter) JobChanged(progress generation.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if progress.Done == p.done || progress.State.Terminal() {
		return
	}
	p.done = progress.Done
	fmt.Fprintf(p.out, "  %d/%d comments (%.0f%%, round %d/%d)\n", progress.Done, progress.Total, progress.Percent(), progress.Rounds, progress.MaxRounds)
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the backend to stop an ongoing generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.dispatchLocal(cmd, session.Command{Action: session.ActionStop})
			return err
		},
	}
}
