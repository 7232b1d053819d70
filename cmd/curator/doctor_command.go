package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"curator/internal/preflight"
)

type checkStyle struct {
	tag   string
	color string
}

var (
	styleOK   = checkStyle{tag: "ok", color: "\x1b[32m"}
	styleWarn = checkStyle{tag: "warn", color: "\x1b[33m"}
	styleFail = checkStyle{tag: "fail", color: "\x1b[31m"}
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check local paths and backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color := isTerminal(out)
			results := preflight.RunAll(cmd.Context(), cfg, client)
			for _, r := range results {
				fmt.Fprintln(out, checkLine(r, color))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}

// checkLine renders "[ok  ] Name detail", colored when writing to a terminal.
func checkLine(r preflight.Result, color bool) string {
	style := styleOK
	switch {
	case !r.Passed:
		style = styleFail
	case r.Warning:
		style = styleWarn
	}
	line := fmt.Sprintf("[%-4s] %-16s %s", style.tag, r.Name, r.Detail)
	if color {
		return style.color + line + "\x1b[0m"
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
