package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/session"
)

func newCommentsCommand(ctx *commandContext) *cobra.Command {
	commentsCmd := &cobra.Command{
		Use:   "comments",
		Short: "Edit or delete generated comments",
	}
	commentsCmd.AddCommand(newCommentsEditCommand(ctx))
	commentsCmd.AddCommand(newCommentsDeleteCommand(ctx))
	return commentsCmd
}

func newCommentsEditCommand(ctx *commandContext) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "edit <message-id> [text]",
		Short: "Replace the comment of a post",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			text, err := textArgument(args[1:], fromFile)
			if err != nil {
				return err
			}
			_, err = ctx.dispatchLocal(cmd, session.Command{Action: session.ActionCommentEdit, MessageID: id, Text: text})
			return err
		},
	}
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read the comment from a file")
	return cmd
}

func newCommentsDeleteCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [message-id]...",
		Short: "Delete comments by id, or for the whole selection with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errors.New("pass message ids or --all to clear every comment of the selection")
			}
			if len(args) > 0 && all {
				return errors.New("--all cannot be combined with message ids")
			}
			ids, err := parseMessageIDs(args)
			if err != nil {
				return err
			}
			_, err = ctx.dispatch(cmd, session.Command{Action: session.ActionCommentDelete, MessageIDs: ids})
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every comment of the current selection")
	return cmd
}

// textArgument returns the positional text, or the contents of path.
func textArgument(args []string, path string) (string, error) {
	switch {
	case path != "" && len(args) > 0:
		return "", errors.New("pass text or --file, not both")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	case len(args) > 0:
		return args[0], nil
	default:
		return "", errors.New("text is required")
	}
}
