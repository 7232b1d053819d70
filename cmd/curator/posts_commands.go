package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/session"
)

func newPostsCommand(ctx *commandContext) *cobra.Command {
	postsCmd := &cobra.Command{
		Use:   "posts",
		Short: "Browse posts for the current selection",
	}
	postsCmd.AddCommand(newPostsListCommand(ctx))
	postsCmd.AddCommand(newPostsShowCommand(ctx))
	return postsCmd
}

func newPostsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var tagged bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts paired with their follow-ups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cleanup, err := ctx.openSession(cmd.Context(), sessionOptions{reload: true})
			if err != nil {
				return err
			}
			defer cleanup()

			view := ctrl.View()
			rows := view.Rows
			if tagged {
				rows = rows[:0:0]
				for _, row := range view.Rows {
					if len(row.Badges) > 0 || len(row.ChildBadges) > 0 {
						rows = append(rows, row)
					}
				}
			}
			if jsonOutput {
				return writeJSON(cmd, rows)
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "No posts for %s\n", view.Selection)
				return nil
			}
			fmt.Fprint(out, renderTable(postColumns, buildPostRows(rows)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output rows as JSON")
	cmd.Flags().BoolVar(&tagged, "tagged", false, "Only posts that belong to a topic")
	return cmd
}

func buildPostRows(rows []session.Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		textCell := preview(row.Post.Text, previewWidth)
		if row.Child != nil {
			textCell += fmt.Sprintf(" [+%d]", row.Child.ID)
		}
		comment := "-"
		if row.Post.HasComment() {
			comment = preview(row.Post.AIComment, previewWidth/2)
		}
		out = append(out, []string{
			strconv.Itoa(row.Position),
			strconv.FormatInt(row.Post.ID, 10),
			row.Post.Date.Local().Format("2006-01-02 15:04"),
			textCell,
			strings.Join(row.Badges, ", "),
			comment,
		})
	}
	return out
}

func newPostsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <message-id>",
		Short: "Show one post with its follow-up, topics and comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			ctrl, cleanup, err := ctx.openSession(cmd.Context(), sessionOptions{reload: true})
			if err != nil {
				return err
			}
			defer cleanup()

			row, ok := ctrl.Row(id)
			if !ok {
				return fmt.Errorf("message %d is not loaded for %s", id, ctrl.Selection())
			}
			if jsonOutput {
				return writeJSON(cmd, row)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Post %d (%s)\n", row.Post.ID, row.Post.ChannelLabel())
			if row.Link != "" {
				fmt.Fprintf(out, "Link: %s\n", row.Link)
			}
			if len(row.Badges) > 0 {
				fmt.Fprintf(out, "Topics: %s\n", strings.Join(row.Badges, ", "))
			}
			fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(row.Post.Text))
			if row.Child != nil {
				fmt.Fprintf(out, "\nFollow-up %d:\n%s\n", row.Child.ID, strings.TrimSpace(row.Child.Text))
			}
			if row.Post.HasComment() {
				fmt.Fprintf(out, "\nComment:\n%s\n", strings.TrimSpace(row.Post.AIComment))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the row as JSON")
	return cmd
}

func parseMessageID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid message id %q", raw)
	}
	return id, nil
}

func parseMessageIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseMessageID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
