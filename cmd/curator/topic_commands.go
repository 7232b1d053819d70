package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/feed"
	"curator/internal/session"
)

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage topics and their posts",
	}
	topicsCmd.AddCommand(newTopicsListCommand(ctx))
	topicsCmd.AddCommand(newTopicsCreateCommand(ctx))
	topicsCmd.AddCommand(newTopicsDeleteCommand(ctx))
	topicsCmd.AddCommand(newTopicsAddCommand(ctx))
	topicsCmd.AddCommand(newTopicsRemoveCommand(ctx))
	return topicsCmd
}

func newTopicsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics with their post counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			records, err := client.ListTopics(cmd.Context())
			if err != nil {
				return fmt.Errorf("list topics: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No topics")
				return nil
			}
			fmt.Fprint(out, renderTable(topicColumns, buildTopicRows(records)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output topics as JSON")
	return cmd
}

func buildTopicRows(records []feed.TopicRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		count := len(rec.MessageIDs)
		if count == 0 {
			count = len(rec.Items)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Name,
			strconv.Itoa(count),
		})
	}
	return rows
}

func newTopicsCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.dispatchLocal(cmd, session.Command{Action: session.ActionTopicCreate, Topic: args[0]})
			return err
		},
	}
}

func newTopicsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a topic and detach it from every post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.dispatch(cmd, session.Command{Action: session.ActionTopicDelete, Topic: args[0]})
			return err
		},
	}
}

func newTopicsAddCommand(ctx *commandContext) *cobra.Command {
	var snapshot bool

	cmd := &cobra.Command{
		Use:   "add <topic> <message-id>...",
		Short: "Add posts to a topic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseMessageIDs(args[1:])
			if err != nil {
				return err
			}
			ctrl, cleanup, err := ctx.openSession(cmd.Context(), sessionOptions{reload: true})
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			for _, id := range ids {
				outcome, err := ctrl.Dispatch(cmd.Context(), session.Command{
					Action:    session.ActionTopicAdd,
					Topic:     args[0],
					MessageID: id,
					Snapshot:  snapshot,
				})
				if err != nil {
					return fmt.Errorf("message %d: %w", id, err)
				}
				fmt.Fprintf(out, "%d: %s %q\n", id, outcome.Message, args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "Store a durable copy of each post with the topic entry")
	return cmd
}

func newTopicsRemoveCommand(ctx *commandContext) *cobra.Command {
	var keys feed.ItemKeys

	cmd := &cobra.Command{
		Use:   "remove <topic> [message-id]",
		Short: "Remove a post from a topic",
		Long:  "Remove a post from a topic. Entries whose source post is gone can be addressed with --item-id.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := session.Command{Action: session.ActionTopicRemove, Topic: args[0], Keys: keys}
			if len(args) == 2 {
				id, err := parseMessageID(args[1])
				if err != nil {
					return err
				}
				command.MessageID = id
			}
			_, err := ctx.dispatch(cmd, command)
			return err
		},
	}
	cmd.Flags().Int64Var(&keys.TopicItemID, "item-id", 0, "Topic entry id")
	cmd.Flags().Int64Var(&keys.ChannelTgID, "channel-tg-id", 0, "Source channel id of the entry")
	cmd.Flags().Int64Var(&keys.MsgID, "msg-id", 0, "Per-channel message id of the entry")
	return cmd
}
