package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/session"
)

func newChannelsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels known to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			channels, err := client.ListChannels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list channels: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd, channels)
			}
			out := cmd.OutOrStdout()
			if len(channels) == 0 {
				fmt.Fprintln(out, "No channels ingested yet")
				return nil
			}
			rows := make([][]string, 0, len(channels))
			for _, ch := range channels {
				username := "-"
				if ch.Username != "" {
					username = "@" + ch.Username
				}
				rows = append(rows, []string{strconv.FormatInt(ch.ID, 10), username, ch.Name})
			}
			fmt.Fprint(out, renderTable(channelColumns, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output channels as JSON")
	return cmd
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var forceMedia bool

	cmd := &cobra.Command{
		Use:   "ingest [channel]",
		Short: "Ask the backend to fetch recent posts from a channel",
		Long:  "Ask the backend to fetch recent posts. Without an argument the selected username is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := session.Command{
				Action:     session.ActionIngest,
				Limit:      limit,
				ForceMedia: forceMedia,
			}
			if len(args) == 1 {
				command.Channel = args[0]
			}
			_, err := ctx.dispatchLocal(cmd, command)
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "count", 0, "Number of posts to ingest (default session.ingest_limit)")
	cmd.Flags().BoolVar(&forceMedia, "force-media", false, "Re-download media that was already stored")
	return cmd
}
