package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications disabled (notifications.ntfy_topic is empty)")
				return nil
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
