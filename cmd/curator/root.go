package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "curator",
		Short:         "Curate channel posts, topics and AI comments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVarP(&flags.username, "username", "u", "", "Channel username to select (overrides session.username)")
	pf.Int64Var(&flags.channelID, "channel-id", 0, "Channel id to select (overrides session.channel_id)")
	pf.StringVar(&flags.fwdUsername, "fwd", "", "Only posts forwarded from this username")
	pf.IntVar(&flags.limit, "limit", 0, "Maximum posts to load (overrides session.post_limit)")

	rootCmd.AddCommand(newPostsCommand(ctx))
	rootCmd.AddCommand(newChannelsCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newTopicsCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newStopCommand(ctx))
	rootCmd.AddCommand(newCommentsCommand(ctx))
	rootCmd.AddCommand(newPromptCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
