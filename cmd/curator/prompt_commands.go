package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPromptCommand(ctx *commandContext) *cobra.Command {
	promptCmd := &cobra.Command{
		Use:   "prompt",
		Short: "Show or replace the comment generation prompt",
	}

	promptCmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current prompt template",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			prompt, err := client.Prompt(cmd.Context())
			if err != nil {
				return fmt.Errorf("get prompt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(prompt, "\n"))
			return nil
		},
	})

	var fromFile string
	setCmd := &cobra.Command{
		Use:   "set [template]",
		Short: "Replace the prompt template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template, err := textArgument(args, fromFile)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.SetPrompt(cmd.Context(), template); err != nil {
				return fmt.Errorf("set prompt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Prompt updated")
			return nil
		},
	}
	setCmd.Flags().StringVarP(&fromFile, "file", "f", "", "Read the template from a file")
	promptCmd.AddCommand(setCmd)

	return promptCmd
}
