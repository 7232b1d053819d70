package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"curator/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the curator configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return cmd
}

// configTarget resolves --path, falling back to the default config location.
func configTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(raw)
}

func newConfigInitCommand() *cobra.Command {
	var (
		pathFlag  string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample curator.toml",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configTarget(pathFlag)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("inspect %s: %w", target, statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\nEdit backend.base_url and session.username, then run `curator doctor`.\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&pathFlag, "path", "p", "", "Where to write the file (default: user config dir)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report problems",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, found, err := config.Load(strings.TrimSpace(ctx.flags.config))
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			source := path
			if !found {
				source = path + " (missing, using defaults)"
			}
			fmt.Fprintf(out, "Source:   %s\nBackend:  %s\nJournal:  %s\n", source, cfg.Backend.BaseURL, cfg.JournalPath())
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			encoder := toml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndentTables(true)
			return encoder.Encode(cfg)
		},
	}
}
