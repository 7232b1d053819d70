package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/preflight"
	"curator/internal/viewserver"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the curation view and actions over local HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if strings.TrimSpace(bind) == "" {
				bind = cfg.View.Bind
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg, nil)); len(failed) > 0 {
				return fmt.Errorf("preflight: %s: %s", failed[0].Name, failed[0].Detail)
			}
			if check := preflight.CheckBackend(cmd.Context(), cfg.Backend.BaseURL, client); !check.Passed {
				logging.WarnWithContext(logger, "backend not reachable at startup", "backend_unreachable",
					logging.String("detail", check.Detail),
					logging.String(logging.FieldImpact, "view starts empty until a reload succeeds"),
					logging.String(logging.FieldErrorHint, "check backend.base_url or run curator doctor"),
				)
			}

			events := viewserver.NewEvents(0)
			ctrl, cleanup, err := ctx.openSession(cmd.Context(), sessionOptions{sink: events, journal: true})
			if err != nil {
				return err
			}
			defer cleanup()
			if _, err := ctrl.Reload(cmd.Context()); err != nil {
				logger.Warn("initial reload failed", logging.Error(err))
				if notifyErr := notifications.NewService(cfg).NotifyError(cmd.Context(), err, "curator serve reload"); notifyErr != nil {
					logger.Debug("error notification not sent", logging.Error(notifyErr))
				}
			}

			server := viewserver.New(ctrl, viewserver.Options{
				Bind:    bind,
				Events:  events,
				Metrics: ctx.collector(),
				Logger:  logger,
			})
			if err := server.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", ctrl.Selection(), server.Addr())

			<-cmd.Context().Done()
			server.Stop()
			if ctrl.Generator().Active() {
				_ = ctrl.Generator().Cancel(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default view.bind)")
	return cmd
}
