package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"curator/internal/backend"
	"curator/internal/config"
	"curator/internal/feed"
	"curator/internal/generation"
	"curator/internal/journal"
	"curator/internal/logging"
	"curator/internal/metrics"
	"curator/internal/notifications"
	"curator/internal/session"
)

type globalFlags struct {
	config      string
	username    string
	channelID   int64
	fwdUsername string
	limit       int
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	metricsOnce sync.Once
	metrics     *metrics.Collector
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) collector() *metrics.Collector {
	c.metricsOnce.Do(func() {
		c.metrics = metrics.New()
	})
	return c.metrics
}

func (c *commandContext) client() (*backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return backend.NewFromConfig(cfg,
		backend.WithLogger(logger),
		backend.WithObserver(c.collector().ObserveBackend),
	), nil
}

// selection merges the global flags over the configured default.
func (c *commandContext) selection() (feed.Selection, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return feed.Selection{}, err
	}
	sel := cfg.Selection()
	username := strings.TrimPrefix(strings.TrimSpace(c.flags.username), "@")
	switch {
	case username != "" && c.flags.channelID != 0:
		return feed.Selection{}, fmt.Errorf("--username and --channel-id are mutually exclusive")
	case username != "":
		sel.Username, sel.ChannelID = username, 0
	case c.flags.channelID != 0:
		sel.Username, sel.ChannelID = "", c.flags.channelID
	}
	if fwd := strings.TrimPrefix(strings.TrimSpace(c.flags.fwdUsername), "@"); fwd != "" {
		sel.FwdUsername = fwd
	}
	if c.flags.limit > 0 {
		sel.Limit = c.flags.limit
	}
	return sel, nil
}

type sessionOptions struct {
	sink    session.Sink
	journal bool
	reload  bool
}

// openSession builds a controller for the current selection. The returned
// cleanup closes the journal when one was opened.
func (c *commandContext) openSession(ctx context.Context, opts sessionOptions) (*session.Controller, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	sel, err := c.selection()
	if err != nil {
		return nil, nil, err
	}
	client, err := c.client()
	if err != nil {
		return nil, nil, err
	}

	alerts := notifications.NewJobSink(notifications.NewService(cfg), logger)
	sinks := session.Sinks{alerts}
	if opts.sink != nil {
		sinks = append(session.Sinks{opts.sink}, sinks...)
	}

	cleanup := alerts.Flush
	var recorder generation.Recorder
	if opts.journal {
		store, err := journal.Open(cfg.JournalPath())
		if err != nil {
			return nil, nil, err
		}
		recorder = store
		cleanup = func() {
			alerts.Flush()
			_ = store.Close()
		}
	}

	ctrl := session.New(client, session.Options{
		Selection:        sel,
		FollowUpMarker:   cfg.Generation.FollowUpMarker,
		UseEffectiveText: cfg.Generation.UseEffectiveText,
		IngestLimit:      cfg.Session.IngestLimit,
		Logger:           logger,
		Sink:             sinks,
		Metrics:          c.collector(),
		Recorder:         recorder,
		RunLock:          generation.NewRunLock(cfg.RunLockPath()),
	})
	if opts.reload {
		if _, err := ctrl.Reload(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load %s: %w", sel, err)
		}
	}
	return ctrl, cleanup, nil
}

// dispatch runs one action against a freshly loaded session and prints the
// outcome message.
func (c *commandContext) dispatch(cmd *cobra.Command, command session.Command) (session.Outcome, error) {
	return c.run(cmd, command, true)
}

// dispatchLocal runs an action that does not need the post list.
func (c *commandContext) dispatchLocal(cmd *cobra.Command, command session.Command) (session.Outcome, error) {
	return c.run(cmd, command, false)
}

func (c *commandContext) run(cmd *cobra.Command, command session.Command, reload bool) (session.Outcome, error) {
	ctrl, cleanup, err := c.openSession(cmd.Context(), sessionOptions{reload: reload})
	if err != nil {
		return session.Outcome{}, err
	}
	defer cleanup()
	outcome, err := ctrl.Dispatch(cmd.Context(), command)
	if err != nil {
		return outcome, err
	}
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
	return outcome, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
