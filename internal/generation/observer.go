package generation

import (
	"context"
	"fmt"

	"curator/internal/backend"
	"curator/internal/feed"
)

// Observer reports the current posts for a selection.
type Observer interface {
	Observe(ctx context.Context, sel feed.Selection) ([]feed.Post, error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, sel feed.Selection) ([]feed.Post, error)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, sel feed.Selection) ([]feed.Post, error) {
	return f(ctx, sel)
}

// Submitter issues the batch request and the stop signal.
type Submitter interface {
	Submit(ctx context.Context, sel feed.Selection, targets []Target) error
	Stop(ctx context.Context) error
}

// GenerateClient is the subset of the REST client used to submit jobs.
type GenerateClient interface {
	GenerateOverride(ctx context.Context, items []backend.OverrideItem) error
	GenerateComments(ctx context.Context, req backend.GenerateRequest) error
	StopGeneration(ctx context.Context) error
}

// BackendSubmitter submits jobs through the REST client. With
// UseEffectiveText the caller-built text is sent; otherwise the server
// generates from its stored post text.
type BackendSubmitter struct {
	Client           GenerateClient
	UseEffectiveText bool
}

// Submit sends one batch request covering every target.
func (s BackendSubmitter) Submit(ctx context.Context, sel feed.Selection, targets []Target) error {
	if s.UseEffectiveText {
		items := make([]backend.OverrideItem, 0, len(targets))
		for _, t := range targets {
			items = append(items, backend.OverrideItem{MessageID: t.MessageID, Text: t.Text})
		}
		if err := s.Client.GenerateOverride(ctx, items); err != nil {
			return fmt.Errorf("submit override batch: %w", err)
		}
		return nil
	}
	req := backend.GenerateRequest{
		MessageIDs: make([]int64, 0, len(targets)),
		Username:   sel.Username,
		ChannelID:  sel.ChannelID,
	}
	if req.Username != "" {
		req.ChannelID = 0
	}
	for _, t := range targets {
		req.MessageIDs = append(req.MessageIDs, t.MessageID)
	}
	if err := s.Client.GenerateComments(ctx, req); err != nil {
		return fmt.Errorf("submit generate batch: %w", err)
	}
	return nil
}

// Stop sends the stop signal.
func (s BackendSubmitter) Stop(ctx context.Context) error {
	if err := s.Client.StopGeneration(ctx); err != nil {
		return fmt.Errorf("stop generation: %w", err)
	}
	return nil
}
