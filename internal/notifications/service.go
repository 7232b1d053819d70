package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/generation"
)

const userAgent = "curator/1"

// Service defines the alerts curator can send.
type Service interface {
	NotifyJobFinished(ctx context.Context, progress generation.Progress) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobFinished(ctx context.Context, progress generation.Progress) error {
	selection := progress.Selection
	if selection == "" {
		selection = "all channels"
	}
	elapsed := progress.FinishedAt.Sub(progress.StartedAt).Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	data := payload{tags: []string{"curator", "generate", string(progress.State)}}
	switch progress.State {
	case generation.StateDone:
		data.title = "Curator - Comments Ready"
		data.message = fmt.Sprintf("✅ %d/%d comments for %s in %s", progress.Done, progress.Total, selection, elapsed)
	case generation.StatePartial:
		data.title = "Curator - Comments Incomplete"
		data.message = fmt.Sprintf("⚠️ %d/%d comments for %s after %d rounds", progress.Done, progress.Total, selection, progress.Rounds)
		data.priority = "high"
	case generation.StateStopped:
		data.title = "Curator - Generation Stopped"
		data.message = fmt.Sprintf("⏹ Stopped with %d/%d comments for %s", progress.Done, progress.Total, selection)
	default:
		return nil
	}
	if progress.SubmitError != "" {
		data.message += "\nSubmit failed: " + progress.SubmitError
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	reason := "unknown error"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	message := "❌ " + reason
	if label := strings.TrimSpace(contextLabel); label != "" {
		message = fmt.Sprintf("❌ %s failed: %s", label, reason)
	}
	return n.send(ctx, payload{
		title:    "Curator - Error",
		message:  message,
		tags:     []string{"curator", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Curator - Test",
		message:  "🧪 ntfy is reachable from curator",
		tags:     []string{"curator", "test"},
		priority: "low",
	})
}

// headers maps the payload onto ntfy's publish headers.
func (p payload) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	if p.title != "" {
		h.Set("Title", p.title)
	}
	if len(p.tags) > 0 {
		h.Set("Tags", strings.Join(p.tags, ","))
	}
	if p.priority != "" {
		h.Set("Priority", p.priority)
	}
	return h
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("ntfy request: %w", err)
	}
	req.Header = data.headers()

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy publish: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy publish: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyJobFinished(context.Context, generation.Progress) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
