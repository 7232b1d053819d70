package session

import (
	"time"

	"curator/internal/feed"
	"curator/internal/generation"
)

// Row is one rendered unit: a main post, its optional follow-up and badges.
type Row struct {
	Position    int        `json:"position"`
	Post        feed.Post  `json:"post"`
	Child       *feed.Post `json:"child,omitempty"`
	Badges      []string   `json:"badges"`
	ChildBadges []string   `json:"child_badges,omitempty"`
	Link        string     `json:"link,omitempty"`
}

// View is the full rendered state.
type View struct {
	Selection feed.Selection      `json:"selection"`
	Rows      []Row               `json:"rows"`
	Topics    []feed.Topic        `json:"topics"`
	Job       generation.Progress `json:"job"`
	Ticket    uint64              `json:"ticket"`
	LoadedAt  time.Time           `json:"loaded_at"`
}

// Sink receives view updates. Row updates are keyed by message id so a
// renderer can patch a single entry.
type Sink interface {
	Reloaded(view View)
	RowChanged(row Row)
	RowRemoved(messageID int64)
	JobChanged(progress generation.Progress)
}

// NopSink discards every update.
type NopSink struct{}

func (NopSink) Reloaded(View)                  {}
func (NopSink) RowChanged(Row)                 {}
func (NopSink) RowRemoved(int64)               {}
func (NopSink) JobChanged(generation.Progress) {}

// Sinks fans updates out to several sinks in order.
type Sinks []Sink

func (s Sinks) Reloaded(view View) {
	for _, sink := range s {
		sink.Reloaded(view)
	}
}

func (s Sinks) RowChanged(row Row) {
	for _, sink := range s {
		sink.RowChanged(row)
	}
}

func (s Sinks) RowRemoved(messageID int64) {
	for _, sink := range s {
		sink.RowRemoved(messageID)
	}
}

func (s Sinks) JobChanged(progress generation.Progress) {
	for _, sink := range s {
		sink.JobChanged(progress)
	}
}
