package viewserver

import (
	"sync"
	"time"

	"curator/internal/generation"
	"curator/internal/session"
)

const defaultEventCapacity = 512

// EventKind names a view update.
type EventKind string

const (
	EventReloaded   EventKind = "reloaded"
	EventRowChanged EventKind = "row_changed"
	EventRowRemoved EventKind = "row_removed"
	EventJobChanged EventKind = "job_changed"
)

// Event is one buffered view update.
type Event struct {
	Seq       uint64               `json:"seq"`
	Kind      EventKind            `json:"kind"`
	Time      time.Time            `json:"time"`
	MessageID int64                `json:"message_id,omitempty"`
	Row       *session.Row         `json:"row,omitempty"`
	Job       *generation.Progress `json:"job,omitempty"`
	Rows      int                  `json:"rows,omitempty"`
}

// Events is a bounded, sequenced buffer of view updates. It implements
// session.Sink so clients can poll for changes since a sequence number.
type Events struct {
	mu       sync.Mutex
	capacity int
	next     uint64
	buf      []Event
}

// NewEvents returns a buffer holding up to capacity events.
func NewEvents(capacity int) *Events {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &Events{capacity: capacity, next: 1}
}

func (e *Events) append(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev.Seq = e.next
	ev.Time = time.Now().UTC()
	e.next++
	e.buf = append(e.buf, ev)
	if over := len(e.buf) - e.capacity; over > 0 {
		e.buf = append(e.buf[:0:0], e.buf[over:]...)
	}
}

// Since returns buffered events with Seq > seq and the latest sequence.
// truncated is true when events after seq were already evicted, in which
// case the caller should refetch the full view.
func (e *Events) Since(seq uint64) (events []Event, latest uint64, truncated bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	latest = e.next - 1
	if len(e.buf) > 0 && seq+1 < e.buf[0].Seq {
		truncated = true
	}
	for _, ev := range e.buf {
		if ev.Seq > seq {
			events = append(events, ev)
		}
	}
	return events, latest, truncated
}

func (e *Events) Reloaded(view session.View) {
	e.append(Event{Kind: EventReloaded, Rows: len(view.Rows)})
}

func (e *Events) RowChanged(row session.Row) {
	e.append(Event{Kind: EventRowChanged, MessageID: row.Post.ID, Row: &row})
}

func (e *Events) RowRemoved(messageID int64) {
	e.append(Event{Kind: EventRowRemoved, MessageID: messageID})
}

func (e *Events) JobChanged(progress generation.Progress) {
	e.append(Event{Kind: EventJobChanged, Job: &progress})
}
