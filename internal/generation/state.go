package generation

import (
	"fmt"
	"math"
	"time"
)

// State is a job lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateDone      State = "done"
	StatePartial   State = "partial"
	StateStopped   State = "stopped"
)

// Terminal reports whether s ends a job.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StatePartial, StateStopped:
		return true
	default:
		return false
	}
}

const (
	// PollInterval is the fixed delay between observation rounds.
	PollInterval   = 1500 * time.Millisecond
	roundCap       = 60
	perTargetSecs  = 1.2
	baseBudgetSecs = 5.0
)

// MaxRounds returns the poll budget for n targets:
// min(60, ceil((n*1.2+5)/1.5)).
func MaxRounds(n int) int {
	if n < 0 {
		n = 0
	}
	rounds := int(math.Ceil((float64(n)*perTargetSecs + baseBudgetSecs) / PollInterval.Seconds()))
	return min(roundCap, rounds)
}

// Target is one generation request: a main post and the text to comment on.
type Target struct {
	MessageID int64
	Text      string
}

// Progress is a point-in-time view of a job.
type Progress struct {
	JobID       string    `json:"job_id,omitempty"`
	State       State     `json:"state"`
	Selection   string    `json:"selection,omitempty"`
	Total       int       `json:"total"`
	Done        int       `json:"done"`
	Rounds      int       `json:"rounds"`
	MaxRounds   int       `json:"max_rounds"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	SubmitError string    `json:"submit_error,omitempty"`
}

// Percent returns completion as 0..100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total) * 100
}

// Result is the terminal outcome of a job.
type Result struct {
	Progress
	Pending []int64 `json:"pending,omitempty"`
}

// Summary renders done/total.
func (r Result) Summary() string {
	return fmt.Sprintf("%d/%d", r.Done, r.Total)
}
