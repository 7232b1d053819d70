package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"curator/internal/feed"
	"curator/internal/logging"
	"curator/internal/pairing"
)

var (
	// ErrJobActive is returned by Submit while another job is running.
	ErrJobActive = errors.New("generation job already active")
	// ErrNoTargets is returned by Submit when there is nothing to generate.
	ErrNoTargets = errors.New("no generation targets")
	// ErrNoJob is returned when no job has been submitted.
	ErrNoJob = errors.New("no generation job")
)

// Recorder persists terminal job outcomes.
type Recorder interface {
	RecordJob(ctx context.Context, result Result) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder persists every finished job.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithRunLock guards jobs with a cross-process lock.
func WithRunLock(l *RunLock) Option {
	return func(o *Orchestrator) { o.runLock = l }
}

// WithResolver overrides the follow-up resolver used to build effective text.
func WithResolver(r *pairing.Resolver) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator submits generation jobs and tracks them to completion.
type Orchestrator struct {
	submitter Submitter
	observer  Observer
	recorder  Recorder
	runLock   *RunLock
	resolver  *pairing.Resolver
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	mu           sync.Mutex
	job          *job
	onCompletion func(jobID string, post feed.Post)
	onFinish     func(Result)
}

type job struct {
	id        string
	sel       feed.Selection
	targets   []Target
	state     State
	pending   map[int64]struct{}
	done      int
	rounds    int
	maxRounds int
	started   time.Time
	finished  time.Time
	submitErr error
	cancel    context.CancelFunc
	finishedC chan struct{}
	sampler   *logging.ProgressSampler
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(submitter Submitter, observer Observer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		submitter: submitter,
		observer:  observer,
		resolver:  pairing.NewResolver(pairing.DefaultMarker),
		logger:    logging.NewNop(),
		interval:  PollInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "generation")
	return o
}

// OnCompletion registers fn to be called once per target as soon as its
// comment is observed.
func (o *Orchestrator) OnCompletion(fn func(jobID string, post feed.Post)) {
	o.mu.Lock()
	o.onCompletion = fn
	o.mu.Unlock()
}

// OnFinish registers fn to be called with every terminal result.
func (o *Orchestrator) OnFinish(fn func(Result)) {
	o.mu.Lock()
	o.onFinish = fn
	o.mu.Unlock()
}

// Targets returns one target per main unit. Follow-up children are folded
// into their parent's effective text and never become targets.
func (o *Orchestrator) Targets(units []pairing.Unit) []Target {
	targets := make([]Target, 0, len(units))
	seen := make(map[int64]struct{}, len(units))
	for _, u := range units {
		if _, dup := seen[u.Main.ID]; dup {
			continue
		}
		seen[u.Main.ID] = struct{}{}
		targets = append(targets, Target{MessageID: u.Main.ID, Text: o.resolver.EffectiveText(u)})
	}
	return targets
}

// Submit starts a job for units. The batch request failing is logged and the
// job still proceeds to polling. The returned id identifies the job.
func (o *Orchestrator) Submit(ctx context.Context, sel feed.Selection, units []pairing.Unit) (string, error) {
	targets := o.Targets(units)
	if len(targets) == 0 {
		return "", ErrNoTargets
	}

	o.mu.Lock()
	if o.job != nil && !o.job.state.Terminal() {
		o.mu.Unlock()
		return "", ErrJobActive
	}
	if o.runLock != nil {
		ok, err := o.runLock.TryAcquire()
		if err != nil {
			o.mu.Unlock()
			return "", err
		}
		if !ok {
			o.mu.Unlock()
			return "", fmt.Errorf("%w: lock %s held by another process", ErrJobActive, o.runLock.Path())
		}
	}
	j := &job{
		id:        uuid.NewString(),
		sel:       sel,
		targets:   targets,
		state:     StateSubmitted,
		pending:   make(map[int64]struct{}, len(targets)),
		maxRounds: MaxRounds(len(targets)),
		started:   o.now(),
		finishedC: make(chan struct{}),
		sampler:   logging.NewProgressSampler(4),
	}
	for _, t := range targets {
		j.pending[t.MessageID] = struct{}{}
	}
	runCtx, cancel := context.WithCancel(logging.WithJobID(context.WithoutCancel(ctx), j.id))
	j.cancel = cancel
	o.job = j
	o.mu.Unlock()

	logger := logging.WithContext(runCtx, o.logger)
	logger.Info("generation submitted",
		logging.String("selection", sel.String()),
		logging.Int("targets", len(j.pending)),
		logging.Int("max_rounds", j.maxRounds),
	)
	if err := o.submitter.Submit(runCtx, sel, targets); err != nil {
		o.mu.Lock()
		j.submitErr = err
		o.mu.Unlock()
		logging.WarnWithContext(logger, "generation submit failed; polling anyway", "generation_submit_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job may finish partial"),
			logging.String(logging.FieldErrorHint, "check backend availability"),
		)
	}

	o.mu.Lock()
	if j.state == StateSubmitted {
		j.state = StatePolling
	}
	o.mu.Unlock()

	go o.poll(runCtx, j, logger)
	return j.id, nil
}

// Cancel signals the backend to stop and aborts the local poll loop. The job
// ends in StateStopped. The stop request error, if any, is returned after the
// loop has been aborted.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	j := o.job
	if j == nil || j.state.Terminal() {
		o.mu.Unlock()
		return ErrNoJob
	}
	cancel := j.cancel
	o.mu.Unlock()

	cancel()
	stopErr := o.submitter.Stop(ctx)
	if stopErr != nil {
		o.logger.Warn("stop request failed; local polling aborted",
			logging.String(logging.FieldJobID, j.id),
			logging.Error(stopErr),
			logging.String(logging.FieldEventType, "generation_stop_failed"),
		)
	}
	return stopErr
}

// Wait blocks until the current job ends or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) (Result, error) {
	o.mu.Lock()
	j := o.job
	o.mu.Unlock()
	if j == nil {
		return Result{}, ErrNoJob
	}
	select {
	case <-j.finishedC:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resultLocked(j), nil
}

// Snapshot returns the progress of the current or last job.
func (o *Orchestrator) Snapshot() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.job == nil {
		return Progress{State: StateIdle}
	}
	return o.progressLocked(o.job)
}

// Active reports whether a job is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.job != nil && !o.job.state.Terminal()
}

func (o *Orchestrator) poll(ctx context.Context, j *job, logger *slog.Logger) {
	timer := time.NewTimer(o.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			o.finish(j, StateStopped, logger)
			return
		case <-timer.C:
		}

		posts, err := o.observer.Observe(ctx, j.sel)
		if err != nil && ctx.Err() != nil {
			o.finish(j, StateStopped, logger)
			return
		}

		o.mu.Lock()
		j.rounds++
		var completed []feed.Post
		if err == nil {
			for _, post := range posts {
				if _, ok := j.pending[post.ID]; ok && post.HasComment() {
					delete(j.pending, post.ID)
					j.done++
					completed = append(completed, post)
				}
			}
		}
		rounds, remaining, progress := j.rounds, len(j.pending), o.progressLocked(j)
		onCompletion := o.onCompletion
		o.mu.Unlock()

		if err != nil {
			logger.Warn("generation poll failed",
				logging.Int("round", rounds),
				logging.Error(err),
				logging.String(logging.FieldEventType, "generation_poll_failed"),
			)
		}
		for _, post := range completed {
			logger.Debug("comment ready", logging.Int64(logging.FieldMessageID, post.ID))
			if onCompletion != nil {
				onCompletion(j.id, post)
			}
		}
		if len(completed) > 0 && j.sampler.ShouldLog(progress.Done, progress.Total) {
			logger.Info("generation progress",
				logging.Int("done", progress.Done),
				logging.Int("total", progress.Total),
				logging.Int("round", rounds),
			)
		}

		switch {
		case remaining == 0:
			o.finish(j, StateDone, logger)
			return
		case rounds >= j.maxRounds:
			o.finish(j, StatePartial, logger)
			return
		}
		timer.Reset(o.interval)
	}
}

func (o *Orchestrator) finish(j *job, state State, logger *slog.Logger) {
	o.mu.Lock()
	if j.state.Terminal() {
		o.mu.Unlock()
		return
	}
	j.state = state
	j.finished = o.now()
	j.cancel()
	result := o.resultLocked(j)
	onFinish := o.onFinish
	o.mu.Unlock()

	if o.runLock != nil {
		if err := o.runLock.Release(); err != nil {
			logger.Warn("release run lock failed", logging.Error(err))
		}
	}
	logger.Info("generation finished",
		logging.String("state", string(state)),
		logging.String("completed", result.Summary()),
		logging.Int("rounds", result.Rounds),
		logging.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	if o.recorder != nil {
		if err := o.recorder.RecordJob(context.Background(), result); err != nil {
			logger.Warn("record generation job failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "journal_write_failed"),
			)
		}
	}
	if onFinish != nil {
		onFinish(result)
	}
	close(j.finishedC)
}

func (o *Orchestrator) progressLocked(j *job) Progress {
	p := Progress{
		JobID:      j.id,
		State:      j.state,
		Selection:  j.sel.String(),
		Total:      len(j.targets),
		Done:       j.done,
		Rounds:     j.rounds,
		MaxRounds:  j.maxRounds,
		StartedAt:  j.started,
		FinishedAt: j.finished,
	}
	if j.submitErr != nil {
		p.SubmitError = j.submitErr.Error()
	}
	return p
}

func (o *Orchestrator) resultLocked(j *job) Result {
	pending := make([]int64, 0, len(j.pending))
	for id := range j.pending {
		pending = append(pending, id)
	}
	slices.Sort(pending)
	return Result{Progress: o.progressLocked(j), Pending: pending}
}
