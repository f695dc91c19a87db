// Package engine owns every tracker and processes events, timers and queries
// one at a time on a single worker goroutine.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/agents"
	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/callqueue"
	"github.com/dennisdiepolder/monti/pbxlive/internal/calls"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/shift"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

// ErrStopped is returned when the worker is no longer running
var ErrStopped = errors.New("engine stopped")

const defaultInbox = 4096

// Persister is the fire-and-forget persistence surface used by the trackers
type Persister interface {
	CreateCall(record types.CallRecord)
	UpdateCall(correlationID string, update types.CallUpdate)
	SaveAgent(agent types.AgentRecord)
	DeleteAgent(extension string)
	SaveShift(shift types.ShiftRecord)
	SaveQueueStats(stats types.QueueStats)
}

// Loader reads the durable state needed at start and on identity refresh
type Loader interface {
	ListAgents(ctx context.Context) ([]types.AgentRecord, error)
	ListOpenShifts(ctx context.Context) ([]types.ShiftRecord, error)
	ListQueueStats(ctx context.Context, queueID string) ([]types.QueueStats, error)
}

// Publisher broadcasts to all subscribers and can address a single one
type Publisher interface {
	broadcast.Broadcaster
	SendTo(sub broadcast.Subscriber, topic string, data any) bool
}

// Config holds the engine's tunables
type Config struct {
	RecordingDir           string
	ShiftGracePeriod       time.Duration
	IdleSampleInterval     time.Duration
	StatsBroadcastInterval time.Duration
	StatsFlushInterval     time.Duration
	AgentRefreshInterval   time.Duration
	RotateCheckInterval    time.Duration
	InboxSize              int
}

// Deps are the engine's collaborators. Clock, Timers and Async default to
// the wall clock and worker-backed implementations.
type Deps struct {
	Persist   Persister
	Loader    Loader
	Recorder  calls.Recorder
	Publisher Publisher
	Catalog   *callqueue.Catalog
	Clock     sched.Clock
	Timers    sched.Timers
	Async     calls.Async
}

// Engine is the single-writer state store
type Engine struct {
	inbox chan func()
	done  chan struct{}

	calls   *calls.Tracker
	bridges *calls.Coordinator
	queues  *callqueue.Presence
	stats   *callqueue.Stats
	agents  *agents.Tracker
	shifts  *shift.Manager

	out    Publisher
	loader Loader
	cfg    Config
	now    sched.Clock
	logger zerolog.Logger
}

// New wires the trackers together
func New(cfg Config, deps Deps, logger zerolog.Logger) *Engine {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInbox
	}
	if cfg.RotateCheckInterval <= 0 {
		cfg.RotateCheckInterval = time.Minute
	}

	e := &Engine{
		inbox:  make(chan func(), cfg.InboxSize),
		done:   make(chan struct{}),
		out:    deps.Publisher,
		loader: deps.Loader,
		cfg:    cfg,
		logger: logger.With().Str("component", "engine").Logger(),
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	e.now = clock
	timers := deps.Timers
	if timers == nil {
		timers = sched.NewWorkerTimers(e.Post)
	}
	async := deps.Async
	if async == nil {
		async = &workerAsync{post: e.Post}
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = callqueue.NewCatalog(60, 80)
	}

	e.calls = calls.NewTracker(clock, deps.Persist, deps.Publisher, logger)
	e.bridges = calls.NewCoordinator(e.calls, deps.Recorder, async, cfg.RecordingDir, logger)
	e.queues = callqueue.NewPresence(catalog, clock, deps.Persist, deps.Publisher, logger)
	e.stats = callqueue.NewStats(catalog, clock, deps.Persist, logger)
	e.shifts = shift.NewManager(cfg.ShiftGracePeriod, timers, clock, deps.Persist, logger)
	e.agents = agents.NewTracker(cfg.IdleSampleInterval, timers, clock, deps.Persist, e.shifts, deps.Publisher, logger)

	return e
}

// Run processes jobs until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	e.logger.Info().Msg("engine started")

	for {
		select {
		case job := <-e.inbox:
			e.run(job)
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopped")
			return
		}
	}
}

func (e *Engine) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("job panicked")
		}
	}()
	job()
}

// Submit enqueues an event in arrival order. It blocks while the inbox is
// full, which applies back-pressure to the PBX reader.
func (e *Engine) Submit(ctx context.Context, ev event.Event) error {
	select {
	case e.inbox <- func() { e.dispatch(ev) }:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Post enqueues a job for the worker. It must not be called from the worker.
func (e *Engine) Post(job func()) {
	select {
	case e.inbox <- job:
	case <-e.done:
	}
}

// Do runs fn on the worker and waits for it to finish
func (e *Engine) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.inbox <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Done is closed when Run returns
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

type workerAsync struct {
	post func(func())
}

// Run executes work on its own goroutine and posts then back to the worker
func (a *workerAsync) Run(work func() error, then func(err error)) {
	go func() {
		err := work()
		a.post(func() { then(err) })
	}()
}
