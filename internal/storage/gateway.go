package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

const (
	defaultBuffer = 1024
	writeTimeout  = 10 * time.Second
	drainTimeout  = 5 * time.Second
)

type write struct {
	op  string
	key string
	fn  func(ctx context.Context, s Store) error
}

// Gateway is the one-way persistence queue. Callers never wait on the store:
// writes are buffered and executed by a single background writer.
type Gateway struct {
	store   Store
	writes  chan write
	logger  zerolog.Logger
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewGateway creates a gateway in front of store. Call Run to start the writer.
func NewGateway(store Store, buffer int, logger zerolog.Logger) *Gateway {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Gateway{
		store:  store,
		writes: make(chan write, buffer),
		logger: logger.With().Str("component", "persistence").Logger(),
		done:   make(chan struct{}),
	}
}

// Run executes writes until ctx is cancelled, then drains what is left
func (g *Gateway) Run(ctx context.Context) {
	defer close(g.done)

	for {
		select {
		case w := <-g.writes:
			g.exec(context.Background(), w)
		case <-ctx.Done():
			g.drain()
			return
		}
	}
}

// Done is closed once Run has drained and returned
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

func (g *Gateway) drain() {
	deadline, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case w := <-g.writes:
			g.exec(deadline, w)
		default:
			return
		}
		if deadline.Err() != nil {
			g.logger.Warn().Int("remaining", len(g.writes)).Msg("drain timeout, discarding writes")
			return
		}
	}
}

func (g *Gateway) exec(parent context.Context, w write) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()

	if err := w.fn(ctx, g.store); err != nil {
		g.failed.Add(1)
		metrics.Get().RecordPersistFailure()
		g.logger.Error().Err(err).Str("op", w.op).Str("key", w.key).Msg("persistence write failed")
		return
	}
	metrics.Get().RecordPersistWrite()
}

func (g *Gateway) submit(w write) {
	select {
	case g.writes <- w:
	default:
		g.dropped.Add(1)
		metrics.Get().RecordPersistDropped()
		g.logger.Warn().Str("op", w.op).Str("key", w.key).Msg("persistence queue full, write dropped")
	}
}

// Dropped returns how many writes were discarded because the queue was full
func (g *Gateway) Dropped() int64 { return g.dropped.Load() }

// Failed returns how many writes the store rejected
func (g *Gateway) Failed() int64 { return g.failed.Load() }

func (g *Gateway) CreateCall(record types.CallRecord) {
	g.submit(write{op: "create_call", key: record.CorrelationID, fn: func(ctx context.Context, s Store) error {
		return s.CreateCallRecord(ctx, record)
	}})
}

func (g *Gateway) UpdateCall(correlationID string, update types.CallUpdate) {
	g.submit(write{op: "update_call", key: correlationID, fn: func(ctx context.Context, s Store) error {
		return s.UpdateCallRecord(ctx, correlationID, update)
	}})
}

func (g *Gateway) SaveAgent(agent types.AgentRecord) {
	g.submit(write{op: "save_agent", key: agent.Extension, fn: func(ctx context.Context, s Store) error {
		return s.SaveAgent(ctx, agent)
	}})
}

func (g *Gateway) DeleteAgent(extension string) {
	g.submit(write{op: "delete_agent", key: extension, fn: func(ctx context.Context, s Store) error {
		return s.DeleteAgent(ctx, extension)
	}})
}

func (g *Gateway) SaveShift(shift types.ShiftRecord) {
	g.submit(write{op: "save_shift", key: shift.AgentID + "/" + shift.ShiftID, fn: func(ctx context.Context, s Store) error {
		return s.SaveShift(ctx, shift)
	}})
}

func (g *Gateway) SaveQueueStats(stats types.QueueStats) {
	g.submit(write{op: "save_queue_stats", key: stats.QueueID + "/" + stats.Date, fn: func(ctx context.Context, s Store) error {
		return s.SaveQueueStats(ctx, stats)
	}})
}
