package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/dennisdiepolder/monti/pbxlive/internal/ticker"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

const (
	attributionMaxAge = time.Hour
	loadTimeout       = 30 * time.Second
)

// Restore seeds the trackers from durable state. It must run before Run.
func (e *Engine) Restore(ctx context.Context, queueIDs []string) error {
	if e.loader == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	agentRecords, err := e.loader.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}
	e.agents.LoadIdentities(agentRecords)

	shifts, err := e.loader.ListOpenShifts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open shifts: %w", err)
	}
	restored, rescheduled := e.shifts.Restore(shifts)

	var stats []types.QueueStats
	for _, id := range queueIDs {
		records, err := e.loader.ListQueueStats(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load stats for queue %s: %w", id, err)
		}
		stats = append(stats, records...)
	}
	queues := e.stats.Restore(stats)

	e.logger.Info().
		Int("agents", len(agentRecords)).
		Int("shifts", restored).
		Int("pending_ends", rescheduled).
		Int("queues", queues).
		Msg("state restored")
	return nil
}

// Tickers returns the periodic jobs. Each posts its work to the worker.
func (e *Engine) Tickers() []*ticker.Ticker {
	tickers := []*ticker.Ticker{
		ticker.NewTicker("live-broadcast", e.cfg.StatsBroadcastInterval, func(time.Time) {
			e.Post(e.broadcastLive)
		}, e.logger),
		ticker.NewTicker("flush", e.cfg.StatsFlushInterval, func(time.Time) {
			e.Post(e.flush)
		}, e.logger),
		ticker.NewTicker("day-rotation", e.cfg.RotateCheckInterval, func(time.Time) {
			e.Post(e.rotate)
		}, e.logger),
	}
	if e.loader != nil {
		tickers = append(tickers, ticker.NewTicker("agent-refresh", e.cfg.AgentRefreshInterval, func(time.Time) {
			e.refreshIdentities()
		}, e.logger))
	}
	return tickers
}

func (e *Engine) broadcastLive() {
	waiting := e.queues.Waiting()
	e.out.Broadcast(broadcast.TopicQueueStats, e.stats.Snapshot(waiting))
	e.agents.BroadcastStatus()

	_, ongoing := e.calls.Counts()
	metrics.Get().UpdateLive(ongoing, waiting, e.agents.Online())
}

func (e *Engine) flush() {
	e.stats.Flush()
	e.agents.Flush()
	if n := e.calls.PruneAttributions(attributionMaxAge); n > 0 {
		e.logger.Debug().Int("pruned", n).Msg("pruned stale attributions")
	}
}

func (e *Engine) rotate() {
	if e.stats.Rotate() {
		e.logger.Info().Str("day", e.stats.Day()).Msg("queue statistics rotated")
	}
}

// refreshIdentities reads the roster off the worker and applies it on the worker
func (e *Engine) refreshIdentities() {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	records, err := e.loader.ListAgents(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to refresh agent identities")
		return
	}
	e.Post(func() {
		e.agents.LoadIdentities(records)
		e.agents.BroadcastStatus()
	})
}

// Flush persists queue statistics and agent counters on the worker
func (e *Engine) Flush(ctx context.Context) error {
	return e.Do(ctx, e.flush)
}
