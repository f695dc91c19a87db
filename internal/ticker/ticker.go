package ticker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Ticker runs a job on a fixed interval until its context is cancelled
type Ticker struct {
	name     string
	interval time.Duration
	job      func(now time.Time)
	logger   zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(name string, interval time.Duration, job func(now time.Time), logger zerolog.Logger) *Ticker {
	return &Ticker{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.With().Str("ticker", name).Logger(),
	}
}

// Start runs the job on every tick. It blocks until ctx is done.
func (t *Ticker) Start(ctx context.Context) {
	if t.interval <= 0 {
		t.logger.Warn().Msg("ticker disabled, interval must be positive")
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("ticker stopped")
			return

		case now := <-ticker.C:
			t.job(now)
		}
	}
}

// Name returns the ticker's name
func (t *Ticker) Name() string {
	return t.name
}
