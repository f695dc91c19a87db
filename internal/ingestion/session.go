// Package ingestion keeps a manager session open and feeds its events to the engine
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/ami"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/dennisdiepolder/monti/pbxlive/internal/ticker"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by actions while no session is open
var ErrNotConnected = errors.New("pbx not connected")

const pollTimeout = 10 * time.Second

// Options configures the session loop
type Options struct {
	ReconnectDelay       time.Duration
	QueueStatusInterval  time.Duration
	EndpointPollInterval time.Duration
}

// Session holds the current manager connection and reconnects when it drops
type Session struct {
	dial   Dialer
	engine Submitter
	opts   Options
	logger zerolog.Logger

	mu   sync.RWMutex
	conn Connection
}

// NewSession creates a session loop
func NewSession(dial Dialer, engine Submitter, opts Options, logger zerolog.Logger) *Session {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &Session{
		dial:   dial,
		engine: engine,
		opts:   opts,
		logger: logger.With().Str("component", "ingestion").Logger(),
	}
}

// Run connects and pumps events until ctx is cancelled, reconnecting after
// ReconnectDelay whenever the session fails
func (s *Session) Run(ctx context.Context) {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.logger.Info().Msg("ingestion stopped")
			return
		}

		metrics.Get().RecordAMIReconnect()
		s.logger.Warn().Err(err).Dur("retry_in", s.opts.ReconnectDelay).Msg("pbx session ended")

		select {
		case <-time.After(s.opts.ReconnectDelay):
		case <-ctx.Done():
			s.logger.Info().Msg("ingestion stopped")
			return
		}
	}
}

// Connected reports whether a session is open
func (s *Session) Connected() bool {
	return s.current() != nil
}

func (s *Session) current() Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Session) setCurrent(c Connection) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

func (s *Session) runOnce(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	s.setCurrent(conn)
	defer func() {
		s.setCurrent(nil)
		conn.Close()
	}()

	pollCtx, stopPolls := context.WithCancel(ctx)
	defer stopPolls()
	s.startPolls(pollCtx)

	s.logger.Info().Msg("pbx session established")

	events := conn.Events()
	for {
		select {
		case raw, ok := <-events:
			if !ok {
				if err := conn.Err(); err != nil {
					return err
				}
				return ami.ErrClosed
			}
			if err := s.handle(ctx, raw); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) handle(ctx context.Context, raw ami.Event) error {
	m := metrics.Get()
	m.RecordEventReceived()

	ev, err := event.Normalize(raw)
	if errors.Is(err, event.ErrIgnored) {
		return nil
	}
	if err != nil {
		m.RecordEventDropped("invalid")
		s.logger.Warn().Err(err).Str("event", raw.Type()).Msg("dropping malformed event")
		return nil
	}

	if err := s.engine.Submit(ctx, ev); err != nil {
		return fmt.Errorf("submit %s: %w", ev.Kind(), err)
	}
	return nil
}

// startPolls primes member and endpoint state, then repeats the polls
func (s *Session) startPolls(ctx context.Context) {
	go func() {
		s.poll(ctx, "QueueStatus", s.QueueStatus)
		s.poll(ctx, "PJSIPShowEndpoints", s.ShowEndpoints)
	}()

	polls := []*ticker.Ticker{
		ticker.NewTicker("queue-status", s.opts.QueueStatusInterval, func(time.Time) {
			s.poll(ctx, "QueueStatus", s.QueueStatus)
		}, s.logger),
		ticker.NewTicker("endpoint-poll", s.opts.EndpointPollInterval, func(time.Time) {
			s.poll(ctx, "PJSIPShowEndpoints", s.ShowEndpoints)
		}, s.logger),
	}
	for _, t := range polls {
		go t.Start(ctx)
	}
}

func (s *Session) poll(parent context.Context, name string, action func(context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, pollTimeout)
	defer cancel()

	if err := action(ctx); err != nil && parent.Err() == nil {
		metrics.Get().RecordPollFailure()
		s.logger.Warn().Err(err).Str("action", name).Msg("poll failed")
	}
}

// StartRecording starts a recording on the live session
func (s *Session) StartRecording(ctx context.Context, channel, file string) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.StartRecording(ctx, channel, file)
}

// QueueStatus requests a queue membership dump
func (s *Session) QueueStatus(ctx context.Context) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.QueueStatus(ctx)
}

// ShowEndpoints requests the endpoint list
func (s *Session) ShowEndpoints(ctx context.Context) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.ShowEndpoints(ctx)
}
