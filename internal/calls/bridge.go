package calls

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

const recordingTimeout = 10 * time.Second

// Recorder issues the start-recording action to the PBX
type Recorder interface {
	StartRecording(ctx context.Context, channel, file string) error
}

// Async runs work off the worker and hands its result to then on the worker
type Async interface {
	Run(work func() error, then func(err error))
}

// Coordinator watches bridges and starts exactly one recording per call.
// It shares the Tracker's state and, like it, runs only on the worker.
type Coordinator struct {
	calls    *Tracker
	recorder Recorder
	async    Async
	dir      string
	logger   zerolog.Logger
}

// NewCoordinator creates a coordinator writing recordings below dir
func NewCoordinator(calls *Tracker, recorder Recorder, async Async, dir string, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		calls:    calls,
		recorder: recorder,
		async:    async,
		dir:      dir,
		logger:   logger.With().Str("component", "bridge").Logger(),
	}
}

// OnBridgeMembership adds a channel to its bridge. The transition to exactly
// two participants claims the recording marker and starts the recording.
func (c *Coordinator) OnBridgeMembership(e event.BridgeEnter) {
	t := c.calls
	b, ok := t.bridges[e.BridgeID]
	if !ok {
		b = &types.Bridge{
			ID:            e.BridgeID,
			CorrelationID: e.CorrelationID,
			Caller:        e.Caller,
			Connected:     e.Connected,
			CreatedAt:     t.now(),
		}
		t.bridges[e.BridgeID] = b
	}
	if b.Connected.Number == "" {
		b.Connected = e.Connected
	}
	if !b.Add(e.Channel) {
		return
	}

	if oc, ok := t.ongoing[b.CorrelationID]; ok {
		// Later participants join the call but never re-trigger recording
		if oc.Legs.Add(e.Channel) {
			t.BroadcastOngoing()
		}
		return
	}

	if len(b.Participants) != 2 || t.recording[b.CorrelationID] {
		return
	}

	// Claim before the action so a concurrent membership cannot start a second recording
	t.recording[b.CorrelationID] = true

	correlationID := b.CorrelationID
	bridgeID := b.ID
	channel := b.Participants[0]
	file := c.recordingPath(correlationID, t.now())

	c.logger.Debug().
		Str("correlation_id", correlationID).
		Str("bridge_id", bridgeID).
		Str("channel", channel).
		Str("file", file).
		Msg("starting recording")

	c.async.Run(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), recordingTimeout)
		defer cancel()
		return c.recorder.StartRecording(ctx, channel, file)
	}, func(err error) {
		c.onRecordingResult(correlationID, bridgeID, file, err)
	})
}

func (c *Coordinator) onRecordingResult(correlationID, bridgeID, file string, err error) {
	t := c.calls
	metrics.Get().RecordRecording(err)

	if err != nil {
		delete(t.recording, correlationID)
		c.logger.Warn().Err(err).Str("correlation_id", correlationID).Msg("recording start failed, marker cleared")
		return
	}

	if !t.recording[correlationID] {
		// Finalized while the action was in flight
		c.logger.Info().Str("correlation_id", correlationID).Msg("call ended before recording confirmed")
		return
	}

	b, ok := t.bridges[bridgeID]
	if !ok || len(b.Participants) < 2 {
		// Torn down, or a participant hung up, while the action was in flight
		delete(t.recording, correlationID)
		c.logger.Info().Str("correlation_id", correlationID).Msg("bridge gone before recording confirmed")
		return
	}
	t.materialize(b, file)
}

// OnBridgeDestroy forgets the bridge. The call itself ends on hangup.
func (c *Coordinator) OnBridgeDestroy(bridgeID string) {
	delete(c.calls.bridges, bridgeID)
}

// Bridges returns the number of tracked bridges
func (c *Coordinator) Bridges() int {
	return len(c.calls.bridges)
}

func (c *Coordinator) recordingPath(correlationID string, at time.Time) string {
	return filepath.Join(c.dir, at.Format("20060102"), correlationID+".wav")
}
