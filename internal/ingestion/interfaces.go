package ingestion

import (
	"context"

	"github.com/dennisdiepolder/monti/pbxlive/internal/ami"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/rs/zerolog"
)

// Connection is one logged-in manager session
type Connection interface {
	// Events is closed when the session ends
	Events() <-chan ami.Event
	Err() error
	StartRecording(ctx context.Context, channel, file string) error
	QueueStatus(ctx context.Context) error
	ShowEndpoints(ctx context.Context) error
	Close() error
}

// Dialer opens a new manager session
type Dialer func(ctx context.Context) (Connection, error)

// Submitter receives normalized events in arrival order
type Submitter interface {
	Submit(ctx context.Context, ev event.Event) error
}

// AMIDialer dials the manager interface over TCP
func AMIDialer(opts ami.Options, logger zerolog.Logger) Dialer {
	return func(ctx context.Context) (Connection, error) {
		return ami.Dial(ctx, opts, logger)
	}
}
