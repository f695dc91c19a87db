package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Mode {
	case ModeDynamoLocal, ModeDynamoAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	case ModePostgres:
		return NewPostgresStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("persistence disabled (STORE_MODE=none)")
		return NewNoopStore(), nil
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
