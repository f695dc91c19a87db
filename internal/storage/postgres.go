package storage

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store on PostgreSQL through a pgx pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects, pings and applies the embedded migrations
func NewPostgresStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger = logger.With().Str("component", "postgres").Logger()
	logger.Info().Msg("PostgreSQL store initialized")

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// migrate runs embedded migrations in file name order
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err = pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateCallRecord(ctx context.Context, r types.CallRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_records (correlation_id, date_key, status, caller_number, caller_name, destination,
		   queue_id, agent, queue_outcome, wait_seconds, duration_seconds, hold_seconds, cause, cause_text,
		   recording_path, started_at, answered_at, ended_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (correlation_id) DO UPDATE SET
		   date_key = COALESCE(NULLIF(call_records.date_key, ''), EXCLUDED.date_key),
		   status = COALESCE(NULLIF(call_records.status, ''), EXCLUDED.status),
		   caller_number = COALESCE(NULLIF(call_records.caller_number, ''), EXCLUDED.caller_number),
		   caller_name = COALESCE(NULLIF(call_records.caller_name, ''), EXCLUDED.caller_name),
		   destination = COALESCE(NULLIF(call_records.destination, ''), EXCLUDED.destination),
		   queue_id = COALESCE(NULLIF(call_records.queue_id, ''), EXCLUDED.queue_id),
		   agent = COALESCE(NULLIF(call_records.agent, ''), EXCLUDED.agent),
		   queue_outcome = COALESCE(NULLIF(call_records.queue_outcome, ''), EXCLUDED.queue_outcome),
		   cause_text = COALESCE(NULLIF(call_records.cause_text, ''), EXCLUDED.cause_text),
		   recording_path = COALESCE(NULLIF(call_records.recording_path, ''), EXCLUDED.recording_path),
		   started_at = COALESCE(call_records.started_at, EXCLUDED.started_at),
		   answered_at = COALESCE(call_records.answered_at, EXCLUDED.answered_at),
		   ended_at = COALESCE(call_records.ended_at, EXCLUDED.ended_at)`,
		r.CorrelationID, r.DateKey, string(r.Status), r.CallerNumber, r.CallerName, r.Destination,
		r.QueueID, r.Agent, r.QueueOutcome, r.WaitSeconds, r.DurationSeconds, r.HoldSeconds, r.Cause, r.CauseText,
		r.RecordingPath, r.StartedAt, r.AnsweredAt, r.EndedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCallRecord(ctx context.Context, correlationID string, u types.CallUpdate) error {
	var status *string
	if u.Status != nil {
		status = types.Ptr(string(*u.Status))
	}
	// Upsert: an update may reach the table before the ringing record
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_records (correlation_id, status, queue_id, agent, queue_outcome, wait_seconds,
		   duration_seconds, hold_seconds, cause, cause_text, recording_path, answered_at, ended_at, updated_at)
		 VALUES ($1, COALESCE($2::text, ''), COALESCE($3::text, ''), COALESCE($4::text, ''), COALESCE($5::text, ''),
		   COALESCE($6::double precision, 0), COALESCE($7::double precision, 0), COALESCE($8::double precision, 0),
		   COALESCE($9::integer, 0), COALESCE($10::text, ''), COALESCE($11::text, ''),
		   $12::timestamptz, $13::timestamptz, NOW())
		 ON CONFLICT (correlation_id) DO UPDATE SET
		   status = COALESCE($2::text, call_records.status),
		   queue_id = COALESCE($3::text, call_records.queue_id),
		   agent = COALESCE($4::text, call_records.agent),
		   queue_outcome = COALESCE($5::text, call_records.queue_outcome),
		   wait_seconds = COALESCE($6::double precision, call_records.wait_seconds),
		   duration_seconds = COALESCE($7::double precision, call_records.duration_seconds),
		   hold_seconds = COALESCE($8::double precision, call_records.hold_seconds),
		   cause = COALESCE($9::integer, call_records.cause),
		   cause_text = COALESCE($10::text, call_records.cause_text),
		   recording_path = COALESCE($11::text, call_records.recording_path),
		   answered_at = COALESCE($12::timestamptz, call_records.answered_at),
		   ended_at = COALESCE($13::timestamptz, call_records.ended_at),
		   updated_at = NOW()`,
		correlationID, status, u.QueueID, u.Agent, u.QueueOutcome, u.WaitSeconds, u.DurationSeconds,
		u.HoldSeconds, u.Cause, u.CauseText, u.RecordingPath, u.AnsweredAt, u.EndedAt)
	if err != nil {
		return fmt.Errorf("update call record: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAgent(ctx context.Context, a types.AgentRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (extension, name, queues, status, device_state, last_activity, stats_date, today, overall, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (extension) DO UPDATE SET
		   name = EXCLUDED.name, queues = EXCLUDED.queues, status = EXCLUDED.status,
		   device_state = EXCLUDED.device_state, last_activity = EXCLUDED.last_activity,
		   stats_date = EXCLUDED.stats_date, today = EXCLUDED.today, overall = EXCLUDED.overall,
		   updated_at = EXCLUDED.updated_at`,
		a.Extension, a.Name, nonNil(a.Queues), string(a.Status), a.DeviceState, nullTime(a.LastActivity),
		a.StatsDate, a.Today, a.Overall, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAgent(ctx context.Context, extension string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE extension = $1`, extension); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAgents(ctx context.Context) ([]types.AgentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT extension, name, queues, status, device_state, last_activity, stats_date, today, overall, updated_at
		 FROM agents ORDER BY extension`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var list []types.AgentRecord
	for rows.Next() {
		var (
			a            types.AgentRecord
			status       string
			lastActivity *time.Time
		)
		if err := rows.Scan(&a.Extension, &a.Name, &a.Queues, &status, &a.DeviceState, &lastActivity,
			&a.StatsDate, &a.Today, &a.Overall, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Status = types.AgentStatus(status)
		if lastActivity != nil {
			a.LastActivity = *lastActivity
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (s *PostgresStore) SaveShift(ctx context.Context, sh types.ShiftRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO shifts (agent_id, shift_id, start_time, end_time, duration_seconds, pending_end_until, offline_reason, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (agent_id, shift_id) DO UPDATE SET
		   end_time = EXCLUDED.end_time, duration_seconds = EXCLUDED.duration_seconds,
		   pending_end_until = EXCLUDED.pending_end_until, offline_reason = EXCLUDED.offline_reason,
		   updated_at = EXCLUDED.updated_at`,
		sh.AgentID, sh.ShiftID, sh.StartTime, sh.EndTime, sh.DurationSeconds, sh.PendingEndUntil,
		sh.OfflineReason, sh.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert shift: %w", err)
	}
	return nil
}

const shiftColumns = `agent_id, shift_id, start_time, end_time, duration_seconds, pending_end_until, offline_reason, updated_at`

func (s *PostgresStore) ListOpenShifts(ctx context.Context) ([]types.ShiftRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE end_time IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list open shifts: %w", err)
	}
	return collectShifts(rows)
}

func (s *PostgresStore) ListShifts(ctx context.Context, agentID string) ([]types.ShiftRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE agent_id = $1 ORDER BY start_time DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	return collectShifts(rows)
}

func collectShifts(rows pgx.Rows) ([]types.ShiftRecord, error) {
	defer rows.Close()
	var list []types.ShiftRecord
	for rows.Next() {
		var sh types.ShiftRecord
		if err := rows.Scan(&sh.AgentID, &sh.ShiftID, &sh.StartTime, &sh.EndTime, &sh.DurationSeconds,
			&sh.PendingEndUntil, &sh.OfflineReason, &sh.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		list = append(list, sh)
	}
	return list, rows.Err()
}

// SaveQueueStats stores the whole record as JSONB, keyed by queue and day
func (s *PostgresStore) SaveQueueStats(ctx context.Context, st types.QueueStats) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO queue_stats (queue_id, date, queue_name, stats, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (queue_id, date) DO UPDATE SET
		   queue_name = EXCLUDED.queue_name, stats = EXCLUDED.stats, updated_at = EXCLUDED.updated_at`,
		st.QueueID, st.Date, st.QueueName, st, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert queue stats: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQueueStats(ctx context.Context, queueID string) ([]types.QueueStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stats FROM queue_stats WHERE queue_id = $1 ORDER BY date DESC`, queueID)
	if err != nil {
		return nil, fmt.Errorf("list queue stats: %w", err)
	}
	defer rows.Close()

	var list []types.QueueStats
	for rows.Next() {
		var st types.QueueStats
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		list = append(list, st)
	}
	return list, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
