// Package callstore implements the persisted call log (spec.md §6,
// "Persisted state"): an append-only record of each call's transcript
// and latency log, durable across process restarts, unlike the
// Call-State Store which only tracks a call while it's live.
package callstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

// PostgresStore persists calls and their append-only transcript/latency
// logs to Postgres via a pooled connection.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("callstore: connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			from_number TEXT NOT NULL DEFAULT '',
			to_number TEXT NOT NULL DEFAULT '',
			end_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NULL,
			answered_at TIMESTAMPTZ NULL,
			ended_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_agent_created ON calls (agent_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS call_logs (
			call_id TEXT PRIMARY KEY REFERENCES calls(id) ON DELETE CASCADE,
			transcript JSONB NOT NULL DEFAULT '[]',
			latency_checkpoints JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("callstore: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// CreateCall inserts the call's header row, called once the carrier
// stream starts.
func (s *PostgresStore) CreateCall(ctx context.Context, call *calltypes.Call) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (id, agent_id, direction, from_number, to_number, created_at, started_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO NOTHING`,
		call.CallID, call.Agent.AgentID, string(call.Direction), call.From, call.To, call.CreatedAt, call.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("callstore: insert call: %w", err)
	}
	return nil
}

// EndCall records the call's terminal fields once it hangs up.
func (s *PostgresStore) EndCall(ctx context.Context, callID, endReason string, answeredAt, endedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE calls SET end_reason=$2, answered_at=$3, ended_at=$4 WHERE id=$1`,
		callID, endReason, answeredAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("callstore: update call end state: %w", err)
	}
	return nil
}

// AppendTranscript appends the full current transcript and latency log
// for a call in one write, replacing the JSONB arrays wholesale — the
// arrays themselves are append-only from the orchestrator's perspective,
// only the persisted copy is replaced.
func (s *PostgresStore) AppendTranscript(ctx context.Context, callID string, transcript *calltypes.Transcript, checkpoints []LatencyCheckpoint) error {
	transcriptJSON, err := json.Marshal(transcript.Entries)
	if err != nil {
		return fmt.Errorf("callstore: marshal transcript: %w", err)
	}
	checkpointsJSON, err := json.Marshal(checkpoints)
	if err != nil {
		return fmt.Errorf("callstore: marshal latency checkpoints: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_logs (call_id, transcript, latency_checkpoints, updated_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (call_id) DO UPDATE SET
		   transcript=EXCLUDED.transcript,
		   latency_checkpoints=EXCLUDED.latency_checkpoints,
		   updated_at=EXCLUDED.updated_at`,
		callID, transcriptJSON, checkpointsJSON, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("callstore: upsert call log: %w", err)
	}
	return nil
}

// LatencyCheckpoint is one turn's recorded instrumentation, persisted
// verbatim alongside the transcript it belongs to.
type LatencyCheckpoint struct {
	TurnSeq       int           `json:"turn_seq"`
	STTLatency    time.Duration `json:"stt_latency_ms"`
	LLMLatency    time.Duration `json:"llm_latency_ms"`
	TTSLatency    time.Duration `json:"tts_latency_ms"`
	TimeToFirstSpeech time.Duration `json:"ttfs_ms"`
}

// MarshalJSON writes the durations as whole milliseconds, matching the
// field names.
func (c LatencyCheckpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TurnSeq           int   `json:"turn_seq"`
		STTLatency        int64 `json:"stt_latency_ms"`
		LLMLatency        int64 `json:"llm_latency_ms"`
		TTSLatency        int64 `json:"tts_latency_ms"`
		TimeToFirstSpeech int64 `json:"ttfs_ms"`
	}{c.TurnSeq, c.STTLatency.Milliseconds(), c.LLMLatency.Milliseconds(), c.TTSLatency.Milliseconds(), c.TimeToFirstSpeech.Milliseconds()})
}

// GetCall fetches a call's header row.
func (s *PostgresStore) GetCall(ctx context.Context, callID string) (*calltypes.Call, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, direction, from_number, to_number, end_reason, created_at, started_at, answered_at, ended_at
		   FROM calls WHERE id=$1`,
		callID,
	)
	var c calltypes.Call
	var direction string
	var answeredAt, endedAt, startedAt *time.Time
	err := row.Scan(&c.CallID, &c.Agent.AgentID, &direction, &c.From, &c.To, &c.EndReason, &c.CreatedAt, &startedAt, &answeredAt, &endedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("callstore: call %q not found", callID)
		}
		return nil, fmt.Errorf("callstore: get call: %w", err)
	}
	c.Direction = calltypes.Direction(direction)
	if startedAt != nil {
		c.StartedAt = *startedAt
	}
	if answeredAt != nil {
		c.AnsweredAt = *answeredAt
	}
	if endedAt != nil {
		c.EndedAt = *endedAt
	}
	return &c, nil
}

// Ping verifies the pool can still reach Postgres, for readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
