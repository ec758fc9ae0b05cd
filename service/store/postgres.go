package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nootey/walko/service/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS walko_artifacts (
    kind       TEXT        NOT NULL,
    scope      TEXT        NOT NULL,
    day        DATE        NOT NULL,
    wallet     TEXT        NOT NULL,
    payload    JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (kind, scope, day, wallet)
)`

// PGStore keeps artifacts in Postgres as JSONB.
type PGStore struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPGStore creates a PGStore with the given database connection pool.
func NewPGStore(pool *pgxpool.Pool, m *metrics.Metrics, logger *slog.Logger) *PGStore {
	return &PGStore{pool: pool, metrics: m, logger: logger}
}

// Migrate creates the artifacts table if it does not exist.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create artifacts table: %w", err)
	}
	return nil
}

func (s *PGStore) record(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordStoreOp(op, "postgres", time.Since(start).Seconds(), err)
	}
}

func (s *PGStore) Load(ctx context.Context, key Key, v any) (found bool, err error) {
	start := time.Now()
	defer func() { s.record("load", start, err) }()

	if err := key.validate(); err != nil {
		return false, err
	}

	var payload []byte
	err = s.pool.QueryRow(ctx,
		`SELECT payload FROM walko_artifacts WHERE kind = $1 AND scope = $2 AND day = $3 AND wallet = $4`,
		string(key.Kind), string(key.Scope), key.day(), key.Wallet,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PGStore) Save(ctx context.Context, key Key, v any) (err error) {
	start := time.Now()
	defer func() { s.record("save", start, err) }()

	if err := key.validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO walko_artifacts (kind, scope, day, wallet, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, scope, day, wallet)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		string(key.Kind), string(key.Scope), key.day(), key.Wallet, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "saved artifact", "key", key.String(), "backend", "postgres")
	return nil
}

// Artifact summarizes one stored row.
type Artifact struct {
	Kind      Kind      `json:"kind"`
	Scope     Scope     `json:"scope"`
	Date      string    `json:"date"`
	Wallet    string    `json:"wallet"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns the stored artifacts of a wallet, newest day first.
func (s *PGStore) List(ctx context.Context, wallet string) (out []Artifact, err error) {
	start := time.Now()
	defer func() { s.record("list", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT kind, scope, to_char(day, 'YYYY-MM-DD'), wallet, updated_at
		FROM walko_artifacts
		WHERE wallet = $1
		ORDER BY day DESC, kind, scope`, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Artifact
		var kind, scope string
		if err := rows.Scan(&kind, &scope, &a.Date, &a.Wallet, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Kind, a.Scope = Kind(kind), Scope(scope)
		out = append(out, a)
	}
	return out, rows.Err()
}
