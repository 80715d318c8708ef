// Package postgres provides a PostgreSQL-backed implementation of
// [memory.Store]. Profiles and conversation history live in two tables
// keyed by (tenant_id, user_id); all operations share one [pgxpool.Pool]
// and are safe for concurrent use.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicewire/voicewire/pkg/memory"
)

// Compile-time assertion that Store satisfies memory.Store.
var _ memory.Store = (*Store)(nil)

// profileHistoryLimit bounds the history loaded into a Profile by
// GetProfile. Callers that need more use RecentTurns directly.
const profileHistoryLimit = 50

// Store is the PostgreSQL-backed memory store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// GetProfile implements memory.Store. A user never seen before yields a
// zero-valued profile with the keys filled in.
func (s *Store) GetProfile(ctx context.Context, tenantID, userID string) (memory.Profile, error) {
	const q = `
		SELECT first_name, long_term_memory, updated_at
		FROM   user_profiles
		WHERE  tenant_id = $1 AND user_id = $2`

	p := memory.Profile{TenantID: tenantID, UserID: userID}
	err := s.pool.QueryRow(ctx, q, tenantID, userID).
		Scan(&p.FirstName, &p.LongTermMemory, &p.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return memory.Profile{}, fmt.Errorf("postgres store: get profile: %w", err)
	}

	turns, err := s.RecentTurns(ctx, tenantID, userID, profileHistoryLimit)
	if err != nil {
		return memory.Profile{}, err
	}
	p.History = turns
	return p, nil
}

// SaveProfile implements memory.Store.
func (s *Store) SaveProfile(ctx context.Context, p memory.Profile) error {
	const q = `
		INSERT INTO user_profiles (tenant_id, user_id, first_name, long_term_memory, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET first_name       = EXCLUDED.first_name,
		    long_term_memory = EXCLUDED.long_term_memory,
		    updated_at       = now()`

	if _, err := s.pool.Exec(ctx, q, p.TenantID, p.UserID, p.FirstName, p.LongTermMemory); err != nil {
		return fmt.Errorf("postgres store: save profile: %w", err)
	}
	return nil
}

// AppendTurns implements memory.Store.
func (s *Store) AppendTurns(ctx context.Context, tenantID, userID string, turns ...memory.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	const q = `
		INSERT INTO conversation_turns (tenant_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, t := range turns {
		at := t.At
		if at.IsZero() {
			at = time.Now()
		}
		batch.Queue(q, tenantID, userID, t.Role, t.Content, at)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: append turns: %w", err)
	}
	return nil
}

// RecentTurns implements memory.Store.
func (s *Store) RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]memory.Turn, error) {
	q := `
		SELECT role, content, created_at
		FROM   conversation_turns
		WHERE  tenant_id = $1 AND user_id = $2
		ORDER  BY created_at DESC, id DESC`
	args := []any{tenantID, userID}
	if limit > 0 {
		args = append(args, limit)
		q += "\n\t\tLIMIT $3"
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Turn, error) {
		var t memory.Turn
		err := row.Scan(&t.Role, &t.Content, &t.At)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan turns: %w", err)
	}

	// The query returns newest first; callers expect chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	return turns, nil
}

// Close implements memory.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
