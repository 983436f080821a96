package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store against a PostgreSQL table, for
// deployments running more than one engine process against shared session
// state. Connection URL is read from SCENARIO_PG_URL by the caller and
// passed to NewPostgresStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and ensures the sessions table exists.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("postgres session store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS scenario_sessions (
			user_key      TEXT PRIMARY KEY,
			current_block TEXT NOT NULL,
			variables     JSONB NOT NULL DEFAULT '{}',
			step          INT NOT NULL DEFAULT 0,
			active        BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Save upserts the session row for userKey.
func (s *PostgresStore) Save(ctx context.Context, userKey string, session *models.Session) error {
	vars, err := json.Marshal(session.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	now := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scenario_sessions (user_key, current_block, variables, step, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_key) DO UPDATE SET
			current_block = EXCLUDED.current_block,
			variables     = EXCLUDED.variables,
			step          = EXCLUDED.step,
			active        = EXCLUDED.active,
			updated_at    = EXCLUDED.updated_at
	`, userKey, session.CurrentBlock, vars, session.Step, session.Active, now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", userKey, err)
	}
	return nil
}

// Load fetches the session row for userKey.
func (s *PostgresStore) Load(ctx context.Context, userKey string) (*models.Session, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT current_block, variables, step, active, created_at, updated_at
		FROM scenario_sessions WHERE user_key = $1
	`, userKey)

	var (
		currentBlock string
		rawVars      []byte
		step         int
		active       bool
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := row.Scan(&currentBlock, &rawVars, &step, &active, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load session %s: %w", userKey, err)
	}

	vars := map[string]any{}
	if len(rawVars) > 0 {
		if err := json.Unmarshal(rawVars, &vars); err != nil {
			return nil, false, fmt.Errorf("unmarshal variables for %s: %w", userKey, err)
		}
	}

	return &models.Session{
		UserKey:      userKey,
		CurrentBlock: currentBlock,
		Variables:    vars,
		Step:         step,
		Active:       active,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, true, nil
}

// Delete removes the session row for userKey.
func (s *PostgresStore) Delete(ctx context.Context, userKey string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM scenario_sessions WHERE user_key = $1`, userKey)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", userKey, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
