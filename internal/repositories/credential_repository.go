package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clipcast/backend/internal/db"
	"github.com/clipcast/backend/internal/models"
	"github.com/clipcast/backend/internal/youtube"
)

var _ youtube.CredentialStore = (*PostgresCredentialStore)(nil)

// PostgresCredentialStore persists OAuth credentials to PostgreSQL. The table
// is append-only: refreshed tokens are inserted as new rows and the newest row
// wins, so the full credential history survives for auditing.
type PostgresCredentialStore struct {
	pool db.Pool
}

// NewPostgresCredentialStore constructs a credential store backed by PostgreSQL.
func NewPostgresCredentialStore(pool db.Pool) *PostgresCredentialStore {
	return &PostgresCredentialStore{pool: pool}
}

// Insert appends a new credential record. Existing rows are never updated.
func (s *PostgresCredentialStore) Insert(ctx context.Context, cred models.Credential) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO youtube_credentials (user_ref, access_token, created_at)
        VALUES ($1, $2, $3)
    `, cred.UserRef, cred.Token, cred.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	return nil
}

// Latest returns the most recently created credential. An empty table is a
// valid outcome and reports ok=false with a nil error.
func (s *PostgresCredentialStore) Latest(ctx context.Context) (models.Credential, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Credential{}, false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_ref, access_token, created_at
        FROM youtube_credentials
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `)

	var cred models.Credential
	if err := row.Scan(&cred.ID, &cred.UserRef, &cred.Token, &cred.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Credential{}, false, nil
		}
		return models.Credential{}, false, fmt.Errorf("select latest credential: %w", err)
	}

	cred.CreatedAt = cred.CreatedAt.UTC()
	return cred, true, nil
}
