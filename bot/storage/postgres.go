package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore persists records in the registrations table.
// Schema is owned by the file migrations under migrations/.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already connected database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the record for userID or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, userID int64) (Record, error) {
	const q = `SELECT user_id, name, phone, created_at FROM registrations WHERE user_id = $1`

	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("storage: get registration: %w", err)
	}
	return rec, nil
}

// Put upserts the full record keyed by user_id.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO registrations (user_id, name, phone, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone, created_at = EXCLUDED.created_at`

	if _, err := s.db.ExecContext(ctx, q, rec.UserID, rec.Name, rec.Phone, rec.CreatedAt); err != nil {
		return fmt.Errorf("storage: put registration: %w", err)
	}
	return nil
}

// ListAll returns every stored record ordered by creation time, then user id.
func (s *PostgresStore) ListAll(ctx context.Context) ([]Record, error) {
	const q = `SELECT user_id, name, phone, created_at FROM registrations ORDER BY created_at, user_id`

	var out []Record
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("storage: list registrations: %w", err)
	}
	return out, nil
}

// Delete removes the record for userID. Deleting an absent record is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, userID int64) error {
	const q = `DELETE FROM registrations WHERE user_id = $1`

	if _, err := s.db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("storage: delete registration: %w", err)
	}
	return nil
}
