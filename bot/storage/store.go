// Package storage defines the record store contract shared by the JSON file
// and Postgres backends. A successful Put must be durable: a subsequent Get
// from any process sees the record, with no in-memory layer masking a crash.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for the user.
var ErrNotFound = errors.New("storage: record not found")

// Record is the persisted registration state for one user.
// Field order (user_id, name, phone, created_at) is the contract the admin
// listing and both backends agree on.
type Record struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store is the flat key-value record store keyed by user id.
// Put is a full-record upsert; per-record updates are independent, no
// cross-record transactional guarantee is provided.
type Store interface {
	Get(ctx context.Context, userID int64) (Record, error)
	Put(ctx context.Context, rec Record) error
	ListAll(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, userID int64) error
}
