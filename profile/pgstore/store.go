// Package pgstore is a goAdmin.ProfileStore backed by a Postgres table.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the profiles table. created_at fixes the listing order.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store implements goAdmin.ProfileStore.
type Store struct {
	db DB
}

// New creates a Store on the given pool.
func New(db DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the profiles table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}
	return nil
}

// ListAll returns every profile ordered by creation time, then id.
func (s *Store) ListAll(ctx context.Context) ([]goAdmin.AccountRecord, error) {
	query := `
		SELECT id, display_name, email, role
		FROM profiles
		ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	records := []goAdmin.AccountRecord{}
	for rows.Next() {
		var rec goAdmin.AccountRecord
		if err := rows.Scan(&rec.ID, &rec.DisplayName, &rec.Email, &rec.Role); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return records, nil
}

// DeleteByID removes one profile. A missing row is not an error.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	return nil
}

// Put inserts a profile or updates its fields in place.
func (s *Store) Put(ctx context.Context, rec goAdmin.AccountRecord) error {
	if rec.ID == "" {
		return errors.New("account id required")
	}
	query := `
		INSERT INTO profiles (id, display_name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    email = EXCLUDED.email,
		    role = EXCLUDED.role`

	if _, err := s.db.Exec(ctx, query, rec.ID, rec.DisplayName, rec.Email, rec.Role); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23502" {
			return fmt.Errorf("profile %s has a null field: %w", rec.ID, err)
		}
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}
