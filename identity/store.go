// Package identity resolves token subjects to application users and derives
// their domain claims from the database.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is the application-side record for an authenticated subject.
type User struct {
	ID      uuid.UUID
	Subject string
	Email   string
	IsAdmin bool
	Regions []string
}

// Store provides minimal identity lookups against the profiles schema.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

// NewStore creates a store over the given pool. An empty schema defaults to
// "profiles".
func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "profiles"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) usersTable() string { return s.schema + ".users" }

func (s *Store) selectBySubjectSQL() string {
	return `SELECT id, subject, email, is_admin, regions FROM ` + s.usersTable() + ` WHERE subject=$1 LIMIT 1`
}

// Email comparison goes through lower() on both sides so lookups stay
// case-insensitive and use the functional index regardless of how the row was
// stored.
func (s *Store) selectByEmailSQL() string {
	return `SELECT id, subject, email, is_admin, regions FROM ` + s.usersTable() + ` WHERE lower(email)=$1 LIMIT 1`
}

// GetBySubject returns the user for a token subject, or nil if unknown.
func (s *Store) GetBySubject(ctx context.Context, subject string) (*User, error) {
	if s.pg == nil || strings.TrimSpace(subject) == "" {
		return nil, nil
	}
	var u User
	err := s.pg.QueryRow(ctx, s.selectBySubjectSQL(), subject).
		Scan(&u.ID, &u.Subject, &u.Email, &u.IsAdmin, &u.Regions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns the user with the given email, or nil if unknown.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	if s.pg == nil || strings.TrimSpace(email) == "" {
		return nil, nil
	}
	var u User
	err := s.pg.QueryRow(ctx, s.selectByEmailSQL(), strings.ToLower(email)).
		Scan(&u.ID, &u.Subject, &u.Email, &u.IsAdmin, &u.Regions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
