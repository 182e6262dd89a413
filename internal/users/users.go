// Package users provisions local user rows for identity provider principals.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/markwell-app/markwell/internal/auth"
	"github.com/markwell-app/markwell/internal/database"
)

var (
	// ErrUnauthenticated is returned when no principal is available
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserNotFound is returned when a user does not exist
	ErrUserNotFound = errors.New("user not found")
)

// User is a provisioned account
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

const userColumns = `id, external_id, email, name, created_at, last_seen_at`

// Service provisions and looks up users
type Service struct {
	db database.Querier
}

// NewService creates a user service
func NewService(db database.Querier) *Service {
	return &Service{db: db}
}

// EnsureUser returns the local user for p, creating it on first sight.
// Email and name are refreshed from the principal when it carries them.
func (s *Service) EnsureUser(ctx context.Context, p *auth.Principal) (*User, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrUnauthenticated
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, external_id, email, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			last_seen_at = now()
		RETURNING `+userColumns,
		uuid.New(), p.UserID, p.Email, p.Name,
	)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return user, nil
}

// GetByID returns a user by primary key
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.CreatedAt, &u.LastSeenAt); err != nil {
		return nil, err
	}
	return &u, nil
}
