// Package tasks manages action items, optionally linked to a saved item.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/markwell-app/markwell/internal/database"
)

var (
	ErrNotFound     = errors.New("action item not found")
	ErrInvalidInput = errors.New("invalid input")
)

// MaxTitleLength is the longest accepted title, in characters
const MaxTitleLength = 500

const taskColumns = `id, user_id, item_id, title, notes, done, due_at, completed_at, created_at, updated_at`

// Task is an action item
type Task struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	ItemID      *uuid.UUID `json:"item_id,omitempty"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes"`
	Done        bool       `json:"done"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Input creates an action item
type Input struct {
	Title  string     `json:"title"`
	Notes  string     `json:"notes"`
	DueAt  *time.Time `json:"due_at"`
	ItemID *uuid.UUID `json:"item_id"`
}

// UpdateInput holds optional changes. ClearDue removes the due date.
type UpdateInput struct {
	Title    *string    `json:"title"`
	Notes    *string    `json:"notes"`
	DueAt    *time.Time `json:"due_at"`
	ClearDue bool       `json:"clear_due"`
}

// Filter narrows List results
type Filter struct {
	IncludeDone bool
}

// DueTask is an open action item joined with its owner, for digests
type DueTask struct {
	TaskID  uuid.UUID
	UserID  uuid.UUID
	Email   string
	Name    string
	Title   string
	DueAt   time.Time
	ItemURL string
}

// Service implements action item operations
type Service struct {
	db database.Querier
}

// NewService creates a task service
func NewService(db database.Querier) *Service {
	return &Service{db: db}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title is longer than %d characters", ErrInvalidInput, MaxTitleLength)
	}
	return title, nil
}

// Create adds an action item. A linked item must belong to the same user.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in Input) (*Task, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}

	// Ownership of the linked item is checked in the same statement
	row := s.db.QueryRow(ctx, `
		INSERT INTO action_items (id, user_id, item_id, title, notes, due_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE $3::uuid IS NULL OR EXISTS (SELECT 1 FROM items WHERE id = $3 AND user_id = $2)
		RETURNING `+taskColumns,
		uuid.New(), userID, in.ItemID, title, in.Notes, in.DueAt,
	)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: linked item does not exist", ErrInvalidInput)
	}
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: linked item does not exist", ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to create action item: %w", err)
	}
	return task, nil
}

// List returns the user's action items. Open items come first, ordered by
// due date with undated items last.
func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM action_items
		WHERE user_id = $1 AND ($2 OR NOT done)
		ORDER BY done, due_at NULLS LAST, created_at`,
		userID, f.IncludeDone,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list action items: %w", err)
	}
	defer rows.Close()

	out := []*Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// Update changes an action item's title, notes or due date
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*Task, error) {
	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		in.Title = &title
	}
	if in.ClearDue && in.DueAt != nil {
		return nil, fmt.Errorf("%w: due_at and clear_due are exclusive", ErrInvalidInput)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE action_items SET
			title = COALESCE($3, title),
			notes = COALESCE($4, notes),
			due_at = CASE WHEN $6 THEN NULL ELSE COALESCE($5, due_at) END,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+taskColumns,
		id, userID, in.Title, in.Notes, in.DueAt, in.ClearDue,
	)
	return oneTask(row)
}

// Complete marks an action item done. Completing twice keeps the first
// completion time.
func (s *Service) Complete(ctx context.Context, userID, id uuid.UUID) (*Task, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE action_items SET
			done = true,
			completed_at = COALESCE(completed_at, now()),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+taskColumns,
		id, userID,
	)
	return oneTask(row)
}

// Delete removes an action item
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM action_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete action item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DueBefore returns every open action item due at or before t, across all
// users, grouped by user and ordered by due date. Overdue items are included.
func (s *Service) DueBefore(ctx context.Context, t time.Time) ([]DueTask, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.user_id, u.email, u.name, a.title, a.due_at, COALESCE(i.url, '')
		FROM action_items a
		JOIN users u ON u.id = a.user_id
		LEFT JOIN items i ON i.id = a.item_id
		WHERE NOT a.done AND a.due_at IS NOT NULL AND a.due_at <= $1
		ORDER BY a.user_id, a.due_at`,
		t,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due action items: %w", err)
	}
	defer rows.Close()

	var out []DueTask
	for rows.Next() {
		var d DueTask
		if err := rows.Scan(&d.TaskID, &d.UserID, &d.Email, &d.Name, &d.Title, &d.DueAt, &d.ItemURL); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func oneTask(row pgx.Row) (*Task, error) {
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.UserID, &t.ItemID, &t.Title, &t.Notes, &t.Done, &t.DueAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
