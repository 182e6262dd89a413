package bookmarks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/markwell-app/markwell/internal/database"
	"github.com/markwell-app/markwell/internal/metadata"
)

const itemColumns = `id, user_id, url, title, description, image, metadata_status, metadata_attempts, tags, notes, created_at, updated_at`

// Repository persists items in PostgreSQL
type Repository struct {
	db database.Querier
}

// NewRepository creates a repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// Insert stores a new item
func (r *Repository) Insert(ctx context.Context, item *Item) (*Item, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO items (id, user_id, url, title, description, image, metadata_status, metadata_attempts, tags, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+itemColumns,
		item.ID, item.UserID, item.URL, item.Title, item.Description, item.Image,
		string(item.MetadataStatus), item.MetadataAttempts, item.Tags, item.Notes,
	)

	created, err := scanItem(row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}
	return created, nil
}

// Get returns the user's item by id
func (r *Repository) Get(ctx context.Context, userID, id uuid.UUID) (*Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 AND user_id = $2`, id, userID)
	return oneItem(row)
}

// List returns the user's items, newest first
func (r *Repository) List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE user_id = $1
		  AND ($2 = '' OR $2 = ANY(tags))
		  AND ($3 = '' OR title ILIKE '%' || $3 || '%' OR url ILIKE '%' || $3 || '%' OR notes ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		userID, f.Tag, f.Query, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return collectItems(rows)
}

// Update applies the non-nil fields of in
func (r *Repository) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*Item, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE items SET
			title = COALESCE($3, title),
			notes = COALESCE($4, notes),
			tags = COALESCE($5, tags),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+itemColumns,
		id, userID, in.Title, in.Notes, in.Tags,
	)
	return oneItem(row)
}

// Delete removes the user's item
func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMetadata records an enrichment attempt. A successful result replaces the
// description and image; the title is only filled when the item has none.
func (r *Repository) SaveMetadata(ctx context.Context, id uuid.UUID, res metadata.Result) (*Item, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE items SET
			title = CASE WHEN $5 = 'ok' AND title = '' THEN $2 ELSE title END,
			description = CASE WHEN $5 = 'ok' THEN $3 ELSE description END,
			image = CASE WHEN $5 = 'ok' THEN $4 ELSE image END,
			metadata_status = CASE WHEN metadata_status = 'ok' AND $5 <> 'ok' THEN metadata_status ELSE $5 END,
			metadata_attempts = metadata_attempts + 1,
			updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns,
		id, res.Metadata.Title, res.Metadata.Description, res.Metadata.Image, string(res.Status),
	)
	return oneItem(row)
}

// PendingMetadata returns items whose enrichment has not succeeded yet and
// still has attempts left, least recently touched first
func (r *Repository) PendingMetadata(ctx context.Context, maxAttempts, limit int) ([]*Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE metadata_status <> 'ok' AND metadata_attempts < $1
		ORDER BY updated_at
		LIMIT $2`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return collectItems(rows)
}

// Tags returns the user's tags with usage counts, most used first
func (r *Repository) Tags(ctx context.Context, userID uuid.UUID) ([]TagCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tag, count(*)
		FROM items, unnest(tags) AS tag
		WHERE user_id = $1
		GROUP BY tag
		ORDER BY count(*) DESC, tag`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func oneItem(row pgx.Row) (*Item, error) {
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func collectItems(rows pgx.Rows) ([]*Item, error) {
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	var status string
	err := row.Scan(
		&it.ID, &it.UserID, &it.URL, &it.Title, &it.Description, &it.Image,
		&status, &it.MetadataAttempts, &it.Tags, &it.Notes, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.MetadataStatus = metadata.Status(status)
	if it.Tags == nil {
		it.Tags = []string{}
	}
	return &it, nil
}
