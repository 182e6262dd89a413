// Package bookmarks stores saved links and enriches them with page metadata.
package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/markwell-app/markwell/internal/database"
	"github.com/markwell-app/markwell/internal/email"
	"github.com/markwell-app/markwell/internal/metadata"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrDuplicate    = errors.New("item already saved")
	ErrInvalidURL   = errors.New("invalid url")
	ErrInvalidTags  = errors.New("invalid tags")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	maxNotesLength  = 10000
)

// Item is a saved link
type Item struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	URL              string          `json:"url"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Image            string          `json:"image"`
	MetadataStatus   metadata.Status `json:"metadata_status"`
	MetadataAttempts int             `json:"metadata_attempts"`
	Tags             []string        `json:"tags"`
	Notes            string          `json:"notes"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CreateInput is the payload for saving a link
type CreateInput struct {
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
	Notes string   `json:"notes"`
}

// UpdateInput holds optional field changes; nil fields are left as is
type UpdateInput struct {
	Title *string   `json:"title"`
	Notes *string   `json:"notes"`
	Tags  *[]string `json:"tags"`
}

// Filter narrows List results
type Filter struct {
	Tag    string
	Query  string
	Limit  int
	Offset int
}

// TagCount is a tag with the number of items using it
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// ShareInput is the payload for mailing an item to someone
type ShareInput struct {
	To   string `json:"to"`
	Note string `json:"note"`
}

// Mailer delivers a rendered message
type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// Service implements the item operations
type Service struct {
	repo   *Repository
	source metadata.Source
	mailer Mailer
}

// NewService creates an item service. source and mailer may be nil, in which
// case enrichment and sharing are unavailable.
func NewService(db database.Querier, source metadata.Source, mailer Mailer) *Service {
	return &Service{
		repo:   NewRepository(db),
		source: source,
		mailer: mailer,
	}
}

// Create saves a link for the user. Metadata is fetched inline; a failed
// fetch still saves the item with status unavailable so the backfill job
// can retry it later.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*Item, error) {
	u, err := metadata.ParseURL(strings.TrimSpace(in.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	if len(in.Notes) > maxNotesLength {
		return nil, fmt.Errorf("%w: notes are too long", ErrInvalidInput)
	}

	item := &Item{
		ID:             uuid.New(),
		UserID:         userID,
		URL:            u.String(),
		Title:          strings.TrimSpace(in.Title),
		MetadataStatus: metadata.StatusPending,
		Tags:           tags,
		Notes:          in.Notes,
	}

	if s.source != nil {
		res := s.source.Fetch(ctx, item.URL)
		item.MetadataAttempts = 1
		item.MetadataStatus = res.Status
		if res.Status == metadata.StatusOK {
			if item.Title == "" {
				item.Title = res.Metadata.Title
			}
			item.Description = res.Metadata.Description
			item.Image = res.Metadata.Image
		} else {
			log.Debug().Err(res.Err).Str("url", item.URL).Msg("Metadata unavailable, item saved without it")
		}
	}

	return s.repo.Insert(ctx, item)
}

// Get returns one of the user's items
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Item, error) {
	return s.repo.Get(ctx, userID, id)
}

// List returns the user's items matching f
func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Item, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))
	f.Query = strings.TrimSpace(f.Query)

	return s.repo.List(ctx, userID, f)
}

// Update changes title, notes or tags of an item
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*Item, error) {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
	}
	if in.Notes != nil && len(*in.Notes) > maxNotesLength {
		return nil, fmt.Errorf("%w: notes are too long", ErrInvalidInput)
	}
	if in.Tags != nil {
		tags, err := NormalizeTags(*in.Tags)
		if err != nil {
			return nil, err
		}
		in.Tags = &tags
	}

	return s.repo.Update(ctx, userID, id, in)
}

// Delete removes an item
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}

// Tags lists the user's tags with counts
func (s *Service) Tags(ctx context.Context, userID uuid.UUID) ([]TagCount, error) {
	tags, err := s.repo.Tags(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []TagCount{}
	}
	return tags, nil
}

// Refresh re-fetches metadata for an item on demand
func (s *Service) Refresh(ctx context.Context, userID, id uuid.UUID) (*Item, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: metadata fetching is disabled", ErrInvalidInput)
	}

	item, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	return s.repo.SaveMetadata(ctx, item.ID, s.source.Fetch(ctx, item.URL))
}

// Backfill retries enrichment for up to limit items that have not been
// enriched yet. It returns how many items were attempted and how many
// now have metadata. A cancelled context stops the run between items.
func (s *Service) Backfill(ctx context.Context, limit, maxAttempts int) (attempted, enriched int, err error) {
	if s.source == nil {
		return 0, 0, nil
	}

	items, err := s.repo.PendingMetadata(ctx, maxAttempts, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return attempted, enriched, ctx.Err()
		}

		res := s.source.Fetch(ctx, item.URL)
		attempted++

		updated, err := s.repo.SaveMetadata(ctx, item.ID, res)
		if err != nil {
			log.Warn().Err(err).Str("item_id", item.ID.String()).Msg("Failed to save backfilled metadata")
			continue
		}
		if updated.MetadataStatus == metadata.StatusOK {
			enriched++
		}
	}

	return attempted, enriched, nil
}

// Share mails an item to another address on behalf of senderName
func (s *Service) Share(ctx context.Context, userID, id uuid.UUID, senderName string, in ShareInput) error {
	to := strings.TrimSpace(in.To)
	if to == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if s.mailer == nil {
		return fmt.Errorf("%w: sharing is disabled", ErrInvalidInput)
	}

	item, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	msg, err := email.ShareMessage(to, email.ShareData{
		SenderName:  senderName,
		Title:       item.Title,
		URL:         item.URL,
		Description: item.Description,
		Image:       item.Image,
		Note:        in.Note,
	})
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, email.ErrInvalidMessage) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return err
	}
	return nil
}
