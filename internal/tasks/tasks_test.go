package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskCols = []string{"id", "user_id", "item_id", "title", "notes", "done", "due_at", "completed_at", "created_at", "updated_at"}

func newMock(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewService(mock), mock
}

func taskRow(id, userID uuid.UUID, title string, done bool, due, completed *time.Time) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(taskCols).AddRow(id, userID, (*uuid.UUID)(nil), title, "", done, due, completed, now, now)
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"trimmed", "  Read it  ", "Read it", false},
		{"empty", "", "", true},
		{"blank", " \t ", "", true},
		{"max length", strings.Repeat("ß", MaxTitleLength), strings.Repeat("ß", MaxTitleLength), false},
		{"too long", strings.Repeat("a", MaxTitleLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateTitle(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	due := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("creates", func(t *testing.T) {
		svc, mock := newMock(t)
		id := uuid.New()

		mock.ExpectQuery(`(?s)INSERT INTO action_items.*WHERE \$3::uuid IS NULL OR EXISTS`).
			WithArgs(pgxmock.AnyArg(), userID, (*uuid.UUID)(nil), "Write summary", "", &due).
			WillReturnRows(taskRow(id, userID, "Write summary", false, &due, nil))

		task, err := svc.Create(ctx, userID, Input{Title: " Write summary ", DueAt: &due})
		require.NoError(t, err)
		assert.Equal(t, id, task.ID)
		assert.False(t, task.Done)
		require.NotNil(t, task.DueAt)
		assert.True(t, due.Equal(*task.DueAt))
	})

	t.Run("missing title never reaches the store", func(t *testing.T) {
		svc, _ := newMock(t)
		_, err := svc.Create(ctx, userID, Input{Title: "   "})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("item owned by someone else", func(t *testing.T) {
		svc, mock := newMock(t)
		itemID := uuid.New()

		mock.ExpectQuery(`INSERT INTO action_items`).
			WithArgs(pgxmock.AnyArg(), userID, &itemID, "Follow up", "", (*time.Time)(nil)).
			WillReturnRows(pgxmock.NewRows(taskCols))

		_, err := svc.Create(ctx, userID, Input{Title: "Follow up", ItemID: &itemID})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("item deleted concurrently", func(t *testing.T) {
		svc, mock := newMock(t)
		itemID := uuid.New()

		mock.ExpectQuery(`INSERT INTO action_items`).
			WithArgs(pgxmock.AnyArg(), userID, &itemID, "Follow up", "", (*time.Time)(nil)).
			WillReturnError(&pgconn.PgError{Code: "23503"})

		_, err := svc.Create(ctx, userID, Input{Title: "Follow up", ItemID: &itemID})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("store error", func(t *testing.T) {
		svc, mock := newMock(t)
		cause := errors.New("connection reset")

		mock.ExpectQuery(`INSERT INTO action_items`).
			WithArgs(pgxmock.AnyArg(), userID, (*uuid.UUID)(nil), "x", "", (*time.Time)(nil)).
			WillReturnError(cause)

		_, err := svc.Create(ctx, userID, Input{Title: "x"})
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrInvalidInput)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	for _, includeDone := range []bool{false, true} {
		svc, mock := newMock(t)
		mock.ExpectQuery(`(?s)FROM action_items.*ORDER BY done, due_at NULLS LAST`).
			WithArgs(userID, includeDone).
			WillReturnRows(taskRow(uuid.New(), userID, "a", false, nil, nil))

		list, err := svc.List(ctx, userID, Filter{IncludeDone: includeDone})
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Nil(t, list[0].ItemID)
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	userID, id := uuid.New(), uuid.New()

	t.Run("clears due date", func(t *testing.T) {
		svc, mock := newMock(t)
		mock.ExpectQuery(`(?s)UPDATE action_items SET.*CASE WHEN \$6 THEN NULL`).
			WithArgs(id, userID, (*string)(nil), (*string)(nil), (*time.Time)(nil), true).
			WillReturnRows(taskRow(id, userID, "a", false, nil, nil))

		task, err := svc.Update(ctx, userID, id, UpdateInput{ClearDue: true})
		require.NoError(t, err)
		assert.Nil(t, task.DueAt)
	})

	t.Run("conflicting due fields", func(t *testing.T) {
		svc, _ := newMock(t)
		due := time.Now()
		_, err := svc.Update(ctx, userID, id, UpdateInput{DueAt: &due, ClearDue: true})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("blank title", func(t *testing.T) {
		svc, _ := newMock(t)
		blank := " "
		_, err := svc.Update(ctx, userID, id, UpdateInput{Title: &blank})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("not found", func(t *testing.T) {
		svc, mock := newMock(t)
		title := "b"
		mock.ExpectQuery(`UPDATE action_items`).
			WithArgs(id, userID, &title, (*string)(nil), (*time.Time)(nil), false).
			WillReturnRows(pgxmock.NewRows(taskCols))

		_, err := svc.Update(ctx, userID, id, UpdateInput{Title: &title})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_Complete(t *testing.T) {
	ctx := context.Background()
	userID, id := uuid.New(), uuid.New()

	t.Run("sets done and completion time", func(t *testing.T) {
		svc, mock := newMock(t)
		completed := time.Now()
		mock.ExpectQuery(`(?s)done = true.*COALESCE\(completed_at, now\(\)\)`).
			WithArgs(id, userID).
			WillReturnRows(taskRow(id, userID, "a", true, nil, &completed))

		task, err := svc.Complete(ctx, userID, id)
		require.NoError(t, err)
		assert.True(t, task.Done)
		require.NotNil(t, task.CompletedAt)
	})

	t.Run("not found", func(t *testing.T) {
		svc, mock := newMock(t)
		mock.ExpectQuery(`done = true`).WithArgs(id, userID).WillReturnRows(pgxmock.NewRows(taskCols))

		_, err := svc.Complete(ctx, userID, id)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	userID, id := uuid.New(), uuid.New()

	svc, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM action_items`).WithArgs(id, userID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM action_items`).WithArgs(id, userID).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.NoError(t, svc.Delete(ctx, userID, id))
	assert.ErrorIs(t, svc.Delete(ctx, userID, id), ErrNotFound)
}

func TestService_DueBefore(t *testing.T) {
	ctx := context.Background()
	svc, mock := newMock(t)

	cutoff := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	ada, bob := uuid.New(), uuid.New()

	mock.ExpectQuery(`(?s)JOIN users u.*LEFT JOIN items i.*a.due_at <= \$1`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "email", "name", "title", "due_at", "url"}).
			AddRow(uuid.New(), ada, "ada@example.com", "Ada", "Overdue", cutoff.Add(-48*time.Hour), "").
			AddRow(uuid.New(), ada, "ada@example.com", "Ada", "Today", cutoff.Add(-time.Hour), "https://go.dev").
			AddRow(uuid.New(), bob, "bob@example.com", "", "Tomorrow", cutoff, ""))

	due, err := svc.DueBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "Overdue", due[0].Title)
	assert.Equal(t, "https://go.dev", due[1].ItemURL)
	assert.Equal(t, bob, due[2].UserID)
}
