package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/canvas-presence/internal/domain"
)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresWorkspaceMembership(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("SELECT role FROM workspace_members").
			WithArgs("ws1", "ann").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("superuser"))

		m, err := s.WorkspaceMembership(context.Background(), "ws1", "ann")
		require.NoError(t, err)
		assert.Equal(t, domain.RoleViewer, m.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("SELECT role FROM workspace_members").
			WithArgs("ws1", "bob").
			WillReturnError(sql.ErrNoRows)

		_, err := s.WorkspaceMembership(context.Background(), "ws1", "bob")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DriverError", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("SELECT role FROM workspace_members").
			WillReturnError(errors.New("connection reset"))

		_, err := s.WorkspaceMembership(context.Background(), "ws1", "bob")
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestPostgresThread(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT workspace_id, diagram_id FROM chat_threads").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_id", "diagram_id"}).AddRow("ws1", nil))

	th, err := s.Thread(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.Thread{ID: "t1", WorkspaceID: "ws1"}, th)
}

func TestPostgresCreateMessage(t *testing.T) {
	in := domain.NewMessage{ThreadID: "t1", UserID: "ann", Content: "hello", ClientMessageID: "c1"}

	t.Run("Success", func(t *testing.T) {
		s, mock := newMock(t)
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery("INSERT INTO chat_messages").
			WithArgs("t1", "ann", "hello", "c1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("m1", created))

		m, err := s.CreateMessage(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, created, m.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UniqueViolation", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("INSERT INTO chat_messages").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "chat_messages_user_client_key"})

		_, err := s.CreateMessage(context.Background(), in)
		assert.ErrorIs(t, err, domain.ErrDuplicateMessage)
	})

	t.Run("OtherPgError", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery("INSERT INTO chat_messages").
			WillReturnError(&pgconn.PgError{Code: "23503"})

		_, err := s.CreateMessage(context.Background(), in)
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrDuplicateMessage))
	})
}

func TestPostgresMessageByClientID(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, thread_id, content, created_at FROM chat_messages").
		WithArgs("ann", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "thread_id", "content", "created_at"}).AddRow("m1", "t1", "hello", created))

	m, err := s.MessageByClientID(context.Background(), "ann", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.Message{ID: "m1", ThreadID: "t1", UserID: "ann", Content: "hello", ClientMessageID: "c1", CreatedAt: created}, m)
}
