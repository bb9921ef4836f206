package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkeye/canvas-presence/internal/domain"
)

const uniqueViolation = "23505"

// PostgresStore reads workspace, diagram and thread rows owned by the main
// application and writes chat messages. The (user_id, client_message_id)
// unique index backs send idempotency.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) WorkspaceMembership(ctx context.Context, workspaceID string, uid domain.UserID) (domain.Membership, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM workspace_members WHERE workspace_id=$1 AND user_id=$2`,
		workspaceID, string(uid)).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Membership{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("read membership: %w", err)
	}
	return domain.Membership{WorkspaceID: workspaceID, UserID: uid, Role: domain.NormalizeRole(role)}, nil
}

func (s *PostgresStore) Diagram(ctx context.Context, diagramID string) (domain.Diagram, error) {
	d := domain.Diagram{ID: diagramID}
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id FROM diagrams WHERE id=$1`, diagramID).Scan(&d.WorkspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Diagram{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Diagram{}, fmt.Errorf("read diagram: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Thread(ctx context.Context, threadID string) (domain.Thread, error) {
	t := domain.Thread{ID: threadID}
	var diagramID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id, diagram_id FROM chat_threads WHERE id=$1`, threadID).Scan(&t.WorkspaceID, &diagramID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Thread{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Thread{}, fmt.Errorf("read thread: %w", err)
	}
	t.DiagramID = diagramID.String
	return t, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg domain.NewMessage) (domain.Message, error) {
	out := domain.Message{
		ThreadID:        msg.ThreadID,
		UserID:          msg.UserID,
		Content:         msg.Content,
		ClientMessageID: msg.ClientMessageID,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (thread_id, user_id, content, client_message_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, msg.ThreadID, string(msg.UserID), msg.Content, msg.ClientMessageID).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Message{}, domain.ErrDuplicateMessage
		}
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MessageByClientID(ctx context.Context, uid domain.UserID, clientMessageID string) (domain.Message, error) {
	m := domain.Message{UserID: uid, ClientMessageID: clientMessageID}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, content, created_at FROM chat_messages
		WHERE user_id=$1 AND client_message_id=$2
	`, string(uid), clientMessageID).Scan(&m.ID, &m.ThreadID, &m.Content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("read message: %w", err)
	}
	return m, nil
}
