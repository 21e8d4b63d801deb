package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"assistanthub/internal/models"
)

const maxSessionIDLength = 255

// ErrInvalidSession is returned for a missing or oversized session_id.
var ErrInvalidSession = errors.New("invalid session_id")

func validSession(kind, sessionID string) error {
	if !Known(kind) {
		return fmt.Errorf("%s: %w", kind, ErrUnknownAssistant)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidSession)
	}
	if len(sessionID) > maxSessionIDLength {
		return fmt.Errorf("%w: session_id is too long", ErrInvalidSession)
	}
	return nil
}

// recordExchange stores the user query and the reply as one transaction.
func (s *Service) recordExchange(ctx context.Context, kind, sessionID, query, reply string) error {
	if s.db == nil {
		return nil
	}
	if err := validSession(kind, sessionID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for i, m := range []struct {
		role    models.Role
		content string
	}{
		{models.RoleUser, query},
		{models.RoleAssistant, reply},
	} {
		// keep insertion order stable when both rows share a timestamp
		created := now.Add(time.Duration(i) * time.Microsecond)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (assistant, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			kind, sessionID, m.role, m.content, created,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exchange: %w", err)
	}
	return nil
}

// History returns the recorded messages of one assistant session, oldest first.
func (s *Service) History(ctx context.Context, kind, sessionID string) ([]*models.Message, error) {
	if err := validSession(kind, sessionID); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assistant, session_id, role, content, created_at FROM messages
		 WHERE assistant = ? AND session_id = ? ORDER BY created_at ASC, id ASC`,
		kind, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.Assistant, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ClearHistory removes one assistant session and reports how many messages were deleted.
func (s *Service) ClearHistory(ctx context.Context, kind, sessionID string) (int64, error) {
	if err := validSession(kind, sessionID); err != nil {
		return 0, err
	}
	if s.db == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE assistant = ? AND session_id = ?`, kind, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.RowsAffected()
}
