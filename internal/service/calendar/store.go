package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"assistanthub/internal/models"
)

// Store is the simulated calendar kept in the local database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) CreateEvent(ctx context.Context, in EventInput) (*models.CalendarEvent, error) {
	now := s.now()
	in, err := in.Normalize(now)
	if err != nil {
		return nil, err
	}
	ev := &models.CalendarEvent{
		ID:           "event_" + uuid.NewString(),
		Email:        in.Email,
		Title:        in.Title,
		Description:  in.Description,
		Start:        in.Start.UTC(),
		End:          in.Start.Add(in.Duration).UTC(),
		Participants: in.Participants,
		Status:       StatusConfirmed,
		CreatedAt:    now.UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (id, email, title, description, start_at, end_at, participants, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Email, ev.Title, ev.Description, ev.Start, ev.End,
		strings.Join(ev.Participants, ","), ev.Status, ev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, email string, from time.Time, limit int) ([]*models.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, title, description, start_at, end_at, participants, status, created_at
		 FROM calendar_events WHERE email = ? AND start_at >= ? ORDER BY start_at ASC LIMIT ?`,
		email, from.UTC(), clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*models.CalendarEvent
	for rows.Next() {
		var (
			ev           models.CalendarEvent
			participants string
		)
		if err := rows.Scan(&ev.ID, &ev.Email, &ev.Title, &ev.Description, &ev.Start, &ev.End, &participants, &ev.Status, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if participants != "" {
			ev.Participants = strings.Split(participants, ",")
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
