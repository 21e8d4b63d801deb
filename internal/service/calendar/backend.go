// Package calendar creates and lists events, either in Google Calendar or in
// the local simulated store.
package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	"assistanthub/internal/models"
)

const (
	StatusConfirmed = "confirmed"
	defaultDuration = time.Hour
	defaultLimit    = 10
	maxLimit        = 50
)

// ErrInvalidEvent is returned for input that cannot become an event.
var ErrInvalidEvent = errors.New("invalid event")

// EventInput describes an event to create.
type EventInput struct {
	Email        string
	Title        string
	Description  string
	Start        time.Time
	Duration     time.Duration
	Participants []string
}

// Backend is implemented by the Google Calendar client and the simulated store.
type Backend interface {
	CreateEvent(ctx context.Context, in EventInput) (*models.CalendarEvent, error)
	ListEvents(ctx context.Context, email string, from time.Time, limit int) ([]*models.CalendarEvent, error)
}

// Normalize fills defaults: tomorrow at 10:00 for a missing start and one
// hour for a missing duration.
func (in EventInput) Normalize(now time.Time) (EventInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, errors.Join(ErrInvalidEvent, errors.New("title is required"))
	}
	if in.Start.IsZero() {
		d := now.AddDate(0, 0, 1)
		in.Start = time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, now.Location())
	}
	if in.Duration <= 0 {
		in.Duration = defaultDuration
	}
	var participants []string
	for _, p := range in.Participants {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}
	in.Participants = participants
	return in, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

type backendKey struct{}

// WithBackend attaches the backend resolved for the current request.
func WithBackend(ctx context.Context, b Backend) context.Context {
	return context.WithValue(ctx, backendKey{}, b)
}

// BackendFromContext returns the backend set by WithBackend.
func BackendFromContext(ctx context.Context) (Backend, bool) {
	b, ok := ctx.Value(backendKey{}).(Backend)
	return b, ok && b != nil
}
