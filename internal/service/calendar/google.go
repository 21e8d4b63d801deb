package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"assistanthub/internal/models"
)

const primaryCalendar = "primary"

// GoogleBackend talks to the user's primary Google calendar. The HTTP client
// must already carry the user's OAuth token.
type GoogleBackend struct {
	svc   *gcal.Service
	email string
	now   func() time.Time
}

func NewGoogleBackend(ctx context.Context, email string, client *http.Client, opts ...option.ClientOption) (*GoogleBackend, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return &GoogleBackend{svc: svc, email: email, now: time.Now}, nil
}

func (g *GoogleBackend) CreateEvent(ctx context.Context, in EventInput) (*models.CalendarEvent, error) {
	in, err := in.Normalize(g.now())
	if err != nil {
		return nil, err
	}
	ev := &gcal.Event{
		Summary:     in.Title,
		Description: in.Description,
		Start:       &gcal.EventDateTime{DateTime: in.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: in.Start.Add(in.Duration).Format(time.RFC3339)},
	}
	for _, p := range in.Participants {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: p})
	}
	created, err := g.svc.Events.Insert(primaryCalendar, ev).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert google event: %w", err)
	}
	return g.toModel(created), nil
}

func (g *GoogleBackend) ListEvents(ctx context.Context, email string, from time.Time, limit int) ([]*models.CalendarEvent, error) {
	res, err := g.svc.Events.List(primaryCalendar).
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(int64(clampLimit(limit))).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list google events: %w", err)
	}
	events := make([]*models.CalendarEvent, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, g.toModel(item))
	}
	return events, nil
}

func (g *GoogleBackend) toModel(e *gcal.Event) *models.CalendarEvent {
	ev := &models.CalendarEvent{
		ID:          e.Id,
		Email:       g.email,
		Title:       e.Summary,
		Description: e.Description,
		Start:       parseEventTime(e.Start),
		End:         parseEventTime(e.End),
		Status:      e.Status,
		Link:        e.HtmlLink,
	}
	if e.Created != "" {
		ev.CreatedAt, _ = time.Parse(time.RFC3339, e.Created)
	}
	for _, a := range e.Attendees {
		if a != nil && a.Email != "" {
			ev.Participants = append(ev.Participants, a.Email)
		}
	}
	return ev
}

// parseEventTime reads timed events and all-day events.
func parseEventTime(t *gcal.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if v, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return v
		}
	}
	if t.Date != "" {
		if v, err := time.Parse("2006-01-02", t.Date); err == nil {
			return v
		}
	}
	return time.Time{}
}
