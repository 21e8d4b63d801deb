package models

import "time"

// CalendarEvent is an event created or listed through a calendar backend.
type CalendarEvent struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Participants []string  `json:"participants,omitempty"`
	Status       string    `json:"status"`
	Link         string    `json:"link,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
