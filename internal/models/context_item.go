package models

// ContextItem is one retrieved history entry built from vector-search match metadata.
// Link holds the video link for YouTube entries and the domain for Chrome entries.
type ContextItem struct {
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
	Link      string `json:"link"`
}
