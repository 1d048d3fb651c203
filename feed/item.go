package feed

import "time"

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaRef points at an image or video attached to an item.
type MediaRef struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// NormalizedItem is a feed entry after HTML cleanup and whitespace
// normalization. It is immutable once produced: the pipeline only reads it.
type NormalizedItem struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	Language    string     `json:"language"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Link        string     `json:"link"`
	PublishedAt time.Time  `json:"published_at"`
	Media       []MediaRef `json:"media,omitempty"`
}
