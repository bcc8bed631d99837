package models

// NewsUpdateType discriminates news payloads from grid snapshots.
const NewsUpdateType = "news-update"

// Headline is one article returned by the news feed.
type Headline struct {
	UUID           string   `json:"uuid"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Snippet        string   `json:"snippet"`
	URL            string   `json:"url"`
	ImageURL       string   `json:"image_url"`
	Language       string   `json:"language"`
	PublishedAt    string   `json:"published_at"`
	Source         string   `json:"source"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// NewsUpdate is the wire payload broadcast after each successful fetch.
type NewsUpdate struct {
	Type    string     `json:"type"`
	Payload []Headline `json:"payload"`
}

// NewNewsUpdate wraps headlines in a news-update payload.
func NewNewsUpdate(h []Headline) NewsUpdate {
	if h == nil {
		h = []Headline{}
	}
	return NewsUpdate{Type: NewsUpdateType, Payload: h}
}
