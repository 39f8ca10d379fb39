package models

// Result is one captured page. Status carries the HTTP status code, or one of
// the synthetic codes below when no response was produced.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Byline      string `json:"byline"`
	PublishedAt string `json:"published_at"`
	Text        string `json:"text"`
	TopImage    string `json:"top_image"`
	HTMLHash    string `json:"html_hash"`
	Status      int    `json:"status"`
	Paywalled   bool   `json:"paywalled,omitempty"`
	RenderMS    int    `json:"render_ms"`
}

const (
	// StatusTimeout marks a capture that hit its deadline.
	StatusTimeout = 598
	// StatusUnreachable marks a capture that failed before any HTTP response.
	StatusUnreachable = 599
)
