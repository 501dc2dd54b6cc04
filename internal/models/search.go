package models

// SearchResult is one ranked web result.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// SearchResultSet is the payload returned for a related-articles query.
// A nil *SearchResultSet means the search was unavailable.
type SearchResultSet struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results"`
}
