package search

import "context"

// Result is a single profile hit returned to the caller.
type Result struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatarUrl"`
	Snippet     string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Theme  string // empty = all themes
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a profile directory search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ProfileRecord is the data we index for a profile.
type ProfileRecord struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatarUrl"`
	Theme       string `json:"theme"`
}

// Loader returns every indexable profile.
type Loader func(ctx context.Context) ([]ProfileRecord, error)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
