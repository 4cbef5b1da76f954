package search

import (
	"context"
	"strings"
)

// Scan matches query terms against every profile the loader returns. It
// backs the in-memory store where no index exists.
type Scan struct {
	load Loader
}

func NewScan(load Loader) *Scan {
	return &Scan{load: load}
}

func (s *Scan) Healthy() bool {
	return true
}

func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}
	records, err := s.load(ctx)
	if err != nil {
		return nil, 0, err
	}

	var matched []Result
	for _, rec := range records {
		if q.Theme != "" && rec.Theme != q.Theme {
			continue
		}
		haystack := strings.ToLower(rec.Slug + " " + rec.DisplayName + " " + rec.Bio)
		if !containsAll(haystack, terms) {
			continue
		}
		matched = append(matched, Result{
			Slug:        rec.Slug,
			DisplayName: rec.DisplayName,
			Bio:         rec.Bio,
			AvatarURL:   rec.AvatarURL,
			Snippet:     rec.Bio,
		})
	}

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	end := offset + normalizeLimit(q.Limit)
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func containsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
