package search

import (
	"context"
	"log"
)

// index is the write side of Meili, narrowed for tests.
type index interface {
	Searcher
	IndexProfile(rec ProfileRecord) error
	IndexProfiles(records []ProfileRecord) error
}

// Service tries Meilisearch first and falls back to the store-backed searcher.
type Service struct {
	primary  index
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	s := &Service{fallback: fallback}
	if meili != nil {
		s.primary = meili
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProfile pushes a profile to Meilisearch without waiting.
func (s *Service) IndexProfile(rec ProfileRecord) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	go func() {
		if err := s.primary.IndexProfile(rec); err != nil {
			log.Printf("search: index profile %s: %v", rec.ID, err)
		}
	}()
}

// Reindex loads every profile and pushes them to Meilisearch.
func (s *Service) Reindex(ctx context.Context, load Loader) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	records, err := load(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.primary.IndexProfiles(records); err != nil {
		log.Printf("search: reindex profiles: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
