package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// pageStore is the part of the store the profile API depends on. Both
// implementations run the same checks below.
type pageStore interface {
	CreateUser(ctx context.Context, user User) error
	GetProfileByUser(ctx context.Context, userID string) (Profile, error)
	GetProfileBySlug(ctx context.Context, slug string) (Profile, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateProfile(ctx context.Context, profile Profile) (Profile, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (Profile, error)
	ListItems(ctx context.Context, profileID string) ([]Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	DeleteItem(ctx context.Context, profileID, itemID string) (bool, error)
	RepositionItems(ctx context.Context, profileID string, placements []Placement) (int, error)
}

func seedProfile(t *testing.T, ctx context.Context, s pageStore, slug string) Profile {
	t.Helper()
	userID := "usr_" + uuid.NewString()
	if err := s.CreateUser(ctx, User{ID: userID, DisplayName: slug, Email: slug + "@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	profile, err := s.CreateProfile(ctx, Profile{UserID: userID, Slug: slug, Theme: "minimal"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return profile
}

func runPageStoreContract(t *testing.T, s pageStore, prefix string) {
	ctx := context.Background()

	t.Run("profile uniqueness", func(t *testing.T) {
		profile := seedProfile(t, ctx, s, prefix+"-unique")

		if _, err := s.CreateProfile(ctx, Profile{UserID: profile.UserID, Slug: prefix + "-other", Theme: "minimal"}); !errors.Is(err, ErrProfileExists) {
			t.Fatalf("expected ErrProfileExists, got %v", err)
		}

		otherUser := "usr_" + uuid.NewString()
		if err := s.CreateUser(ctx, User{ID: otherUser, DisplayName: "x", Email: otherUser + "@example.com"}); err != nil {
			t.Fatalf("create user: %v", err)
		}
		if _, err := s.CreateProfile(ctx, Profile{UserID: otherUser, Slug: profile.Slug, Theme: "minimal"}); !errors.Is(err, ErrSlugTaken) {
			t.Fatalf("expected ErrSlugTaken, got %v", err)
		}

		exists, err := s.SlugExists(ctx, profile.Slug)
		if err != nil || !exists {
			t.Fatalf("expected slug to exist, got %v %v", exists, err)
		}
		bySlug, err := s.GetProfileBySlug(ctx, profile.Slug)
		if err != nil || bySlug.ID != profile.ID {
			t.Fatalf("expected profile by slug, got %+v %v", bySlug, err)
		}
	})

	t.Run("update keeps slug", func(t *testing.T) {
		profile := seedProfile(t, ctx, s, prefix+"-update")
		updated, err := s.UpdateProfile(ctx, profile.UserID, ProfileUpdate{DisplayName: "Cole", Bio: "hi", Theme: "dark"})
		if err != nil {
			t.Fatalf("update profile: %v", err)
		}
		if updated.Slug != profile.Slug || updated.DisplayName != "Cole" || updated.Theme != "dark" {
			t.Fatalf("unexpected update result %+v", updated)
		}
		if _, err := s.UpdateProfile(ctx, "usr_missing", ProfileUpdate{Theme: "dark"}); !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected sql.ErrNoRows, got %v", err)
		}
		if _, err := s.GetProfileByUser(ctx, "usr_missing"); !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected sql.ErrNoRows, got %v", err)
		}
	})

	t.Run("items append after last position", func(t *testing.T) {
		profile := seedProfile(t, ctx, s, prefix+"-append")
		for i, title := range []string{"A", "B", "C"} {
			item, err := s.CreateItem(ctx, Item{ProfileID: profile.ID, Kind: "header", Title: title})
			if err != nil {
				t.Fatalf("create item: %v", err)
			}
			if item.Position != i {
				t.Fatalf("expected position %d, got %d", i, item.Position)
			}
		}
		items, err := s.ListItems(ctx, profile.ID)
		if err != nil {
			t.Fatalf("list items: %v", err)
		}
		if len(items) != 3 || items[0].Title != "A" || items[2].Title != "C" {
			t.Fatalf("unexpected items %+v", items)
		}

		// Sparse positions: the next item goes after the maximum.
		if _, err := s.RepositionItems(ctx, profile.ID, []Placement{{ID: items[2].ID, Position: 9}}); err != nil {
			t.Fatalf("reposition: %v", err)
		}
		next, err := s.CreateItem(ctx, Item{ProfileID: profile.ID, Kind: "divider"})
		if err != nil {
			t.Fatalf("create item: %v", err)
		}
		if next.Position != 10 {
			t.Fatalf("expected position 10, got %d", next.Position)
		}
	})

	t.Run("delete and reposition are owner scoped", func(t *testing.T) {
		mine := seedProfile(t, ctx, s, prefix+"-mine")
		theirs := seedProfile(t, ctx, s, prefix+"-theirs")

		a, _ := s.CreateItem(ctx, Item{ProfileID: mine.ID, Kind: "header", Title: "A"})
		b, _ := s.CreateItem(ctx, Item{ProfileID: mine.ID, Kind: "header", Title: "B"})
		foreign, _ := s.CreateItem(ctx, Item{ProfileID: theirs.ID, Kind: "header", Title: "F"})

		removed, err := s.DeleteItem(ctx, mine.ID, foreign.ID)
		if err != nil || removed {
			t.Fatalf("expected foreign delete to be a no-op, got %v %v", removed, err)
		}

		updated, err := s.RepositionItems(ctx, mine.ID, []Placement{
			{ID: b.ID, Position: 0},
			{ID: a.ID, Position: 1},
			{ID: foreign.ID, Position: 5},
			{ID: uuid.NewString(), Position: 6},
		})
		if err != nil {
			t.Fatalf("reposition: %v", err)
		}
		if updated != 2 {
			t.Fatalf("expected 2 updated rows, got %d", updated)
		}

		items, _ := s.ListItems(ctx, mine.ID)
		if len(items) != 2 || items[0].ID != b.ID || items[1].ID != a.ID {
			t.Fatalf("unexpected order %+v", items)
		}
		theirItems, _ := s.ListItems(ctx, theirs.ID)
		if len(theirItems) != 1 || theirItems[0].Position != 0 {
			t.Fatalf("foreign item changed: %+v", theirItems)
		}

		removed, err = s.DeleteItem(ctx, mine.ID, a.ID)
		if err != nil || !removed {
			t.Fatalf("expected delete, got %v %v", removed, err)
		}
		removed, err = s.DeleteItem(ctx, mine.ID, a.ID)
		if err != nil || removed {
			t.Fatalf("expected second delete to report false, got %v %v", removed, err)
		}
	})
}
