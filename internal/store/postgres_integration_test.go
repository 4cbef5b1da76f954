package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("LINKPAGE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LINKPAGE_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestPostgresStorePageContract(t *testing.T) {
	s := openTestStore(t)
	runPageStoreContract(t, s, "pg-"+uuid.NewString()[:8])
}

func TestPostgresStoreCascadesItemsWithProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	profile := seedProfile(t, ctx, s, "pg-cascade-"+uuid.NewString()[:8])
	item, err := s.CreateItem(ctx, Item{ProfileID: profile.ID, Kind: "link", Title: "Site", URL: "https://ex.com"})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO click_events (item_id, referrer) VALUES ($1, 'test')`, item.ID); err != nil {
		t.Fatalf("insert click event: %v", err)
	}

	if _, err := s.DB().ExecContext(ctx, `DELETE FROM users WHERE id=$1`, profile.UserID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	var remaining int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM link_items WHERE id=$1`, item.ID).Scan(&remaining); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected item to be deleted with its profile, found %d", remaining)
	}
}
