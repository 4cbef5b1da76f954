package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the profiles.fts column.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole API is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "fts @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	if q.Theme != "" {
		where += " AND theme = $2"
		args = append(args, q.Theme)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM profiles WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT slug, display_name, bio, avatar_url,
			ts_headline('simple', bio, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=20,StartSel=<mark>,StopSel=</mark>')
		FROM profiles
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('simple', $1)) DESC, slug ASC
		LIMIT %d OFFSET %d`, where, normalizeLimit(q.Limit), offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Slug, &r.DisplayName, &r.Bio, &r.AvatarURL, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
