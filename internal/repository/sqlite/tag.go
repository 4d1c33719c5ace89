package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rotos-forum/internal/model"
)

func (db *DB) UpsertTag(ctx context.Context, name string) (*model.Tag, error) {
	if _, err := db.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (id, name, created_at) VALUES (?, ?, ?)`,
		xid.New().String(), name, toUnix(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("sqlite: inserting tag %q: %w", name, err)
	}

	var t model.Tag
	if err := db.q.QueryRowContext(ctx,
		`SELECT id, name FROM tags WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name); err != nil {
		return nil, fmt.Errorf("sqlite: reading tag %q: %w", name, err)
	}
	return &t, nil
}
