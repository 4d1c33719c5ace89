package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
)

// voteTable returns the table and item column holding votes for kind.
func voteTable(kind model.ContentKind) (table, column string, err error) {
	switch kind {
	case model.KindQuestion:
		return "question_votes", "question_id", nil
	case model.KindAnswer:
		return "answer_votes", "answer_id", nil
	default:
		return "", "", apperror.ValidationFailed("type", fmt.Sprintf("unknown content type %q", kind))
	}
}

func (db *DB) GetVote(ctx context.Context, kind model.ContentKind, contentID, userID string) (model.VoteDirection, error) {
	table, column, err := voteTable(kind)
	if err != nil {
		return model.VoteNone, err
	}

	var dir int
	err = db.q.QueryRowContext(ctx,
		`SELECT direction FROM `+table+` WHERE `+column+` = ? AND user_id = ?`,
		contentID, userID,
	).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return model.VoteNone, nil
	}
	if err != nil {
		return model.VoteNone, fmt.Errorf("sqlite: reading %s vote of %s on %s: %w", kind, userID, contentID, err)
	}
	return model.VoteDirection(dir), nil
}

// SetVote upserts the single (item, user) row. Because the row is keyed on
// the pair, switching direction replaces the old vote instead of adding one.
func (db *DB) SetVote(ctx context.Context, kind model.ContentKind, contentID, userID string, dir model.VoteDirection) error {
	table, column, err := voteTable(kind)
	if err != nil {
		return err
	}

	if dir == model.VoteNone {
		if _, err := db.q.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE `+column+` = ? AND user_id = ?`,
			contentID, userID,
		); err != nil {
			return fmt.Errorf("sqlite: removing %s vote of %s on %s: %w", kind, userID, contentID, err)
		}
		return nil
	}

	_, err = db.q.ExecContext(ctx,
		`INSERT INTO `+table+` (`+column+`, user_id, direction) VALUES (?, ?, ?)
		 ON CONFLICT(`+column+`, user_id) DO UPDATE SET direction = excluded.direction`,
		contentID, userID, int(dir),
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording %s vote of %s on %s: %w", kind, userID, contentID, err)
	}
	return nil
}

func (db *DB) CountVotes(ctx context.Context, kind model.ContentKind, contentID string) (up, down int, err error) {
	table, column, err := voteTable(kind)
	if err != nil {
		return 0, 0, err
	}

	err = db.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(direction = 1), 0), COALESCE(SUM(direction = -1), 0)
		 FROM `+table+` WHERE `+column+` = ?`,
		contentID,
	).Scan(&up, &down)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: counting votes on %s %s: %w", kind, contentID, err)
	}
	return up, down, nil
}

// DeleteVotesByUser removes every vote the user cast, on questions and answers.
func (db *DB) DeleteVotesByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	for _, table := range []string{"question_votes", "answer_votes"} {
		res, err := db.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID)
		if err != nil {
			return total, fmt.Errorf("sqlite: deleting %s of %s: %w", table, userID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("sqlite: reading rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// voters returns the ids of the users in the up and down vote sets of an
// item, in voting order.
func (db *DB) voters(ctx context.Context, kind model.ContentKind, contentID string) (up, down []string, err error) {
	table, column, err := voteTable(kind)
	if err != nil {
		return nil, nil, err
	}

	rows, err := db.q.QueryContext(ctx,
		`SELECT user_id, direction FROM `+table+` WHERE `+column+` = ? ORDER BY rowid`,
		contentID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: loading voters of %s %s: %w", kind, contentID, err)
	}
	defer rows.Close()

	up, down = []string{}, []string{}
	for rows.Next() {
		var (
			userID string
			dir    int
		)
		if err := rows.Scan(&userID, &dir); err != nil {
			return nil, nil, fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		if model.VoteDirection(dir) == model.VoteUp {
			up = append(up, userID)
		} else {
			down = append(down, userID)
		}
	}
	return up, down, rows.Err()
}
