package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

func (db *DB) IsQuestionSaved(ctx context.Context, userID, questionID string) (bool, error) {
	var saved bool
	err := db.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM saved_questions WHERE user_id = ? AND question_id = ?)`,
		userID, questionID,
	).Scan(&saved)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking saved question %s for %s: %w", questionID, userID, err)
	}
	return saved, nil
}

// SaveQuestion is idempotent: saving twice leaves one entry.
func (db *DB) SaveQuestion(ctx context.Context, userID, questionID string) error {
	_, err := db.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO saved_questions (user_id, question_id, saved_at) VALUES (?, ?, ?)`,
		userID, questionID, toUnix(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving question %s for %s: %w", questionID, userID, err)
	}
	return nil
}

func (db *DB) UnsaveQuestion(ctx context.Context, userID, questionID string) error {
	_, err := db.q.ExecContext(ctx,
		`DELETE FROM saved_questions WHERE user_id = ? AND question_id = ?`,
		userID, questionID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unsaving question %s for %s: %w", questionID, userID, err)
	}
	return nil
}

// ListSavedQuestions pages through a user's saved questions. The default
// order is most recently saved first.
func (db *DB) ListSavedQuestions(ctx context.Context, userID string, sq repository.SavedQuery) ([]model.Question, int, error) {
	where := `s.user_id = ?`
	args := []any{userID}
	if sq.Search != "" {
		where += ` AND q.title LIKE ? ESCAPE '\'`
		args = append(args, likePattern(sq.Search))
	}

	var total int
	if err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saved_questions s JOIN questions q ON q.id = s.question_id WHERE `+where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting saved questions of %s: %w", userID, err)
	}

	order := "s.saved_at DESC, s.rowid DESC"
	switch sq.Sort {
	case repository.QuestionSortRecent:
		order = "q.created_at DESC, q.rowid DESC"
	case repository.QuestionSortOldest:
		order = "q.created_at ASC, q.rowid ASC"
	case repository.QuestionSortMostVoted:
		order = "(SELECT COUNT(*) FROM question_votes v WHERE v.question_id = q.id AND v.direction = 1) DESC, q.created_at DESC"
	case repository.QuestionSortMostViewed:
		order = "q.views DESC, q.created_at DESC"
	case repository.QuestionSortMostAnswered:
		order = "(SELECT COUNT(*) FROM answers a WHERE a.question_id = q.id) DESC, q.created_at DESC"
	}

	limit, offset := limitOffset(sq.ListOptions)
	questions, err := db.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM saved_questions s
		 JOIN questions q ON q.id = s.question_id
		 WHERE `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	return questions, total, nil
}

// DeleteSavedByUser removes the user's own saved-question entries.
func (db *DB) DeleteSavedByUser(ctx context.Context, userID string) (int64, error) {
	res, err := db.q.ExecContext(ctx, `DELETE FROM saved_questions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting saved questions of %s: %w", userID, err)
	}
	return res.RowsAffected()
}
