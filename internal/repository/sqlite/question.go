package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

const questionColumns = `q.id, q.author_id, q.title, q.content, q.views, q.created_at`

func scanQuestion(row rowScanner) (*model.Question, error) {
	var (
		q         model.Question
		authorID  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&q.ID, &authorID, &q.Title, &q.Content, &q.Views, &createdAt); err != nil {
		return nil, err
	}
	q.AuthorID = authorID.String
	q.CreatedAt = fromUnix(createdAt)
	return &q, nil
}

// CreateQuestion inserts the question and links its tags. Tags must already
// exist (see UpsertTag).
func (db *DB) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.ID == "" {
		q.ID = xid.New().String()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO questions (id, author_id, title, content, views, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, nullString(q.AuthorID), q.Title, q.Content, q.Views, toUnix(q.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting question: %w", err)
	}

	for _, tag := range q.Tags {
		if _, err := db.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO question_tags (question_id, tag_id) VALUES (?, ?)`,
			q.ID, tag.ID,
		); err != nil {
			return fmt.Errorf("sqlite: tagging question %s with %s: %w", q.ID, tag.Name, err)
		}
	}

	return nil
}

// GetQuestionByID loads a question together with its tags, vote sets and
// ordered answer ids.
func (db *DB) GetQuestionByID(ctx context.Context, id string) (*model.Question, error) {
	row := db.q.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE q.id = ?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("question", id)
		}
		return nil, fmt.Errorf("sqlite: getting question %s: %w", id, err)
	}

	if err := db.loadQuestionRelations(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (db *DB) loadQuestionRelations(ctx context.Context, q *model.Question) error {
	tags, err := db.questionTags(ctx, q.ID)
	if err != nil {
		return err
	}
	q.Tags = tags

	q.Upvotes, q.Downvotes, err = db.voters(ctx, model.KindQuestion, q.ID)
	if err != nil {
		return err
	}

	q.Answers, err = db.collectIDs(ctx,
		`SELECT id FROM answers WHERE question_id = ? ORDER BY created_at, rowid`, q.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading answers of question %s: %w", q.ID, err)
	}
	return nil
}

func (db *DB) questionTags(ctx context.Context, questionID string) ([]model.Tag, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT t.id, t.name FROM tags t
		 JOIN question_tags qt ON qt.tag_id = t.id
		 WHERE qt.question_id = ? ORDER BY t.name`, questionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tags of question %s: %w", questionID, err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// collectIDs runs a single-column query and returns the values (never nil).
func (db *DB) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) IncrementViews(ctx context.Context, id string) error {
	res, err := db.q.ExecContext(ctx, `UPDATE questions SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing views of question %s: %w", id, err)
	}
	return mustAffect(res, "question", id)
}

// ListQuestionsByAuthor pages through a user's questions, newest first.
func (db *DB) ListQuestionsByAuthor(ctx context.Context, authorID string, opts repository.ListOptions) ([]model.Question, int, error) {
	var total int
	if err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE author_id = ?`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting questions of %s: %w", authorID, err)
	}

	limit, offset := limitOffset(opts)
	questions, err := db.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions q WHERE q.author_id = ?
		 ORDER BY q.created_at DESC, q.views DESC, q.rowid DESC LIMIT ? OFFSET ?`,
		authorID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return questions, total, nil
}

// queryQuestions scans every row first and only then loads relations, so the
// single in-memory connection is never asked to run two queries at once.
func (db *DB) queryQuestions(ctx context.Context, query string, args ...any) ([]model.Question, error) {
	rows, err := db.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions: %w", err)
	}

	questions := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning question row: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating question rows: %w", err)
	}
	rows.Close()

	for i := range questions {
		if err := db.loadQuestionRelations(ctx, &questions[i]); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

// DeleteQuestionsByAuthor deletes a user's questions. Answers, votes, tag
// links, saves and interactions referencing them go with them through
// ON DELETE CASCADE.
func (db *DB) DeleteQuestionsByAuthor(ctx context.Context, authorID string) (int64, error) {
	res, err := db.q.ExecContext(ctx, `DELETE FROM questions WHERE author_id = ?`, authorID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting questions of %s: %w", authorID, err)
	}
	return res.RowsAffected()
}
