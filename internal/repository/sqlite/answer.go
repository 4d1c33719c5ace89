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

const answerColumns = `a.id, a.author_id, a.question_id, a.content, a.created_at`

func scanAnswer(row rowScanner) (*model.Answer, error) {
	var (
		a         model.Answer
		authorID  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&a.ID, &authorID, &a.QuestionID, &a.Content, &createdAt); err != nil {
		return nil, err
	}
	a.AuthorID = authorID.String
	a.CreatedAt = fromUnix(createdAt)
	return &a, nil
}

// CreateAnswer inserts an answer. Its position in the question's answer list
// is its creation order.
func (db *DB) CreateAnswer(ctx context.Context, a *model.Answer) error {
	if a.ID == "" {
		a.ID = xid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO answers (id, author_id, question_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, nullString(a.AuthorID), a.QuestionID, a.Content, toUnix(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting answer to question %s: %w", a.QuestionID, err)
	}
	return nil
}

func (db *DB) GetAnswerByID(ctx context.Context, id string) (*model.Answer, error) {
	row := db.q.QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM answers a WHERE a.id = ?`, id)
	a, err := scanAnswer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("answer", id)
		}
		return nil, fmt.Errorf("sqlite: getting answer %s: %w", id, err)
	}

	a.Upvotes, a.Downvotes, err = db.voters(ctx, model.KindAnswer, a.ID)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnswers pages through the answers to one question.
func (db *DB) ListAnswers(ctx context.Context, questionID string, sort repository.AnswerSort, opts repository.ListOptions) ([]model.Answer, int, error) {
	var total int
	if err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers WHERE question_id = ?`, questionID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting answers of question %s: %w", questionID, err)
	}

	const upvotes = `(SELECT COUNT(*) FROM answer_votes v WHERE v.answer_id = a.id AND v.direction = 1)`
	order := "a.created_at, a.rowid"
	switch sort {
	case repository.AnswerSortHighestUpvotes:
		order = upvotes + " DESC, a.created_at"
	case repository.AnswerSortLowestUpvotes:
		order = upvotes + " ASC, a.created_at"
	case repository.AnswerSortRecent:
		order = "a.created_at DESC, a.rowid DESC"
	case repository.AnswerSortOld:
		order = "a.created_at ASC, a.rowid ASC"
	}

	limit, offset := limitOffset(opts)
	answers, err := db.queryAnswers(ctx,
		`SELECT `+answerColumns+` FROM answers a WHERE a.question_id = ?
		 ORDER BY `+order+` LIMIT ? OFFSET ?`,
		questionID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return answers, total, nil
}

// ListAnswersByAuthor pages through a user's answers, newest first.
func (db *DB) ListAnswersByAuthor(ctx context.Context, authorID string, opts repository.ListOptions) ([]model.Answer, int, error) {
	var total int
	if err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers WHERE author_id = ?`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting answers of %s: %w", authorID, err)
	}

	limit, offset := limitOffset(opts)
	answers, err := db.queryAnswers(ctx,
		`SELECT `+answerColumns+` FROM answers a WHERE a.author_id = ?
		 ORDER BY a.created_at DESC, a.rowid DESC LIMIT ? OFFSET ?`,
		authorID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	return answers, total, nil
}

func (db *DB) queryAnswers(ctx context.Context, query string, args ...any) ([]model.Answer, error) {
	rows, err := db.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing answers: %w", err)
	}

	answers := []model.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning answer row: %w", err)
		}
		answers = append(answers, *a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating answer rows: %w", err)
	}
	rows.Close()

	for i := range answers {
		answers[i].Upvotes, answers[i].Downvotes, err = db.voters(ctx, model.KindAnswer, answers[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return answers, nil
}

// DeleteAnswer removes one answer; its votes and interaction entries cascade.
func (db *DB) DeleteAnswer(ctx context.Context, id string) error {
	res, err := db.q.ExecContext(ctx, `DELETE FROM answers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting answer %s: %w", id, err)
	}
	return mustAffect(res, "answer", id)
}

func (db *DB) DeleteAnswersByAuthor(ctx context.Context, authorID string) (int64, error) {
	res, err := db.q.ExecContext(ctx, `DELETE FROM answers WHERE author_id = ?`, authorID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting answers of %s: %w", authorID, err)
	}
	return res.RowsAffected()
}
