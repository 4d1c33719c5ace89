package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rotos-forum/internal/model"
)

// CreateInteraction appends to the activity log. Tag names are stored as a
// JSON array.
func (db *DB) CreateInteraction(ctx context.Context, in *model.Interaction) error {
	if in.ID == "" {
		in.ID = xid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}

	tags, err := json.Marshal(in.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding interaction tags: %w", err)
	}

	_, err = db.q.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, action, question_id, answer_id, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, string(in.Action), nullString(in.QuestionID), nullString(in.AnswerID),
		string(tags), toUnix(in.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting %s interaction for %s: %w", in.Action, in.UserID, err)
	}
	return nil
}

func (db *DB) ListInteractionsByUser(ctx context.Context, userID string) ([]model.Interaction, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT id, user_id, action, question_id, answer_id, tags, created_at
		 FROM interactions WHERE user_id = ? ORDER BY created_at, rowid`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing interactions of %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.Interaction{}
	for rows.Next() {
		var (
			in                   model.Interaction
			action, tags         string
			questionID, answerID sql.NullString
			createdAt            int64
		)
		if err := rows.Scan(&in.ID, &in.UserID, &action, &questionID, &answerID, &tags, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning interaction row: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &in.Tags); err != nil {
			return nil, fmt.Errorf("sqlite: decoding tags of interaction %s: %w", in.ID, err)
		}
		in.Action = model.InteractionAction(action)
		in.QuestionID = questionID.String
		in.AnswerID = answerID.String
		in.CreatedAt = fromUnix(createdAt)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (db *DB) DeleteInteractionsByUser(ctx context.Context, userID string) (int64, error) {
	res, err := db.q.ExecContext(ctx, `DELETE FROM interactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting interactions of %s: %w", userID, err)
	}
	return res.RowsAffected()
}

func (db *DB) DeleteInteractionsByAnswer(ctx context.Context, answerID string) (int64, error) {
	res, err := db.q.ExecContext(ctx, `DELETE FROM interactions WHERE answer_id = ?`, answerID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting interactions of answer %s: %w", answerID, err)
	}
	return res.RowsAffected()
}
