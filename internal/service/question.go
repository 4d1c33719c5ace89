package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

const (
	MinTitleLength     = 5
	MaxTitleLength     = 130
	MaxQuestionLength  = 20000
	MaxTagsPerQuestion = 5
	MaxTagLength       = 15
)

// CreateQuestionInput is what a member submits when asking a question.
type CreateQuestionInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type QuestionService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewQuestionService(store repository.Store, logger *slog.Logger) *QuestionService {
	return &QuestionService{store: store, logger: logger, now: time.Now}
}

// Create posts a question. Tags are trimmed, lowercased and de-duplicated;
// unknown tags are created.
func (s *QuestionService) Create(ctx context.Context, authorID string, in CreateQuestionInput) (*model.Question, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)

	if len(title) < MinTitleLength || len(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d-%d characters", MinTitleLength, MaxTitleLength))
	}
	if content == "" {
		return nil, apperror.ValidationFailed("content", "question content is required")
	}
	if len(content) > MaxQuestionLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxQuestionLength))
	}

	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	question := &model.Question{AuthorID: authorID, Title: title, Content: content}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := activeUser(ctx, tx, authorID, s.now()); err != nil {
			return err
		}

		tagIDs := make([]string, 0, len(tags))
		for _, name := range tags {
			tag, err := tx.UpsertTag(ctx, name)
			if err != nil {
				return err
			}
			question.Tags = append(question.Tags, *tag)
			tagIDs = append(tagIDs, tag.ID)
		}

		if err := tx.CreateQuestion(ctx, question); err != nil {
			return err
		}
		return tx.CreateInteraction(ctx, &model.Interaction{
			UserID:     authorID,
			Action:     model.ActionAskQuestion,
			QuestionID: question.ID,
			Tags:       tagIDs,
		})
	})
	if err != nil {
		logFailure(s.logger, "failed to create question", err, slog.String("authorID", authorID))
		return nil, fmt.Errorf("creating question: %w", err)
	}

	question.Upvotes, question.Downvotes, question.Answers = []string{}, []string{}, []string{}
	s.logger.Info("question created",
		slog.String("id", question.ID),
		slog.String("authorID", authorID),
		slog.Int("tags", len(question.Tags)),
	)
	return question, nil
}

func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if len(t) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("tag %q is longer than %d characters", t, MaxTagLength))
		}
		seen[t] = true
		tags = append(tags, t)
	}
	if len(tags) == 0 || len(tags) > MaxTagsPerQuestion {
		return nil, apperror.ValidationFailed("tags",
			fmt.Sprintf("a question needs 1-%d tags", MaxTagsPerQuestion))
	}
	return tags, nil
}

// Get returns the question without counting a view.
func (s *QuestionService) Get(ctx context.Context, id string) (*model.Question, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "question ID is required")
	}
	return s.store.GetQuestionByID(ctx, id)
}

// View counts a view and returns the question. Signed-in viewers also get a
// "view" interaction.
func (s *QuestionService) View(ctx context.Context, id, viewerID string) (*model.Question, error) {
	var question *model.Question
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.IncrementViews(ctx, id); err != nil {
			return err
		}

		q, err := tx.GetQuestionByID(ctx, id)
		if err != nil {
			return err
		}
		question = q

		if viewerID == "" {
			return nil
		}
		tagIDs := make([]string, 0, len(q.Tags))
		for _, t := range q.Tags {
			tagIDs = append(tagIDs, t.ID)
		}
		return tx.CreateInteraction(ctx, &model.Interaction{
			UserID:     viewerID,
			Action:     model.ActionView,
			QuestionID: id,
			Tags:       tagIDs,
		})
	})
	if err != nil {
		logFailure(s.logger, "failed to view question", err, slog.String("questionID", id))
		return nil, fmt.Errorf("viewing question %s: %w", id, err)
	}
	return question, nil
}
