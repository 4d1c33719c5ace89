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

const MaxAnswerLength = 20000

// AnswerSortBy names the answer listing orders.
type AnswerSortBy string

const (
	AnswerSortHighestUpvotes AnswerSortBy = "highestUpvotes"
	AnswerSortLowestUpvotes  AnswerSortBy = "lowestUpvotes"
	AnswerSortRecent         AnswerSortBy = "recent"
	AnswerSortOld            AnswerSortBy = "old"
)

var answerSorts = map[AnswerSortBy]repository.AnswerSort{
	AnswerSortHighestUpvotes: repository.AnswerSortHighestUpvotes,
	AnswerSortLowestUpvotes:  repository.AnswerSortLowestUpvotes,
	AnswerSortRecent:         repository.AnswerSortRecent,
	AnswerSortOld:            repository.AnswerSortOld,
}

type AnswerListOptions struct {
	SortBy   AnswerSortBy
	Page     int
	PageSize int
}

type AnswerService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewAnswerService(store repository.Store, logger *slog.Logger) *AnswerService {
	return &AnswerService{store: store, logger: logger, now: time.Now}
}

// Create posts an answer and logs an "answer" interaction carrying the
// question's tags. Answering earns no reputation; reputation only moves
// through votes.
func (s *AnswerService) Create(ctx context.Context, authorID, questionID, content string) (*model.Answer, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "answer content is required")
	}
	if len(content) > MaxAnswerLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("answer must be %d characters or less", MaxAnswerLength))
	}

	answer := &model.Answer{AuthorID: authorID, QuestionID: questionID, Content: content}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := activeUser(ctx, tx, authorID, s.now()); err != nil {
			return err
		}
		q, err := tx.GetQuestionByID(ctx, questionID)
		if err != nil {
			return err
		}

		if err := tx.CreateAnswer(ctx, answer); err != nil {
			return err
		}

		tagIDs := make([]string, 0, len(q.Tags))
		for _, t := range q.Tags {
			tagIDs = append(tagIDs, t.ID)
		}
		return tx.CreateInteraction(ctx, &model.Interaction{
			UserID:     authorID,
			Action:     model.ActionAnswer,
			QuestionID: questionID,
			AnswerID:   answer.ID,
			Tags:       tagIDs,
		})
	})
	if err != nil {
		logFailure(s.logger, "failed to create answer", err,
			slog.String("authorID", authorID),
			slog.String("questionID", questionID),
		)
		return nil, fmt.Errorf("creating answer: %w", err)
	}

	answer.Upvotes, answer.Downvotes = []string{}, []string{}
	s.logger.Info("answer created",
		slog.String("id", answer.ID),
		slog.String("questionID", questionID),
		slog.String("authorID", authorID),
	)
	return answer, nil
}

// List pages through a question's answers.
func (s *AnswerService) List(ctx context.Context, questionID string, opts AnswerListOptions) (*model.Page[model.Answer], error) {
	sort, ok := answerSorts[opts.SortBy]
	if !ok && opts.SortBy != "" {
		return nil, apperror.ValidationFailed("sortBy", fmt.Sprintf("unknown sort %q", opts.SortBy))
	}
	if _, err := s.store.GetQuestionByID(ctx, questionID); err != nil {
		return nil, err
	}

	window := pageWindow(opts.Page, opts.PageSize, DefaultAnswerPageSize)
	answers, total, err := s.store.ListAnswers(ctx, questionID, sort, window)
	if err != nil {
		logFailure(s.logger, "failed to list answers", err, slog.String("questionID", questionID))
		return nil, fmt.Errorf("listing answers of %s: %w", questionID, err)
	}
	return newPage(answers, total, window), nil
}

// Delete removes an answer. The author may always delete their own answer;
// anyone else needs an active moderator or admin role. The answer leaves its
// question's list and takes its votes and interaction entries with it.
func (s *AnswerService) Delete(ctx context.Context, actorID, answerID string) error {
	if actorID == "" {
		return apperror.Unauthorized()
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		actor, err := tx.GetUserByID(ctx, actorID)
		if err != nil {
			return err
		}
		answer, err := tx.GetAnswerByID(ctx, answerID)
		if err != nil {
			return err
		}

		isAuthor := answer.AuthorID != "" && answer.AuthorID == actor.ID
		if !isAuthor && (!actor.Role.CanModerate() || actor.IsBanned(s.now())) {
			return apperror.Forbidden("only the author, moderators and admins can delete this answer")
		}

		if _, err := tx.DeleteInteractionsByAnswer(ctx, answerID); err != nil {
			return err
		}
		return tx.DeleteAnswer(ctx, answerID)
	})
	if err != nil {
		logFailure(s.logger, "failed to delete answer", err,
			slog.String("actorID", actorID),
			slog.String("answerID", answerID),
		)
		return fmt.Errorf("deleting answer %s: %w", answerID, err)
	}

	s.logger.Info("answer deleted", slog.String("id", answerID), slog.String("actorID", actorID))
	return nil
}
