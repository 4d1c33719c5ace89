package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

// reputationRule is how much a vote moves the voter's and the author's reputation.
type reputationRule struct {
	Voter  int
	Author int
}

var reputationRules = map[model.ContentKind]reputationRule{
	model.KindQuestion: {Voter: 2, Author: 10},
	model.KindAnswer:   {Voter: 2, Author: 10},
}

// VoteResult is the vote state after a call.
type VoteResult struct {
	Direction model.VoteDirection `json:"direction"`
	Upvotes   int                 `json:"upvotes"`
	Downvotes int                 `json:"downvotes"`
}

// VoteService toggles votes and keeps reputation in step with them.
//
// STATE MACHINE (per user, per item):
//
//	current    | Upvote        | Downvote
//	-----------+---------------+--------------
//	none       | → up          | → down
//	up         | → none        | → down
//	down       | → up          | → none
//
// The current state is read inside the same transaction as the write, so
// callers never tell the engine what they think the state is.
//
// REPUTATION: a call that leaves a vote in place adds +Voter to the voter and
// +Author to the content's author; a call that removes the vote subtracts the
// same amounts. Both updates share the vote's transaction. Content with no
// known author only moves the voter.
type VoteService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewVoteService(store repository.Store, logger *slog.Logger) *VoteService {
	return &VoteService{store: store, logger: logger, now: time.Now}
}

func (s *VoteService) Upvote(ctx context.Context, kind model.ContentKind, contentID, userID string) (*VoteResult, error) {
	return s.vote(ctx, kind, contentID, userID, model.VoteUp)
}

func (s *VoteService) Downvote(ctx context.Context, kind model.ContentKind, contentID, userID string) (*VoteResult, error) {
	return s.vote(ctx, kind, contentID, userID, model.VoteDown)
}

func (s *VoteService) vote(ctx context.Context, kind model.ContentKind, contentID, userID string, pressed model.VoteDirection) (*VoteResult, error) {
	rule, ok := reputationRules[kind]
	if !ok {
		return nil, apperror.ValidationFailed("type", fmt.Sprintf("cannot vote on %q", kind))
	}

	var result VoteResult
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		voter, err := activeUser(ctx, tx, userID, s.now())
		if err != nil {
			return err
		}

		authorID, err := contentAuthor(ctx, tx, kind, contentID)
		if err != nil {
			return err
		}

		current, err := tx.GetVote(ctx, kind, contentID, voter.ID)
		if err != nil {
			return err
		}

		next, sign := pressed, 1
		if current == pressed {
			next, sign = model.VoteNone, -1
		}

		if err := tx.SetVote(ctx, kind, contentID, voter.ID, next); err != nil {
			return err
		}
		if err := tx.AdjustReputation(ctx, voter.ID, sign*rule.Voter); err != nil {
			return err
		}
		if authorID != "" {
			if err := tx.AdjustReputation(ctx, authorID, sign*rule.Author); err != nil {
				return err
			}
		}

		up, down, err := tx.CountVotes(ctx, kind, contentID)
		if err != nil {
			return err
		}
		result = VoteResult{Direction: next, Upvotes: up, Downvotes: down}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "vote failed", err,
			slog.String("kind", string(kind)),
			slog.String("contentID", contentID),
			slog.String("userID", userID),
		)
		return nil, fmt.Errorf("voting %s on %s %s: %w", pressed, kind, contentID, err)
	}

	s.logger.Info("vote recorded",
		slog.String("kind", string(kind)),
		slog.String("contentID", contentID),
		slog.String("userID", userID),
		slog.String("direction", result.Direction.String()),
	)
	return &result, nil
}

// contentAuthor returns the author id of the item, or NotFound.
func contentAuthor(ctx context.Context, store repository.Store, kind model.ContentKind, id string) (string, error) {
	switch kind {
	case model.KindQuestion:
		q, err := store.GetQuestionByID(ctx, id)
		if err != nil {
			return "", err
		}
		return q.AuthorID, nil
	case model.KindAnswer:
		a, err := store.GetAnswerByID(ctx, id)
		if err != nil {
			return "", err
		}
		return a.AuthorID, nil
	}
	return "", apperror.ValidationFailed("type", fmt.Sprintf("cannot vote on %q", kind))
}
