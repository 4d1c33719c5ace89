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

// DefaultBanReason is stored when a moderator bans without giving a reason.
const DefaultBanReason = "Violation of Community Guidelines"

// BanRequest describes a ban. A zero Duration bans permanently.
type BanRequest struct {
	Reason   string        `json:"reason"`
	Duration time.Duration `json:"duration"`
}

// DeletionReport counts what a user deletion removed, step by step.
type DeletionReport struct {
	Questions    int64 `json:"questions"`
	Answers      int64 `json:"answers"`
	Votes        int64 `json:"votes"`
	Saved        int64 `json:"saved"`
	Interactions int64 `json:"interactions"`
}

// ModerationService manages roles, bans and account deletion.
//
// PERMISSIONS (the actor must be signed in and not banned):
//
//	SetRole      admin
//	Ban / Unban  moderator or admin; never yourself; moderators cannot touch admins
//	DeleteUser   admin, or the account owner
type ModerationService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewModerationService(store repository.Store, logger *slog.Logger) *ModerationService {
	return &ModerationService{store: store, logger: logger, now: time.Now}
}

// SetRole overwrites the target's role. Any role may move to any other.
func (s *ModerationService) SetRole(ctx context.Context, actorID, targetID string, role model.Role) (*model.User, error) {
	if _, ok := model.ParseRole(string(role)); !ok {
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}

	var target *model.User
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		actor, err := activeUser(ctx, tx, actorID, s.now())
		if err != nil {
			return err
		}
		if actor.Role != model.RoleAdmin {
			return apperror.Forbidden("only admins can change roles")
		}
		if err := tx.SetRole(ctx, targetID, role); err != nil {
			return err
		}
		target, err = tx.GetUserByID(ctx, targetID)
		return err
	})
	if err != nil {
		logFailure(s.logger, "failed to set role", err,
			slog.String("actorID", actorID),
			slog.String("targetID", targetID),
		)
		return nil, fmt.Errorf("setting role of %s: %w", targetID, err)
	}

	s.logger.Info("role changed",
		slog.String("actorID", actorID),
		slog.String("targetID", targetID),
		slog.String("role", string(role)),
	)
	return target, nil
}

// Ban bans the target, or rewrites the reason and expiry of a ban already
// in place.
func (s *ModerationService) Ban(ctx context.Context, actorID, targetID string, req BanRequest) (*model.User, error) {
	if req.Duration < 0 {
		return nil, apperror.ValidationFailed("duration", "ban duration cannot be negative")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultBanReason
	}

	now := s.now().UTC()
	ban := &model.Ban{Reason: reason, BannedAt: now}
	if req.Duration > 0 {
		expires := now.Add(req.Duration)
		ban.Expires = &expires
	}

	target, err := s.setBan(ctx, actorID, targetID, ban)
	if err != nil {
		return nil, fmt.Errorf("banning %s: %w", targetID, err)
	}

	attrs := []any{
		slog.String("actorID", actorID),
		slog.String("targetID", targetID),
		slog.String("reason", reason),
	}
	if ban.Expires != nil {
		attrs = append(attrs, slog.Time("expires", *ban.Expires))
	}
	s.logger.Info("user banned", attrs...)
	return target, nil
}

// Unban clears the ban together with its reason and expiry. Unbanning an
// active user is a no-op.
func (s *ModerationService) Unban(ctx context.Context, actorID, targetID string) (*model.User, error) {
	target, err := s.setBan(ctx, actorID, targetID, nil)
	if err != nil {
		return nil, fmt.Errorf("unbanning %s: %w", targetID, err)
	}
	s.logger.Info("user unbanned", slog.String("actorID", actorID), slog.String("targetID", targetID))
	return target, nil
}

// ToggleBan is the single-entry form used by the admin panel: a nil request
// unbans, anything else bans.
func (s *ModerationService) ToggleBan(ctx context.Context, actorID, targetID string, req *BanRequest) (*model.User, error) {
	if req == nil {
		return s.Unban(ctx, actorID, targetID)
	}
	return s.Ban(ctx, actorID, targetID, *req)
}

func (s *ModerationService) setBan(ctx context.Context, actorID, targetID string, ban *model.Ban) (*model.User, error) {
	var target *model.User
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		actor, err := activeUser(ctx, tx, actorID, s.now())
		if err != nil {
			return err
		}
		if !actor.Role.CanModerate() {
			return apperror.Forbidden("only moderators and admins can ban users")
		}
		if actor.ID == targetID {
			return apperror.Forbidden("you cannot ban yourself")
		}

		t, err := tx.GetUserByID(ctx, targetID)
		if err != nil {
			return err
		}
		if t.Role == model.RoleAdmin && actor.Role != model.RoleAdmin {
			return apperror.Forbidden("moderators cannot ban admins")
		}

		if err := tx.SetBan(ctx, targetID, ban); err != nil {
			return err
		}
		target, err = tx.GetUserByID(ctx, targetID)
		return err
	})
	if err != nil {
		logFailure(s.logger, "failed to update ban", err,
			slog.String("actorID", actorID),
			slog.String("targetID", targetID),
		)
		return nil, err
	}
	return target, nil
}

// DeleteUser removes the account and everything that hangs off it, in one
// transaction:
//
//  1. the user's questions, with their answers, votes, tag links, saves
//     and interactions
//  2. the user's answers on other questions, with their votes and interactions
//  3. the user's votes on anyone's content
//  4. the user's saved-question list
//  5. the user's interaction log
//  6. the user record
//
// Every step deletes by owner, so re-running a step is harmless. The schema's
// ON DELETE CASCADE rules cover the same ground as steps 3-5.
func (s *ModerationService) DeleteUser(ctx context.Context, actorID, targetID string) (*DeletionReport, error) {
	var report DeletionReport
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if actorID == "" {
			return apperror.Unauthorized()
		}
		if actorID != targetID {
			actor, err := activeUser(ctx, tx, actorID, s.now())
			if err != nil {
				return err
			}
			if actor.Role != model.RoleAdmin {
				return apperror.Forbidden("only admins can delete other users")
			}
		}

		if _, err := tx.GetUserByID(ctx, targetID); err != nil {
			return err
		}

		var err error
		if report.Questions, err = tx.DeleteQuestionsByAuthor(ctx, targetID); err != nil {
			return err
		}
		if report.Answers, err = tx.DeleteAnswersByAuthor(ctx, targetID); err != nil {
			return err
		}
		if report.Votes, err = tx.DeleteVotesByUser(ctx, targetID); err != nil {
			return err
		}
		if report.Saved, err = tx.DeleteSavedByUser(ctx, targetID); err != nil {
			return err
		}
		if report.Interactions, err = tx.DeleteInteractionsByUser(ctx, targetID); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, targetID)
	})
	if err != nil {
		logFailure(s.logger, "failed to delete user", err,
			slog.String("actorID", actorID),
			slog.String("targetID", targetID),
		)
		return nil, fmt.Errorf("deleting user %s: %w", targetID, err)
	}

	s.logger.Info("user deleted",
		slog.String("actorID", actorID),
		slog.String("targetID", targetID),
		slog.Int64("questions", report.Questions),
		slog.Int64("answers", report.Answers),
		slog.Int64("votes", report.Votes),
	)
	return &report, nil
}

// ExpireBans unbans every user whose temporary ban has run out and returns
// how many were cleared. Enforcement already ignores expired bans; this
// brings the stored state in line.
func (s *ModerationService) ExpireBans(ctx context.Context) (int, error) {
	now := s.now()

	var cleared int
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ids, err := tx.ListExpiredBans(ctx, now)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.SetBan(ctx, id, nil); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "failed to expire bans", err)
		return 0, fmt.Errorf("expiring bans: %w", err)
	}

	if cleared > 0 {
		s.logger.Info("expired bans cleared", slog.Int("count", cleared))
	}
	return cleared, nil
}
