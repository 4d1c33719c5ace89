// Package service holds the forum's business rules.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, checks permissions, orchestrates
//	Repository      → reads and writes the database
//
// Every service receives its repository.Store in its constructor. Multi-step
// mutations (a vote and its two reputation updates, a cascading delete) run
// through Store.InTx so they commit or roll back as a unit.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/badge"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

const maxUsernameLen = 20

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

const (
	MaxNameLength     = 50
	MaxBioLength      = 300
	MaxLocationLength = 100
)

// UserFilter names the community listing orders.
type UserFilter string

const (
	UserFilterNewUsers        UserFilter = "new_users"
	UserFilterOldUsers        UserFilter = "old_users"
	UserFilterTopContributors UserFilter = "top_contributors"
)

var userSorts = map[UserFilter]repository.UserSort{
	UserFilterNewUsers:        repository.UserSortNewest,
	UserFilterOldUsers:        repository.UserSortOldest,
	UserFilterTopContributors: repository.UserSortReputation,
}

// SavedFilter names the saved-question listing orders.
type SavedFilter string

const (
	SavedFilterMostRecent   SavedFilter = "most_recent"
	SavedFilterOldest       SavedFilter = "oldest"
	SavedFilterMostVoted    SavedFilter = "most_voted"
	SavedFilterMostViewed   SavedFilter = "most_viewed"
	SavedFilterMostAnswered SavedFilter = "most_answered"
)

var savedSorts = map[SavedFilter]repository.QuestionSort{
	SavedFilterMostRecent:   repository.QuestionSortRecent,
	SavedFilterOldest:       repository.QuestionSortOldest,
	SavedFilterMostVoted:    repository.QuestionSortMostVoted,
	SavedFilterMostViewed:   repository.QuestionSortMostViewed,
	SavedFilterMostAnswered: repository.QuestionSortMostAnswered,
}

type UserListOptions struct {
	Search   string
	Filter   UserFilter
	Page     int
	PageSize int
}

type SavedOptions struct {
	Search   string
	Filter   SavedFilter
	Page     int
	PageSize int
}

// UserInfo is the profile page payload.
type UserInfo struct {
	User           *model.User  `json:"user"`
	TotalQuestions int          `json:"totalQuestions"`
	TotalAnswers   int          `json:"totalAnswers"`
	BadgeCounts    badge.Counts `json:"badgeCounts"`
	Reputation     int          `json:"reputation"`
}

// UserService covers username setup, profiles and the community reads.
type UserService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewUserService(store repository.Store, logger *slog.Logger) *UserService {
	return &UserService{store: store, logger: logger, now: time.Now}
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.store.GetUserByID(ctx, userID)
}

// CheckUsernameAvailable is the live-feedback check shown while typing. It
// is advisory only: SetupUsername re-checks at write time.
func (s *UserService) CheckUsernameAvailable(ctx context.Context, username string) (bool, error) {
	if !usernamePattern.MatchString(username) {
		return false, nil
	}
	taken, err := s.store.UsernameTaken(ctx, username, "")
	if err != nil {
		logFailure(s.logger, "failed to check username", err, slog.String("username", username))
		return false, fmt.Errorf("checking username: %w", err)
	}
	return !taken, nil
}

// SetupUsername lets a user pick their permanent username.
//
// The conflict query excludes the caller, so re-submitting your own current
// username succeeds. The unique index catches the window between the query
// and the write, and that also comes back as Conflict.
func (s *UserService) SetupUsername(ctx context.Context, userID, username string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized()
	}
	if !usernamePattern.MatchString(username) {
		return nil, apperror.ValidationFailed("username",
			"username must be 3-20 characters and contain only letters, numbers, and underscores")
	}

	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	taken, err := s.store.UsernameTaken(ctx, username, userID)
	if err != nil {
		logFailure(s.logger, "failed to check username", err, slog.String("username", username))
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if taken {
		return nil, apperror.Conflict("username", username)
	}

	if err := s.store.SetUsername(ctx, userID, username); err != nil {
		logFailure(s.logger, "failed to set username", err,
			slog.String("userID", userID),
			slog.String("username", username),
		)
		return nil, fmt.Errorf("setting username: %w", err)
	}

	s.logger.Info("username set up", slog.String("userID", userID), slog.String("username", username))
	return s.store.GetUserByID(ctx, userID)
}

// UpdateProfile applies self-service edits. Nil fields stay unchanged.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized()
	}

	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	trim(update.Name)
	trim(update.Bio)
	trim(update.Location)
	trim(update.PortfolioWebsite)

	if update.Name != nil && (*update.Name == "" || len(*update.Name) > MaxNameLength) {
		return nil, apperror.ValidationFailed("name", fmt.Sprintf("name must be 1-%d characters", MaxNameLength))
	}
	if update.Bio != nil && len(*update.Bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio", fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}
	if update.Location != nil && len(*update.Location) > MaxLocationLength {
		return nil, apperror.ValidationFailed("location", fmt.Sprintf("location must be %d characters or less", MaxLocationLength))
	}
	if w := update.PortfolioWebsite; w != nil && *w != "" {
		u, err := url.Parse(*w)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperror.ValidationFailed("portfolioWebsite", "portfolio website must be an http(s) URL")
		}
	}

	if err := s.store.UpdateProfile(ctx, userID, update); err != nil {
		logFailure(s.logger, "failed to update profile", err, slog.String("userID", userID))
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return s.store.GetUserByID(ctx, userID)
}

// GetUserInfo assembles the profile page: totals, reputation and badges.
func (s *UserService) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats, err := s.store.AuthorStats(ctx, userID)
	if err != nil {
		logFailure(s.logger, "failed to compute author stats", err, slog.String("userID", userID))
		return nil, fmt.Errorf("computing stats for %s: %w", userID, err)
	}

	return &UserInfo{
		User:           user,
		TotalQuestions: stats.Questions,
		TotalAnswers:   stats.Answers,
		BadgeCounts: badge.Evaluate([]badge.Criterion{
			{Kind: badge.QuestionCount, Count: stats.Questions},
			{Kind: badge.AnswerCount, Count: stats.Answers},
			{Kind: badge.QuestionUpvotes, Count: stats.QuestionUpvotes},
			{Kind: badge.AnswerUpvotes, Count: stats.AnswerUpvotes},
			{Kind: badge.TotalViews, Count: stats.QuestionViews},
		}),
		Reputation: user.Reputation,
	}, nil
}

// ListUsers pages through the community directory.
func (s *UserService) ListUsers(ctx context.Context, opts UserListOptions) (*model.Page[model.User], error) {
	sort, ok := userSorts[opts.Filter]
	if !ok && opts.Filter != "" {
		return nil, apperror.ValidationFailed("filter", fmt.Sprintf("unknown filter %q", opts.Filter))
	}

	window := pageWindow(opts.Page, opts.PageSize, DefaultUserPageSize)
	users, total, err := s.store.ListUsers(ctx, repository.UserQuery{
		Search:      strings.TrimSpace(opts.Search),
		Sort:        sort,
		ListOptions: window,
	})
	if err != nil {
		logFailure(s.logger, "failed to list users", err)
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return newPage(users, total, window), nil
}

// UserQuestions pages through one user's questions, newest first.
func (s *UserService) UserQuestions(ctx context.Context, userID string, page, pageSize int) (*model.Page[model.Question], error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	window := pageWindow(page, pageSize, DefaultAnswerPageSize)
	questions, total, err := s.store.ListQuestionsByAuthor(ctx, userID, window)
	if err != nil {
		logFailure(s.logger, "failed to list user questions", err, slog.String("userID", userID))
		return nil, fmt.Errorf("listing questions of %s: %w", userID, err)
	}
	return newPage(questions, total, window), nil
}

// UserAnswers pages through one user's answers, newest first.
func (s *UserService) UserAnswers(ctx context.Context, userID string, page, pageSize int) (*model.Page[model.Answer], error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	window := pageWindow(page, pageSize, DefaultAnswerPageSize)
	answers, total, err := s.store.ListAnswersByAuthor(ctx, userID, window)
	if err != nil {
		logFailure(s.logger, "failed to list user answers", err, slog.String("userID", userID))
		return nil, fmt.Errorf("listing answers of %s: %w", userID, err)
	}
	return newPage(answers, total, window), nil
}

// ToggleSaveQuestion saves the question if it was not saved and unsaves it
// otherwise. It returns whether the question is saved afterwards.
func (s *UserService) ToggleSaveQuestion(ctx context.Context, userID, questionID string) (bool, error) {
	var saved bool
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := activeUser(ctx, tx, userID, s.now()); err != nil {
			return err
		}
		if _, err := tx.GetQuestionByID(ctx, questionID); err != nil {
			return err
		}

		was, err := tx.IsQuestionSaved(ctx, userID, questionID)
		if err != nil {
			return err
		}
		if was {
			err = tx.UnsaveQuestion(ctx, userID, questionID)
		} else {
			err = tx.SaveQuestion(ctx, userID, questionID)
		}
		saved = !was
		return err
	})
	if err != nil {
		logFailure(s.logger, "failed to toggle saved question", err,
			slog.String("userID", userID),
			slog.String("questionID", questionID),
		)
		return false, fmt.Errorf("toggling saved question %s: %w", questionID, err)
	}
	return saved, nil
}

// SavedQuestions pages through the user's saved questions.
func (s *UserService) SavedQuestions(ctx context.Context, userID string, opts SavedOptions) (*model.Page[model.Question], error) {
	if userID == "" {
		return nil, apperror.Unauthorized()
	}
	sort, ok := savedSorts[opts.Filter]
	if !ok && opts.Filter != "" {
		return nil, apperror.ValidationFailed("filter", fmt.Sprintf("unknown filter %q", opts.Filter))
	}

	window := pageWindow(opts.Page, opts.PageSize, DefaultSavedPageSize)
	questions, total, err := s.store.ListSavedQuestions(ctx, userID, repository.SavedQuery{
		Search:      strings.TrimSpace(opts.Search),
		Sort:        sort,
		ListOptions: window,
	})
	if err != nil {
		logFailure(s.logger, "failed to list saved questions", err, slog.String("userID", userID))
		return nil, fmt.Errorf("listing saved questions: %w", err)
	}
	return newPage(questions, total, window), nil
}
