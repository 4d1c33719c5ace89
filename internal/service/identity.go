package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/auth"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

// IdentityProvider answers "who is this subject?" for user provisioning.
// *auth.GitHubProvider satisfies it.
type IdentityProvider interface {
	FetchProfile(ctx context.Context, subjectID string) (*auth.Profile, error)
}

// maxUsernameAttempts bounds the suffix retries when a username candidate
// collides with an existing one.
const maxUsernameAttempts = 5

const defaultDisplayName = "User"

// IdentityService resolves external subjects to local users, creating
// them on first sight, and issues session tokens.
//
//	AuthHandler → IdentityService → IdentityProvider (GitHub)
//	                              ↘ Store (users)
//	                              ↘ TokenService (JWT)
type IdentityService struct {
	store    repository.Store
	provider IdentityProvider
	tokens   *auth.TokenService
	logger   *slog.Logger

	now   func() time.Time
	token func(n int) string // random lowercase base36 string of length n
}

func NewIdentityService(
	store repository.Store,
	provider IdentityProvider,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		store:    store,
		provider: provider,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
		token:    randomToken,
	}
}

// AuthResult bundles the user with a freshly issued session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// GetOrCreateUser returns the local user for subjectID.
//
// LOOKUP ORDER:
//  1. by subject id: the common case, no provider call
//  2. by the provider's email: an account that was deleted at the provider
//     and registered again. The old record is rebound to the new subject and
//     must pick a username again.
//  3. otherwise a new member is created with a provisional username
//
// Two first visits for the same subject can race. The loser's insert hits
// the unique subject index; it then reads and returns the winner's record.
func (s *IdentityService) GetOrCreateUser(ctx context.Context, subjectID string) (*model.User, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, apperror.Unauthorized()
	}

	user, err := s.store.GetUserBySubject(ctx, subjectID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		logFailure(s.logger, "failed to look up subject", err, slog.String("subject", subjectID))
		return nil, fmt.Errorf("service/identity: looking up subject %s: %w", subjectID, err)
	}

	profile, err := s.provider.FetchProfile(ctx, subjectID)
	if err != nil {
		s.logger.Error("identity provider lookup failed",
			slog.String("subject", subjectID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ExternalService("identity provider", err)
	}

	name := strings.TrimSpace(profile.FirstName + " " + profile.LastName)
	if name == "" {
		name = defaultDisplayName
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if profile.Email != "" {
			existing, err := tx.GetUserByEmail(ctx, profile.Email)
			switch {
			case err == nil:
				if err := tx.RebindSubject(ctx, existing.ID, subjectID, name, profile.ImageURL); err != nil {
					return err
				}
				user, err = tx.GetUserByID(ctx, existing.ID)
				if err == nil {
					s.logger.Info("user rebound to new subject",
						slog.String("userID", user.ID),
						slog.String("subject", subjectID),
					)
				}
				return err
			case !errors.Is(err, apperror.ErrNotFound):
				return err
			}
		}

		username, err := s.pickUsername(ctx, tx, profile.Username)
		if err != nil {
			return err
		}

		created := &model.User{
			SubjectID:          subjectID,
			Name:               name,
			Username:           username,
			Email:              profile.Email,
			Picture:            profile.ImageURL,
			Role:               model.RoleMember,
			NeedsUsernameSetup: true,
		}
		if err := tx.CreateUser(ctx, created); err != nil {
			return err
		}
		user = created
		s.logger.Info("user provisioned",
			slog.String("userID", user.ID),
			slog.String("subject", subjectID),
			slog.String("username", user.Username),
		)
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			if winner, getErr := s.store.GetUserBySubject(ctx, subjectID); getErr == nil {
				return winner, nil
			}
		}
		logFailure(s.logger, "failed to provision user", err, slog.String("subject", subjectID))
		return nil, fmt.Errorf("service/identity: provisioning subject %s: %w", subjectID, err)
	}

	return user, nil
}

// pickUsername returns preferred when it is a valid, free username.
// Otherwise it starts from a generated candidate and appends random
// suffixes until one is free. Every candidate passes usernamePattern.
func (s *IdentityService) pickUsername(ctx context.Context, users repository.UserRepository, preferred string) (string, error) {
	base := strings.TrimSpace(preferred)
	if !usernamePattern.MatchString(base) {
		base = "user_" + strconv.FormatInt(s.now().UnixMilli(), 36) + s.token(4)
	}

	candidate := base
	for range maxUsernameAttempts {
		taken, err := users.UsernameTaken(ctx, candidate, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = withSuffix(base, s.token(6))
	}
	return "", apperror.Conflict("username", base)
}

// withSuffix appends "_"+suffix, shortening base so the result stays within
// maxUsernameLen.
func withSuffix(base, suffix string) string {
	if keep := maxUsernameLen - len(suffix) - 1; len(base) > keep {
		base = base[:keep]
	}
	return base + "_" + suffix
}

// Login resolves the subject and issues a session token for the local user.
// Banned users can still sign in; every mutating operation checks the ban.
func (s *IdentityService) Login(ctx context.Context, subjectID string) (*AuthResult, error) {
	user, err := s.GetOrCreateUser(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[rand.IntN(len(tokenAlphabet))]
	}
	return string(b)
}
