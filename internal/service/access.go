package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

// Paging defaults per listing.
const (
	DefaultUserPageSize   = 9
	DefaultAnswerPageSize = 10
	DefaultSavedPageSize  = 20
	MaxPageSize           = 100
)

// activeUser loads the acting user and rejects anonymous callers and users
// with a running ban. It is the one place mutating operations check bans.
func activeUser(ctx context.Context, users repository.UserRepository, userID string, now time.Time) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized()
	}
	u, err := users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.IsBanned(now) {
		return nil, apperror.Forbidden("your account is banned")
	}
	return u, nil
}

// pageWindow turns a 1-based page number into limit/offset.
func pageWindow(page, pageSize, defaultSize int) repository.ListOptions {
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	return repository.ListOptions{Limit: pageSize, Offset: (page - 1) * pageSize}
}

func newPage[T any](items []T, total int, window repository.ListOptions) *model.Page[T] {
	return &model.Page[T]{
		Items:  items,
		IsNext: total > window.Offset+len(items),
		Total:  total,
	}
}

// logFailure records unexpected failures at error level. Domain errors
// other than provider outages are part of normal traffic and are only
// logged at debug.
func logFailure(logger *slog.Logger, msg string, err error, attrs ...any) {
	level := slog.LevelError
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && !errors.Is(err, apperror.ErrExternal) {
		level = slog.LevelDebug
	}
	logger.Log(context.Background(), level, msg, append(attrs, slog.String("error", err.Error()))...)
}
