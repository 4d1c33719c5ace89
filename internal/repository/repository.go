// Package repository declares the storage contracts the services depend on.
//
// Services receive a Store explicitly (constructor injection), never a
// package-level connection, so tests can hand them an in-memory SQLite
// database or a wrapper that injects failures.
package repository

import (
	"context"
	"time"

	"github.com/sakif/rotos-forum/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserSort string

const (
	UserSortDefault    UserSort = ""
	UserSortNewest     UserSort = "newest"
	UserSortOldest     UserSort = "oldest"
	UserSortReputation UserSort = "reputation"
)

type UserQuery struct {
	Search string // case-insensitive match on name or username
	Sort   UserSort
	ListOptions
}

type QuestionSort string

const (
	QuestionSortRecent       QuestionSort = "recent"
	QuestionSortOldest       QuestionSort = "oldest"
	QuestionSortMostVoted    QuestionSort = "most_voted"
	QuestionSortMostViewed   QuestionSort = "most_viewed"
	QuestionSortMostAnswered QuestionSort = "most_answered"
)

type SavedQuery struct {
	Search string // case-insensitive match on title
	Sort   QuestionSort
	ListOptions
}

type AnswerSort string

const (
	AnswerSortDefault        AnswerSort = ""
	AnswerSortHighestUpvotes AnswerSort = "highest_upvotes"
	AnswerSortLowestUpvotes  AnswerSort = "lowest_upvotes"
	AnswerSortRecent         AnswerSort = "recent"
	AnswerSortOld            AnswerSort = "old"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserBySubject(ctx context.Context, subjectID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UsernameTaken reports whether a user other than excludeUserID holds username.
	UsernameTaken(ctx context.Context, username, excludeUserID string) (bool, error)
	// RebindSubject points an existing record at a new subject id and flags it
	// for username setup.
	RebindSubject(ctx context.Context, userID, subjectID, name, picture string) error
	SetUsername(ctx context.Context, userID, username string) error
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error
	SetRole(ctx context.Context, userID string, role model.Role) error
	// SetBan stores the ban state; nil clears the flag, reason and expiry together.
	SetBan(ctx context.Context, userID string, ban *model.Ban) error
	AdjustReputation(ctx context.Context, userID string, delta int) error
	ListUsers(ctx context.Context, q UserQuery) ([]model.User, int, error)
	ListExpiredBans(ctx context.Context, now time.Time) ([]string, error)
	DeleteUser(ctx context.Context, id string) error
	AuthorStats(ctx context.Context, userID string) (model.AuthorStats, error)
}

type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestionByID(ctx context.Context, id string) (*model.Question, error)
	IncrementViews(ctx context.Context, id string) error
	ListQuestionsByAuthor(ctx context.Context, authorID string, opts ListOptions) ([]model.Question, int, error)
	// DeleteQuestionsByAuthor removes the questions and everything that hangs
	// off them (answers, votes, tag links, saves, interactions).
	DeleteQuestionsByAuthor(ctx context.Context, authorID string) (int64, error)
}

type AnswerRepository interface {
	CreateAnswer(ctx context.Context, a *model.Answer) error
	GetAnswerByID(ctx context.Context, id string) (*model.Answer, error)
	ListAnswers(ctx context.Context, questionID string, sort AnswerSort, opts ListOptions) ([]model.Answer, int, error)
	ListAnswersByAuthor(ctx context.Context, authorID string, opts ListOptions) ([]model.Answer, int, error)
	DeleteAnswer(ctx context.Context, id string) error
	DeleteAnswersByAuthor(ctx context.Context, authorID string) (int64, error)
}

type VoteRepository interface {
	GetVote(ctx context.Context, kind model.ContentKind, contentID, userID string) (model.VoteDirection, error)
	// SetVote records dir as the user's vote; VoteNone removes it.
	SetVote(ctx context.Context, kind model.ContentKind, contentID, userID string, dir model.VoteDirection) error
	CountVotes(ctx context.Context, kind model.ContentKind, contentID string) (up, down int, err error)
	DeleteVotesByUser(ctx context.Context, userID string) (int64, error)
}

type SavedRepository interface {
	IsQuestionSaved(ctx context.Context, userID, questionID string) (bool, error)
	SaveQuestion(ctx context.Context, userID, questionID string) error
	UnsaveQuestion(ctx context.Context, userID, questionID string) error
	ListSavedQuestions(ctx context.Context, userID string, q SavedQuery) ([]model.Question, int, error)
	DeleteSavedByUser(ctx context.Context, userID string) (int64, error)
}

type InteractionRepository interface {
	CreateInteraction(ctx context.Context, in *model.Interaction) error
	ListInteractionsByUser(ctx context.Context, userID string) ([]model.Interaction, error)
	DeleteInteractionsByUser(ctx context.Context, userID string) (int64, error)
	DeleteInteractionsByAnswer(ctx context.Context, answerID string) (int64, error)
}

type TagRepository interface {
	// UpsertTag returns the tag with the given (lowercase) name, creating it if needed.
	UpsertTag(ctx context.Context, name string) (*model.Tag, error)
}

// Store is the whole data layer. InTx runs fn against a Store bound to one
// transaction: fn's writes commit together when it returns nil and roll back
// together otherwise. Nested InTx calls join the outer transaction.
type Store interface {
	UserRepository
	QuestionRepository
	AnswerRepository
	VoteRepository
	SavedRepository
	InteractionRepository
	TagRepository

	InTx(ctx context.Context, fn func(tx Store) error) error
}
