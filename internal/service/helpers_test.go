package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sakif/rotos-forum/internal/auth"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
	"github.com/sakif/rotos-forum/internal/repository/sqlite"
)

// =========================================================================
// STORES, CLOCKS AND LOGGERS
// =========================================================================

// testNow is the fixed instant services see in tests.
var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore returns a real SQLite store on a private in-memory database.
func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newFileTestStore returns a store on a WAL database file in a temp dir.
// Unlike ":memory:" its pool holds many connections, so concurrent callers
// really contend for SQLite's write lock.
func newFileTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "forum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var errInjected = errors.New("injected failure")

// failingStore wraps a Store and fails selected writes, including writes made
// through InTx, so tests can check that multi-step operations roll back.
type failingStore struct {
	repository.Store
	failReputationFor string // AdjustReputation fails for this user id
	failDeleteUser    bool   // DeleteUser always fails
}

func (f *failingStore) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return f.Store.InTx(ctx, func(tx repository.Store) error {
		return fn(&failingStore{
			Store:             tx,
			failReputationFor: f.failReputationFor,
			failDeleteUser:    f.failDeleteUser,
		})
	})
}

func (f *failingStore) AdjustReputation(ctx context.Context, userID string, delta int) error {
	if userID == f.failReputationFor {
		return errInjected
	}
	return f.Store.AdjustReputation(ctx, userID, delta)
}

func (f *failingStore) DeleteUser(ctx context.Context, id string) error {
	if f.failDeleteUser {
		return errInjected
	}
	return f.Store.DeleteUser(ctx, id)
}

// mockProvider is a testify mock of IdentityProvider.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) FetchProfile(ctx context.Context, subjectID string) (*auth.Profile, error) {
	args := m.Called(ctx, subjectID)
	p, _ := args.Get(0).(*auth.Profile)
	return p, args.Error(1)
}

// =========================================================================
// SEED DATA
// =========================================================================

func seedUser(t *testing.T, store repository.Store, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		SubjectID: "sub_" + username,
		Name:      username,
		Username:  username,
		Email:     username + "@example.com",
		Role:      role,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func seedBan(t *testing.T, store repository.Store, userID string, expires *time.Time) {
	t.Helper()
	require.NoError(t, store.SetBan(context.Background(), userID, &model.Ban{
		Reason:   "spam",
		BannedAt: testNow.Add(-time.Hour),
		Expires:  expires,
	}))
}

func seedQuestion(t *testing.T, store repository.Store, authorID string, tags ...string) *model.Question {
	t.Helper()
	ctx := context.Background()
	q := &model.Question{AuthorID: authorID, Title: "How do channels work?", Content: "details"}
	for _, name := range tags {
		tag, err := store.UpsertTag(ctx, name)
		require.NoError(t, err)
		q.Tags = append(q.Tags, *tag)
	}
	require.NoError(t, store.CreateQuestion(ctx, q))
	return q
}

func seedAnswer(t *testing.T, store repository.Store, authorID, questionID string) *model.Answer {
	t.Helper()
	a := &model.Answer{AuthorID: authorID, QuestionID: questionID, Content: "use select"}
	require.NoError(t, store.CreateAnswer(context.Background(), a))
	return a
}

func reputationOf(t *testing.T, store repository.Store, userID string) int {
	t.Helper()
	u, err := store.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	return u.Reputation
}

func ptr[T any](v T) *T { return &v }
