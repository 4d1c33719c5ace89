package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

func newTestModerationService(store repository.Store) *ModerationService {
	svc := NewModerationService(store, testLogger())
	svc.now = fixedClock
	return svc
}

func newTestAnswerService(store repository.Store) *AnswerService {
	svc := NewAnswerService(store, testLogger())
	svc.now = fixedClock
	return svc
}

// =========================================================================
// ROLES
// =========================================================================

func TestSetRole(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	ctx := context.Background()

	admin := seedUser(t, store, "admin", model.RoleAdmin)
	mod := seedUser(t, store, "mod", model.RoleModerator)
	member := seedUser(t, store, "member", model.RoleMember)

	tests := []struct {
		name    string
		actor   string
		target  string
		role    model.Role
		wantErr error
	}{
		{"admin promotes member", admin.ID, member.ID, model.RoleModerator, nil},
		{"admin demotes moderator", admin.ID, mod.ID, model.RoleMember, nil},
		{"moderator cannot change roles", mod.ID, member.ID, model.RoleAdmin, apperror.ErrForbidden},
		{"unknown role", admin.ID, member.ID, model.Role("root"), apperror.ErrValidation},
		{"unknown target", admin.ID, "ghost", model.RoleMember, apperror.ErrNotFound},
		{"anonymous", "", member.ID, model.RoleMember, apperror.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.SetRole(ctx, tt.actor, tt.target, tt.role)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, u.Role)
		})
	}
}

// =========================================================================
// BANS
// =========================================================================

// Admin bans X for "spam" for 24 hours; X can no longer answer.
func TestBan_TwentyFourHours(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	answers := newTestAnswerService(store)
	ctx := context.Background()

	admin := seedUser(t, store, "admin", model.RoleAdmin)
	x := seedUser(t, store, "x", model.RoleMember)
	q := seedQuestion(t, store, admin.ID)

	banned, err := svc.Ban(ctx, admin.ID, x.ID, BanRequest{Reason: "spam", Duration: 24 * time.Hour})
	require.NoError(t, err)
	require.NotNil(t, banned.Ban)
	assert.Equal(t, "spam", banned.Ban.Reason)
	require.NotNil(t, banned.Ban.Expires)
	assert.True(t, banned.Ban.Expires.Equal(testNow.Add(24*time.Hour)))
	assert.True(t, banned.IsBanned(testNow))

	_, err = answers.Create(ctx, x.ID, q.ID, "let me in")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestBan_DefaultsAndEdit(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	ctx := context.Background()

	mod := seedUser(t, store, "mod", model.RoleModerator)
	x := seedUser(t, store, "x", model.RoleMember)

	u, err := svc.Ban(ctx, mod.ID, x.ID, BanRequest{Reason: "   ", Duration: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, DefaultBanReason, u.Ban.Reason)
	assert.NotNil(t, u.Ban.Expires)

	// Banning again edits the existing ban; zero duration makes it permanent.
	u, err = svc.Ban(ctx, mod.ID, x.ID, BanRequest{Reason: "repeat spam"})
	require.NoError(t, err)
	assert.Equal(t, "repeat spam", u.Ban.Reason)
	assert.Nil(t, u.Ban.Expires)

	_, err = svc.Ban(ctx, mod.ID, x.ID, BanRequest{Duration: -time.Hour})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestBan_Permissions(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	ctx := context.Background()

	admin := seedUser(t, store, "admin", model.RoleAdmin)
	mod := seedUser(t, store, "mod", model.RoleModerator)
	bannedMod := seedUser(t, store, "bannedmod", model.RoleModerator)
	seedBan(t, store, bannedMod.ID, nil)
	member := seedUser(t, store, "member", model.RoleMember)
	other := seedUser(t, store, "other", model.RoleMember)

	tests := []struct {
		name    string
		actor   string
		target  string
		wantErr error
	}{
		{"member cannot ban", member.ID, other.ID, apperror.ErrForbidden},
		{"moderator cannot ban self", mod.ID, mod.ID, apperror.ErrForbidden},
		{"moderator cannot ban admin", mod.ID, admin.ID, apperror.ErrForbidden},
		{"banned moderator cannot ban", bannedMod.ID, other.ID, apperror.ErrForbidden},
		{"unknown target", mod.ID, "ghost", apperror.ErrNotFound},
		{"admin bans moderator", admin.ID, mod.ID, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ban(ctx, tt.actor, tt.target, BanRequest{Reason: "r"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestToggleBan_NilUnbansAndReenablesCreation(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	answers := newTestAnswerService(store)
	ctx := context.Background()

	admin := seedUser(t, store, "admin", model.RoleAdmin)
	x := seedUser(t, store, "x", model.RoleMember)
	q := seedQuestion(t, store, admin.ID)

	_, err := svc.ToggleBan(ctx, admin.ID, x.ID, &BanRequest{Reason: "spam", Duration: time.Hour})
	require.NoError(t, err)

	u, err := svc.ToggleBan(ctx, admin.ID, x.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, u.Ban, "unban clears flag, reason and expiry together")

	_, err = answers.Create(ctx, x.ID, q.ID, "thanks for unbanning me")
	assert.NoError(t, err)
}

func TestExpireBans(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	answers := newTestAnswerService(store)
	ctx := context.Background()

	admin := seedUser(t, store, "admin", model.RoleAdmin)
	short := seedUser(t, store, "short", model.RoleMember)
	long := seedUser(t, store, "long", model.RoleMember)
	forever := seedUser(t, store, "forever", model.RoleMember)
	q := seedQuestion(t, store, admin.ID)

	seedBan(t, store, short.ID, ptr(testNow.Add(-time.Second)))
	seedBan(t, store, long.ID, ptr(testNow.Add(time.Hour)))
	seedBan(t, store, forever.ID, nil)

	// Before the sweep the stored flag is still set, but enforcement already
	// treats the expired ban as lifted.
	_, err := answers.Create(ctx, short.ID, q.ID, "back again")
	require.NoError(t, err)

	n, err := svc.ExpireBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetUserByID(ctx, short.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Ban)

	for _, id := range []string{long.ID, forever.ID} {
		got, err := store.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got.Ban)
	}

	n, err = svc.ExpireBans(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =========================================================================
// CASCADING DELETE
// =========================================================================

func TestDeleteUser_LeavesNoReferences(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	votes := newTestVoteService(store)
	ctx := context.Background()

	admin := seedUser(t, store, "admin", model.RoleAdmin)
	x := seedUser(t, store, "x", model.RoleMember)
	y := seedUser(t, store, "y", model.RoleMember)

	xQuestion := seedQuestion(t, store, x.ID, "go")
	yAnswerOnX := seedAnswer(t, store, y.ID, xQuestion.ID)
	yQuestion := seedQuestion(t, store, y.ID, "go")
	xAnswerOnY := seedAnswer(t, store, x.ID, yQuestion.ID)
	yAnswerOnY := seedAnswer(t, store, y.ID, yQuestion.ID)

	_, err := votes.Upvote(ctx, model.KindQuestion, yQuestion.ID, x.ID)
	require.NoError(t, err)
	_, err = votes.Downvote(ctx, model.KindAnswer, yAnswerOnY.ID, x.ID)
	require.NoError(t, err)
	_, err = votes.Upvote(ctx, model.KindAnswer, xAnswerOnY.ID, y.ID)
	require.NoError(t, err)

	require.NoError(t, store.SaveQuestion(ctx, y.ID, xQuestion.ID))
	require.NoError(t, store.SaveQuestion(ctx, x.ID, yQuestion.ID))
	require.NoError(t, store.CreateInteraction(ctx, &model.Interaction{
		UserID: x.ID, Action: model.ActionView, QuestionID: yQuestion.ID,
	}))

	report, err := svc.DeleteUser(ctx, admin.ID, x.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Questions)
	assert.Equal(t, int64(1), report.Answers)
	assert.Equal(t, int64(2), report.Votes)
	assert.Equal(t, int64(1), report.Saved)
	assert.Equal(t, int64(1), report.Interactions)

	_, err = store.GetUserByID(ctx, x.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	qs, total, err := store.ListQuestionsByAuthor(ctx, x.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, qs)

	_, total, err = store.ListAnswersByAuthor(ctx, x.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = store.GetAnswerByID(ctx, yAnswerOnX.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "answers to a deleted question go with it")

	got, err := store.GetQuestionByID(ctx, yQuestion.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Upvotes, x.ID)
	assert.NotContains(t, got.Answers, xAnswerOnY.ID)

	ans, err := store.GetAnswerByID(ctx, yAnswerOnY.ID)
	require.NoError(t, err)
	assert.NotContains(t, ans.Downvotes, x.ID)

	saved, err := store.IsQuestionSaved(ctx, y.ID, xQuestion.ID)
	require.NoError(t, err)
	assert.False(t, saved)

	log, err := store.ListInteractionsByUser(ctx, x.ID)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestDeleteUser_Permissions(t *testing.T) {
	store := newTestStore(t)
	svc := newTestModerationService(store)
	ctx := context.Background()

	mod := seedUser(t, store, "mod", model.RoleModerator)
	member := seedUser(t, store, "member", model.RoleMember)

	_, err := svc.DeleteUser(ctx, mod.ID, member.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.DeleteUser(ctx, "", member.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.DeleteUser(ctx, member.ID, member.ID)
	assert.NoError(t, err, "users may delete their own account")

	_, err = svc.DeleteUser(ctx, mod.ID, mod.ID)
	assert.NoError(t, err)
}

func TestDeleteUser_RollsBackOnFailure(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()

	admin := seedUser(t, base, "admin", model.RoleAdmin)
	x := seedUser(t, base, "x", model.RoleMember)
	q := seedQuestion(t, base, x.ID)

	svc := newTestModerationService(&failingStore{Store: base, failDeleteUser: true})
	_, err := svc.DeleteUser(ctx, admin.ID, x.ID)
	require.ErrorIs(t, err, errInjected)

	_, err = base.GetQuestionByID(ctx, q.ID)
	assert.NoError(t, err, "earlier steps must roll back when the last one fails")
}
