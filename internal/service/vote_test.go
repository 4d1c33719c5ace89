package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

func newTestVoteService(store repository.Store) *VoteService {
	svc := NewVoteService(store, testLogger())
	svc.now = fixedClock
	return svc
}

// A (reputation 0) upvotes B's question, then presses upvote again.
func TestUpvote_ToggleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	svc := newTestVoteService(store)
	ctx := context.Background()

	a := seedUser(t, store, "alice", model.RoleMember)
	b := seedUser(t, store, "bob", model.RoleMember)
	q := seedQuestion(t, store, b.ID)

	res, err := svc.Upvote(ctx, model.KindQuestion, q.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Direction: model.VoteUp, Upvotes: 1, Downvotes: 0}, *res)
	assert.Equal(t, 2, reputationOf(t, store, a.ID))
	assert.Equal(t, 10, reputationOf(t, store, b.ID))

	got, err := store.GetQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, got.Upvotes)

	res, err = svc.Upvote(ctx, model.KindQuestion, q.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VoteNone, res.Direction)
	assert.Equal(t, 0, reputationOf(t, store, a.ID))
	assert.Equal(t, 0, reputationOf(t, store, b.ID))

	got, err = store.GetQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Upvotes)
	assert.Empty(t, got.Downvotes)
}

// Walks the full transition table on an answer and checks, after every call,
// that the voter sits in at most one vote set and that both reputations
// moved together.
func TestVote_TransitionTable(t *testing.T) {
	store := newTestStore(t)
	svc := newTestVoteService(store)
	ctx := context.Background()

	voter := seedUser(t, store, "voter", model.RoleMember)
	author := seedUser(t, store, "author", model.RoleMember)
	q := seedQuestion(t, store, author.ID)
	ans := seedAnswer(t, store, author.ID, q.ID)

	steps := []struct {
		name       string
		up         bool
		wantDir    model.VoteDirection
		wantVoter  int
		wantAuthor int
	}{
		{"none + upvote", true, model.VoteUp, 2, 10},
		{"up + downvote switches", false, model.VoteDown, 4, 20},
		{"down + downvote removes", false, model.VoteNone, 2, 10},
		{"none + downvote", false, model.VoteDown, 4, 20},
		{"down + upvote switches", true, model.VoteUp, 6, 30},
		{"up + upvote removes", true, model.VoteNone, 4, 20},
	}

	for _, s := range steps {
		var (
			res *VoteResult
			err error
		)
		if s.up {
			res, err = svc.Upvote(ctx, model.KindAnswer, ans.ID, voter.ID)
		} else {
			res, err = svc.Downvote(ctx, model.KindAnswer, ans.ID, voter.ID)
		}
		require.NoError(t, err, s.name)
		assert.Equal(t, s.wantDir, res.Direction, s.name)

		got, err := store.GetAnswerByID(ctx, ans.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got.Upvotes)+len(got.Downvotes), 1, "%s: voter in both sets", s.name)
		assert.Equal(t, len(got.Upvotes), res.Upvotes, s.name)
		assert.Equal(t, len(got.Downvotes), res.Downvotes, s.name)

		assert.Equal(t, s.wantVoter, reputationOf(t, store, voter.ID), s.name)
		assert.Equal(t, s.wantAuthor, reputationOf(t, store, author.ID), s.name)
	}
}

func TestVote_UnknownAuthorOnlyMovesVoter(t *testing.T) {
	store := newTestStore(t)
	svc := newTestVoteService(store)
	ctx := context.Background()

	voter := seedUser(t, store, "voter", model.RoleMember)
	q := seedQuestion(t, store, "")

	_, err := svc.Downvote(ctx, model.KindQuestion, q.ID, voter.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reputationOf(t, store, voter.ID))
}

func TestVote_Preconditions(t *testing.T) {
	store := newTestStore(t)
	svc := newTestVoteService(store)
	ctx := context.Background()

	author := seedUser(t, store, "author", model.RoleMember)
	banned := seedUser(t, store, "banned", model.RoleMember)
	seedBan(t, store, banned.ID, nil)
	expired := seedUser(t, store, "expired", model.RoleMember)
	seedBan(t, store, expired.ID, ptr(testNow.Add(-time.Minute)))
	q := seedQuestion(t, store, author.ID)

	tests := []struct {
		name    string
		kind    model.ContentKind
		content string
		user    string
		wantErr error
	}{
		{"banned voter", model.KindQuestion, q.ID, banned.ID, apperror.ErrForbidden},
		{"expired ban votes normally", model.KindQuestion, q.ID, expired.ID, nil},
		{"missing question", model.KindQuestion, "missing", author.ID, apperror.ErrNotFound},
		{"missing answer", model.KindAnswer, "missing", author.ID, apperror.ErrNotFound},
		{"unknown voter", model.KindQuestion, q.ID, "ghost", apperror.ErrNotFound},
		{"anonymous", model.KindQuestion, q.ID, "", apperror.ErrUnauthorized},
		{"unknown kind", model.ContentKind("comment"), q.ID, author.ID, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upvote(ctx, tt.kind, tt.content, tt.user)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Rejected votes leave no trace.
	got, err := store.GetQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{expired.ID}, got.Upvotes)
	assert.Equal(t, 0, reputationOf(t, store, banned.ID))
}

func TestVote_RollsBackWhenAuthorUpdateFails(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()

	voter := seedUser(t, base, "voter", model.RoleMember)
	author := seedUser(t, base, "author", model.RoleMember)
	q := seedQuestion(t, base, author.ID)

	svc := newTestVoteService(&failingStore{Store: base, failReputationFor: author.ID})

	_, err := svc.Upvote(ctx, model.KindQuestion, q.ID, voter.ID)
	require.ErrorIs(t, err, errInjected)

	assert.Equal(t, 0, reputationOf(t, base, voter.ID), "voter delta must roll back with the author's")
	dir, err := base.GetVote(ctx, model.KindQuestion, q.ID, voter.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VoteNone, dir)
}

// =========================================================================
// CONCURRENCY (file-backed database, real connection pool)
// =========================================================================

// Many members upvote the same question at once. Every vote must land and
// the author must collect exactly one +10 per voter.
func TestVote_ConcurrentVotersFileDB(t *testing.T) {
	store := newFileTestStore(t)
	svc := newTestVoteService(store)
	ctx := context.Background()

	const voters = 30
	author := seedUser(t, store, "author", model.RoleMember)
	q := seedQuestion(t, store, author.ID)

	ids := make([]string, voters)
	for i := range ids {
		ids[i] = seedUser(t, store, fmt.Sprintf("voter_%02d", i), model.RoleMember).ID
	}

	errs := make([]error, voters)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Upvote(ctx, model.KindQuestion, q.ID, id)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "voter %d", i)
	}
	assert.Equal(t, 10*voters, reputationOf(t, store, author.ID))
	for _, id := range ids {
		assert.Equal(t, 2, reputationOf(t, store, id))
	}

	got, err := store.GetQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, got.Upvotes, voters)
	assert.Empty(t, got.Downvotes)
}

// One member hammers upvote and downvote in parallel. Whatever order the
// calls commit in, the member ends up in at most one vote set and the
// author's reputation moves in lockstep with theirs (+10 per +2).
func TestVote_ConcurrentTogglesSameUserFileDB(t *testing.T) {
	store := newFileTestStore(t)
	svc := newTestVoteService(store)
	ctx := context.Background()

	const calls = 20
	voter := seedUser(t, store, "voter", model.RoleMember)
	author := seedUser(t, store, "author", model.RoleMember)
	q := seedQuestion(t, store, author.ID)

	errs := make([]error, calls)
	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = svc.Upvote(ctx, model.KindQuestion, q.ID, voter.ID)
			} else {
				_, errs[i] = svc.Downvote(ctx, model.KindQuestion, q.ID, voter.ID)
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}

	got, err := store.GetQuestionByID(ctx, q.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Upvotes)+len(got.Downvotes), 1, "voter in both sets")

	voterRep := reputationOf(t, store, voter.ID)
	assert.Equal(t, 5*voterRep, reputationOf(t, store, author.ID))
}
