package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

// newTestDB opens a fresh in-memory database with every migration applied.
// Each ":memory:" database disappears when its connection closes, so tests
// never see each other's rows.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user whose subject, username and email derive from name.
func createTestUser(t *testing.T, db *DB, name string) *model.User {
	t.Helper()
	user := &model.User{
		SubjectID: "sub_" + name,
		Name:      name,
		Username:  name,
		Email:     name + "@example.com",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user %s: %v", name, err)
	}
	return user
}

// =========================================================================
// CREATE / GET
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{SubjectID: "sub_1", Name: "Ada", Username: "ada"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == "" {
		t.Error("CreateUser() did not set ID")
	}
	if user.JoinedAt.IsZero() {
		t.Error("CreateUser() did not set JoinedAt")
	}
	if user.Role != model.RoleMember {
		t.Errorf("Role = %q, want member", user.Role)
	}

	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Username != "ada" || got.SubjectID != "sub_1" || got.Ban != nil {
		t.Errorf("GetUserByID() = %+v", got)
	}
	if !got.JoinedAt.Equal(user.JoinedAt) {
		t.Errorf("JoinedAt = %v, want %v", got.JoinedAt, user.JoinedAt)
	}
}

func TestCreateUser_Conflicts(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "ada")

	tests := []struct {
		name      string
		user      model.User
		wantField string
	}{
		{"same subject", model.User{SubjectID: "sub_ada", Username: "other1"}, "subject"},
		{"same username different case", model.User{SubjectID: "sub_2", Username: "ADA"}, "username"},
		{"same email different case", model.User{SubjectID: "sub_3", Username: "other3", Email: "Ada@Example.com"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			err := db.CreateUser(context.Background(), &u)
			if !errors.Is(err, apperror.ErrConflict) {
				t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
			}
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || appErr.Field != tt.wantField {
				t.Errorf("conflict field = %+v, want %q", appErr, tt.wantField)
			}
		})
	}
}

func TestCreateUser_EmptyEmailsDoNotCollide(t *testing.T) {
	db := newTestDB(t)
	for i := range 2 {
		u := &model.User{SubjectID: fmt.Sprintf("sub_%d", i), Username: fmt.Sprintf("user%d", i)}
		if err := db.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser(%d) error = %v", i, err)
		}
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetUserByID(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserBySubject(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserBySubject() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByEmail(ctx, ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "grace")

	got, err := db.GetUserByEmail(context.Background(), "GRACE@example.COM")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("GetUserByEmail() id = %s, want %s", got.ID, user.ID)
	}
}

// =========================================================================
// USERNAME / PROFILE / ROLE
// =========================================================================

func TestUsernameTaken(t *testing.T) {
	db := newTestDB(t)
	ada := createTestUser(t, db, "ada")
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		exclude  string
		want     bool
	}{
		{"held by someone else", "ada", "", true},
		{"case insensitive", "Ada", "", true},
		{"held by the caller", "ada", ada.ID, false},
		{"free", "linus", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.UsernameTaken(ctx, tt.username, tt.exclude)
			if err != nil {
				t.Fatalf("UsernameTaken() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("UsernameTaken(%q) = %v, want %v", tt.username, got, tt.want)
			}
		})
	}
}

func TestSetUsername(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "ada")
	bob := &model.User{SubjectID: "sub_bob", Username: "user_tmp", NeedsUsernameSetup: true}
	if err := db.CreateUser(ctx, bob); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if err := db.SetUsername(ctx, bob.ID, "ADA"); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("SetUsername(taken) error = %v, want ErrConflict", err)
	}

	if err := db.SetUsername(ctx, bob.ID, "bob"); err != nil {
		t.Fatalf("SetUsername() error = %v", err)
	}
	got, _ := db.GetUserByID(ctx, bob.ID)
	if got.Username != "bob" || got.NeedsUsernameSetup {
		t.Errorf("after SetUsername: username=%q needsSetup=%v", got.Username, got.NeedsUsernameSetup)
	}

	if err := db.SetUsername(ctx, "missing", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetUsername(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRebindSubject(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestUser(t, db, "ada")

	if err := db.RebindSubject(ctx, ada.ID, "sub_new", "Ada L", "pic.png"); err != nil {
		t.Fatalf("RebindSubject() error = %v", err)
	}
	got, err := db.GetUserBySubject(ctx, "sub_new")
	if err != nil {
		t.Fatalf("GetUserBySubject() error = %v", err)
	}
	if got.ID != ada.ID || got.Name != "Ada L" || !got.NeedsUsernameSetup {
		t.Errorf("rebound user = %+v", got)
	}
}

func TestUpdateProfile_OnlyTouchesGivenFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestUser(t, db, "ada")

	bio := "compilers"
	if err := db.UpdateProfile(ctx, ada.ID, model.ProfileUpdate{Bio: &bio}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	got, _ := db.GetUserByID(ctx, ada.ID)
	if got.Bio != "compilers" || got.Name != "ada" {
		t.Errorf("after UpdateProfile: bio=%q name=%q", got.Bio, got.Name)
	}
}

func TestSetRoleAndReputation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestUser(t, db, "ada")

	if err := db.SetRole(ctx, ada.ID, model.RoleModerator); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	if err := db.AdjustReputation(ctx, ada.ID, 10); err != nil {
		t.Fatalf("AdjustReputation() error = %v", err)
	}
	if err := db.AdjustReputation(ctx, ada.ID, -12); err != nil {
		t.Fatalf("AdjustReputation() error = %v", err)
	}

	got, _ := db.GetUserByID(ctx, ada.ID)
	if got.Role != model.RoleModerator {
		t.Errorf("Role = %q, want moderator", got.Role)
	}
	if got.Reputation != -2 {
		t.Errorf("Reputation = %d, want -2 (reputation may go negative)", got.Reputation)
	}

	if err := db.AdjustReputation(ctx, "missing", 1); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AdjustReputation(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// BANS
// =========================================================================

func TestSetBan_RoundTripAndClear(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestUser(t, db, "ada")

	bannedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	expires := bannedAt.Add(48 * time.Hour)
	if err := db.SetBan(ctx, ada.ID, &model.Ban{Reason: "spam", BannedAt: bannedAt, Expires: &expires}); err != nil {
		t.Fatalf("SetBan() error = %v", err)
	}

	got, _ := db.GetUserByID(ctx, ada.ID)
	if got.Ban == nil {
		t.Fatal("Ban = nil after SetBan")
	}
	if got.Ban.Reason != "spam" || !got.Ban.BannedAt.Equal(bannedAt) {
		t.Errorf("Ban = %+v", got.Ban)
	}
	if got.Ban.Expires == nil || !got.Ban.Expires.Equal(expires) {
		t.Errorf("Ban.Expires = %v, want %v", got.Ban.Expires, expires)
	}

	if err := db.SetBan(ctx, ada.ID, nil); err != nil {
		t.Fatalf("SetBan(nil) error = %v", err)
	}
	got, _ = db.GetUserByID(ctx, ada.ID)
	if got.Ban != nil {
		t.Errorf("Ban = %+v after clearing, want nil", got.Ban)
	}
}

func TestListExpiredBans(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	expired := createTestUser(t, db, "expired")
	exact := createTestUser(t, db, "exact")
	running := createTestUser(t, db, "running")
	permanent := createTestUser(t, db, "permanent")

	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	for _, b := range []struct {
		id      string
		expires *time.Time
	}{
		{expired.ID, &past},
		{exact.ID, &now},
		{running.ID, &future},
		{permanent.ID, nil},
	} {
		if err := db.SetBan(ctx, b.id, &model.Ban{Reason: "x", BannedAt: past, Expires: b.expires}); err != nil {
			t.Fatalf("SetBan() error = %v", err)
		}
	}

	ids, err := db.ListExpiredBans(ctx, now)
	if err != nil {
		t.Fatalf("ListExpiredBans() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != expired.ID || ids[1] != exact.ID {
		t.Errorf("ListExpiredBans() = %v, want [%s %s]", ids, expired.ID, exact.ID)
	}
}

// =========================================================================
// LIST
// =========================================================================

func TestListUsers_SearchSortAndPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"alice", "alfred", "bob", "carol_x"} {
		u := &model.User{
			SubjectID:  "sub_" + name,
			Name:       name,
			Username:   name,
			Reputation: i * 10,
			JoinedAt:   base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", name, err)
		}
	}

	users, total, err := db.ListUsers(ctx, repository.UserQuery{Search: "AL"})
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Errorf("search AL: total=%d len=%d, want 2", total, len(users))
	}

	// "_" is a LIKE wildcard and must be matched literally.
	_, total, _ = db.ListUsers(ctx, repository.UserQuery{Search: "l_x"})
	if total != 1 {
		t.Errorf("search l_x: total=%d, want 1", total)
	}

	users, _, _ = db.ListUsers(ctx, repository.UserQuery{Sort: repository.UserSortReputation})
	if users[0].Username != "carol_x" {
		t.Errorf("top by reputation = %s, want carol_x", users[0].Username)
	}

	users, _, _ = db.ListUsers(ctx, repository.UserQuery{Sort: repository.UserSortNewest})
	if users[0].Username != "carol_x" || users[3].Username != "alice" {
		t.Errorf("newest order = %s..%s", users[0].Username, users[3].Username)
	}

	users, total, _ = db.ListUsers(ctx, repository.UserQuery{
		Sort:        repository.UserSortOldest,
		ListOptions: repository.ListOptions{Limit: 2, Offset: 2},
	})
	if total != 4 || len(users) != 2 || users[0].Username != "bob" {
		t.Errorf("page 2: total=%d users=%v", total, users)
	}
}
