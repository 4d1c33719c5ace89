package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/repository"
)

const userColumns = `id, subject_id, name, username, email, picture, bio, location,
	portfolio_website, role, reputation, is_banned, ban_reason, banned_at,
	ban_expires_at, needs_username_setup, joined_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one users row. The four ban columns collapse into the
// single optional model.Ban value here, and nowhere else.
func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                    model.User
		role                 string
		email, banReason     sql.NullString
		bannedAt, banExpires sql.NullInt64
		isBanned             bool
		joinedAt             int64
	)
	err := row.Scan(
		&u.ID,
		&u.SubjectID,
		&u.Name,
		&u.Username,
		&email,
		&u.Picture,
		&u.Bio,
		&u.Location,
		&u.PortfolioWebsite,
		&role,
		&u.Reputation,
		&isBanned,
		&banReason,
		&bannedAt,
		&banExpires,
		&u.NeedsUsernameSetup,
		&joinedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Email = email.String
	u.Role = model.Role(role)
	u.JoinedAt = fromUnix(joinedAt)

	if isBanned {
		ban := &model.Ban{Reason: banReason.String}
		if bannedAt.Valid {
			ban.BannedAt = fromUnix(bannedAt.Int64)
		}
		if banExpires.Valid {
			exp := fromUnix(banExpires.Int64)
			ban.Expires = &exp
		}
		u.Ban = ban
	}

	return &u, nil
}

// CreateUser inserts a new user, filling in ID, JoinedAt and a default role.
// Unique violations on subject, username or email come back as apperror.Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = model.RoleMember
	}

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO users (id, subject_id, name, username, email, picture, bio, location,
			portfolio_website, role, reputation, needs_username_setup, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.SubjectID,
		user.Name,
		user.Username,
		nullString(user.Email),
		user.Picture,
		user.Bio,
		user.Location,
		user.PortfolioWebsite,
		string(user.Role),
		user.Reputation,
		user.NeedsUsernameSetup,
		toUnix(user.JoinedAt),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users.subject_id"):
			return apperror.Conflict("subject", user.SubjectID)
		case isUniqueViolation(err, "users.username"):
			return apperror.Conflict("username", user.Username)
		case isUniqueViolation(err, "users.email"):
			return apperror.Conflict("email", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user (subject=%s): %w", user.SubjectID, err)
	}
	return nil
}

func (db *DB) getUserWhere(ctx context.Context, column, value string) (*model.User, error) {
	row := db.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %s: %w", column, value, err)
	}
	return u, nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserWhere(ctx, "id", id)
}

// GetUserBySubject looks a user up by the identity provider's subject id.
func (db *DB) GetUserBySubject(ctx context.Context, subjectID string) (*model.User, error) {
	return db.getUserWhere(ctx, "subject_id", subjectID)
}

// GetUserByEmail matches case-insensitively (the column is COLLATE NOCASE).
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, apperror.NotFound("user", email)
	}
	return db.getUserWhere(ctx, "email", email)
}

func (db *DB) UsernameTaken(ctx context.Context, username, excludeUserID string) (bool, error) {
	var exists bool
	err := db.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = ? AND id <> ?)`,
		username, excludeUserID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", username, err)
	}
	return exists, nil
}

func (db *DB) RebindSubject(ctx context.Context, userID, subjectID, name, picture string) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE users SET subject_id = ?, name = ?, picture = ?, needs_username_setup = 1
		 WHERE id = ?`,
		subjectID, name, picture, userID,
	)
	if err != nil {
		if isUniqueViolation(err, "users.subject_id") {
			return apperror.Conflict("subject", subjectID)
		}
		return fmt.Errorf("sqlite: rebinding user %s: %w", userID, err)
	}
	return mustAffect(res, "user", userID)
}

// SetUsername stores a chosen username and marks setup complete. The unique
// index is the authoritative availability check.
func (db *DB) SetUsername(ctx context.Context, userID, username string) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE users SET username = ?, needs_username_setup = 0 WHERE id = ?`,
		username, userID,
	)
	if err != nil {
		if isUniqueViolation(err, "users.username") {
			return apperror.Conflict("username", username)
		}
		return fmt.Errorf("sqlite: setting username for user %s: %w", userID, err)
	}
	return mustAffect(res, "user", userID)
}

func (db *DB) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error {
	opt := func(s *string) sql.NullString {
		if s == nil {
			return sql.NullString{}
		}
		return sql.NullString{String: *s, Valid: true}
	}

	res, err := db.q.ExecContext(ctx,
		`UPDATE users SET
			name = COALESCE(?, name),
			bio = COALESCE(?, bio),
			location = COALESCE(?, location),
			portfolio_website = COALESCE(?, portfolio_website)
		 WHERE id = ?`,
		opt(update.Name),
		opt(update.Bio),
		opt(update.Location),
		opt(update.PortfolioWebsite),
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile for user %s: %w", userID, err)
	}
	return mustAffect(res, "user", userID)
}

func (db *DB) SetRole(ctx context.Context, userID string, role model.Role) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ?`, string(role), userID)
	if err != nil {
		return fmt.Errorf("sqlite: setting role for user %s: %w", userID, err)
	}
	return mustAffect(res, "user", userID)
}

// SetBan writes all four ban columns in one statement, so an unban can never
// leave a stale reason or expiry behind.
func (db *DB) SetBan(ctx context.Context, userID string, ban *model.Ban) error {
	var (
		res sql.Result
		err error
	)
	if ban == nil {
		res, err = db.q.ExecContext(ctx,
			`UPDATE users SET is_banned = 0, ban_reason = NULL, banned_at = NULL, ban_expires_at = NULL
			 WHERE id = ?`, userID)
	} else {
		res, err = db.q.ExecContext(ctx,
			`UPDATE users SET is_banned = 1, ban_reason = ?, banned_at = ?, ban_expires_at = ?
			 WHERE id = ?`,
			ban.Reason, toUnix(ban.BannedAt), nullUnix(ban.Expires), userID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: setting ban for user %s: %w", userID, err)
	}
	return mustAffect(res, "user", userID)
}

func (db *DB) AdjustReputation(ctx context.Context, userID string, delta int) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE users SET reputation = reputation + ? WHERE id = ?`, delta, userID)
	if err != nil {
		return fmt.Errorf("sqlite: adjusting reputation for user %s: %w", userID, err)
	}
	return mustAffect(res, "user", userID)
}

// ListUsers returns one page of users plus the total number matching the search.
func (db *DB) ListUsers(ctx context.Context, q repository.UserQuery) ([]model.User, int, error) {
	where, args := "", []any{}
	if q.Search != "" {
		where = ` WHERE name LIKE ? ESCAPE '\' OR username LIKE ? ESCAPE '\'`
		p := likePattern(q.Search)
		args = append(args, p, p)
	}

	var total int
	if err := db.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	order := "rowid"
	switch q.Sort {
	case repository.UserSortNewest:
		order = "joined_at DESC, rowid DESC"
	case repository.UserSortOldest:
		order = "joined_at ASC, rowid ASC"
	case repository.UserSortReputation:
		order = "reputation DESC, rowid ASC"
	}

	limit, offset := limitOffset(q.ListOptions)
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, total, nil
}

// ListExpiredBans returns the ids of users whose temporary ban ended at or before now.
func (db *DB) ListExpiredBans(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT id FROM users
		 WHERE is_banned = 1 AND ban_expires_at IS NOT NULL AND ban_expires_at <= ?
		 ORDER BY ban_expires_at`,
		toUnix(now),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing expired bans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning expired ban: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	return mustAffect(res, "user", id)
}

// AuthorStats counts a user's questions, answers, upvotes received and question views.
func (db *DB) AuthorStats(ctx context.Context, userID string) (model.AuthorStats, error) {
	var s model.AuthorStats
	err := db.q.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM questions WHERE author_id = ?),
			(SELECT COUNT(*) FROM answers WHERE author_id = ?),
			(SELECT COUNT(*) FROM question_votes v JOIN questions q ON q.id = v.question_id
			  WHERE q.author_id = ? AND v.direction = 1),
			(SELECT COUNT(*) FROM answer_votes v JOIN answers a ON a.id = v.answer_id
			  WHERE a.author_id = ? AND v.direction = 1),
			(SELECT COALESCE(SUM(views), 0) FROM questions WHERE author_id = ?)`,
		userID, userID, userID, userID, userID,
	).Scan(&s.Questions, &s.Answers, &s.QuestionUpvotes, &s.AnswerUpvotes, &s.QuestionViews)
	if err != nil {
		return model.AuthorStats{}, fmt.Errorf("sqlite: computing stats for user %s: %w", userID, err)
	}
	return s, nil
}
