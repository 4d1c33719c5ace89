// Package sqlite implements repository.Store on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, trivial
// cross-compilation. The driver registers itself with database/sql as "sqlite".
//
// TRANSACTIONS:
// Every repository method runs through the `querier` interface, which both
// *sql.DB and *sql.Tx satisfy. InTx hands the callback a second *DB whose
// querier is the transaction, so the same method set works inside and
// outside a transaction. That is what lets the vote engine and the cascading
// delete commit (or roll back) as one unit.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/repository"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// compile-time check that *DB implements the whole data layer
var _ repository.Store = (*DB)(nil)

// querier is the subset of *sql.DB / *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and provides the repository methods.
// A *DB returned by InTx is bound to a single transaction.
type DB struct {
	conn *sql.DB
	q    querier
	tx   *sql.Tx
}

// New opens (or creates) the database at dbPath and applies migrations.
//
// dbPath examples:
//   - "data/forum.db" → file-based database
//   - ":memory:"      → in-memory database, used by tests
//
// Pragmas go in the DSN so that every pooled connection gets them; a plain
// "PRAGMA foreign_keys=ON" only affects whichever connection ran it.
//
// LOCKING:
// _txlock=immediate makes every transaction start with BEGIN IMMEDIATE and
// take the write lock up front. A deferred transaction that reads first and
// then writes cannot wait for the lock: SQLite fails the upgrade with
// SQLITE_BUSY straight away, busy_timeout or not. Immediate transactions
// queue on busy_timeout instead.
func New(dbPath string) (*DB, error) {
	inMemory := dbPath == ":memory:"

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if !inMemory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is its own empty database, so the pool
	// must never grow past one connection.
	if inMemory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, q: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate applies the embedded SQL migrations with golang-migrate.
//
// The migrate instance is deliberately not closed: closing the sqlite
// driver would close our *sql.DB as well.
func (db *DB) migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading migration files: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction. A nil return commits; an error (or a
// cancelled ctx) rolls everything back. Calls made on a transaction-bound
// *DB join the existing transaction instead of opening a nested one.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(&DB{conn: db.conn, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure, optionally on a specific column ("users.username").
func isUniqueViolation(err error, column string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// Primary code only: extended codes may or may not be enabled on the connection.
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	msg := se.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return column == "" || strings.Contains(msg, column)
}

// Timestamps are stored as unix nanoseconds.
func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// likePattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// mustAffect converts "0 rows affected" into a NotFound error.
func mustAffect(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

// limitOffset applies a default page size when Limit is unset.
func limitOffset(opts repository.ListOptions) (int, int) {
	limit, offset := opts.Limit, opts.Offset
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
