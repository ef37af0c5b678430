// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. It is the default
// backend for local and single-server deployments; the postgres package covers the
// hosted-database case behind the same interfaces.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go translation
// of the SQLite C code.
//
// MIGRATIONS:
// Schema changes live in migrations/*.sql and are embedded into the binary.
// goose records which ones already ran in its own goose_db_version table, so
// New() is safe to call on an existing database file.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"

	"github.com/sakif/smart-bookmarks/internal/repository"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named "sqlite".
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// psql is the statement builder shared by the repositories in this package.
// SQLite uses "?" placeholders, which is squirrel's default.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// DB wraps a sql.DB connection pool and hands out the repositories that share it.
type DB struct {
	conn      *sql.DB
	bookmarks *BookmarkDB
	users     *UserDB
}

var _ repository.Store = (*DB)(nil)

// New opens (or creates) the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/bookmarks.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	inMemory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")

	dsn := dbPath
	if !inMemory {
		// _pragma parameters apply to every connection the pool opens,
		// unlike a one-off PRAGMA statement.
		dsn = dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is its own empty database, so the pool
	// must never open a second one.
	if inMemory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{
		conn:      conn,
		bookmarks: &BookmarkDB{conn: conn},
		users:     &UserDB{conn: conn},
	}, nil
}

// Bookmarks returns the bookmark repository backed by this database.
func (db *DB) Bookmarks() repository.BookmarkRepository { return db.bookmarks }

// Users returns the user repository backed by this database.
func (db *DB) Users() repository.UserRepository { return db.users }

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func migrate(conn *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
