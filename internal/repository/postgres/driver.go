// Package postgres implements the repository interfaces on a hosted PostgreSQL
// database. Select it with BOOKMARKS_DB_DRIVER=postgres.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/sakif/smart-bookmarks/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

// psql builds statements with PostgreSQL's $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Driver owns the connection pool and the repositories built on it.
type Driver struct {
	db        *pgxpool.Pool
	bookmarks *BookmarkRepository
	users     *UserRepository
}

var _ repository.Store = (*Driver)(nil)

// Open migrates the database to the latest schema and connects the pool.
func Open(ctx context.Context, dsn string) (*Driver, error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: loading migrations: %w", err)
	}
	migrator, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating migrator: %w", err)
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	return &Driver{
		db:        pool,
		bookmarks: &BookmarkRepository{db: pool},
		users:     &UserRepository{db: pool},
	}, nil
}

func (d *Driver) Bookmarks() repository.BookmarkRepository { return d.bookmarks }

func (d *Driver) Users() repository.UserRepository { return d.users }

// Close closes the pool. pgxpool.Close does not report errors.
func (d *Driver) Close() error {
	d.db.Close()
	return nil
}
