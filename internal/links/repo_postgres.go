package links

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/linkservice/internal/errx"
	"github.com/sundayezeilo/linkservice/internal/idgen"
)

// PostgresSchema creates the table PostgresRepository expects.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS links (
	id         text        PRIMARY KEY,
	title      text        NOT NULL,
	url        text        NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now()
)`

const (
	pgSelectLink = `SELECT id, title, url FROM links WHERE id = $1`
	pgListLinks  = `SELECT id, title, url FROM links ORDER BY created_at, id`
	pgInsertLink = `INSERT INTO links (id, title, url) VALUES ($1, $2, $3) RETURNING id, title, url`
	pgUpdateLink = `UPDATE links SET title = $2, url = $3 WHERE id = $1 RETURNING id, title, url`
	pgDeleteLink = `DELETE FROM links WHERE id = $1`
)

// PgQuerier abstracts *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	q      PgQuerier
	ids    idgen.Generator
	logger *slog.Logger
}

// NewPostgresRepository creates a Repository over an existing links table.
func NewPostgresRepository(q PgQuerier, config *RepositoryConfig) *PostgresRepository {
	cfg := config.withDefaults()
	return &PostgresRepository{
		q:      q,
		ids:    cfg.IDGenerator,
		logger: cfg.Logger,
	}
}

func mapRepoError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, ErrLinkNotFound)

	case isIDUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)

	case isDataException(err):
		return errx.E(op, errx.Invalid, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

// fail maps err and logs it when the database itself failed.
func (r *PostgresRepository) fail(ctx context.Context, op, id string, err error) error {
	mapped := mapRepoError(op, err)
	if errx.Is(mapped, errx.Unavailable) {
		r.logger.ErrorContext(ctx, "postgres query failed",
			"op", op,
			"id", id,
			"error", err.Error(),
		)
	}
	return mapped
}

func scanLink(row pgx.Row) (Link, error) {
	var link Link
	err := row.Scan(&link.ID, &link.Title, &link.URL)
	return link, err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Link, error) {
	const op = "links.postgres.Get"

	link, err := scanLink(r.q.QueryRow(ctx, pgSelectLink, id))
	if err != nil {
		return Link{}, r.fail(ctx, op, id, err)
	}
	return link, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Link, error) {
	const op = "links.postgres.List"

	rows, err := r.q.Query(ctx, pgListLinks)
	if err != nil {
		return nil, r.fail(ctx, op, "", err)
	}
	links, err := pgx.CollectRows(rows, pgx.RowToStructByName[Link])
	if err != nil {
		return nil, r.fail(ctx, op, "", err)
	}
	if links == nil {
		links = []Link{}
	}
	return links, nil
}

func (r *PostgresRepository) Create(ctx context.Context, title, url string) (Link, error) {
	const op = "links.postgres.Create"

	if err := validateTitle(title); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	id, err := r.ids.Generate()
	if err != nil {
		return Link{}, r.fail(ctx, op, "", err)
	}

	link, err := scanLink(r.q.QueryRow(ctx, pgInsertLink, id, title, url))
	if err != nil {
		return Link{}, r.fail(ctx, op, id, err)
	}
	return link, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id, title, url string) (Link, error) {
	const op = "links.postgres.Update"

	link, err := scanLink(r.q.QueryRow(ctx, pgUpdateLink, id, title, url))
	if err != nil {
		return Link{}, r.fail(ctx, op, id, err)
	}
	return link, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	const op = "links.postgres.Delete"

	if _, err := r.q.Exec(ctx, pgDeleteLink, id); err != nil {
		return r.fail(ctx, op, id, err)
	}
	return nil
}
