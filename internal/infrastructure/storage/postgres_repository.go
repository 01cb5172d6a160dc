package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

const createTableTemplate = `CREATE TABLE IF NOT EXISTS %s (title TEXT, url TEXT, published_date DATE, content TEXT, source TEXT)`

var (
	tableNameExpr  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	articleColumns = []string{"title", "url", "published_date", "content", "source"}
)

// DB is the slice of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository appends relevant articles into Postgres.
type PostgresRepository struct {
	db      DB
	builder sq.StatementBuilderType
}

var _ ports.ArticleStore = (*PostgresRepository)(nil)

// NewPostgresRepository wires a pgx pool (or anything shaped like one).
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the article table when it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context, table string) error {
	ident, err := r.prepare(table)
	if err != nil {
		return &domain.StorageError{Op: "ensure schema", Table: table, Err: err}
	}

	if _, err := r.db.Exec(ctx, fmt.Sprintf(createTableTemplate, ident)); err != nil {
		return &domain.StorageError{Op: "ensure schema", Table: table, Err: err}
	}
	return nil
}

// Append inserts one row per article inside a single transaction. Rows are
// not deduplicated; an empty slice is a no-op.
func (r *PostgresRepository) Append(ctx context.Context, table string, articles []domain.Article) error {
	if len(articles) == 0 {
		return nil
	}

	ident, err := r.prepare(table)
	if err != nil {
		return &domain.StorageError{Op: "append", Table: table, Err: err}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return &domain.StorageError{Op: "append", Table: table, Err: fmt.Errorf("begin: %w", err)}
	}

	for _, article := range articles {
		query, args, err := r.builder.
			Insert(ident).
			Columns(articleColumns...).
			Values(article.Title, article.URL, article.PublishedDate, article.Content, article.Source).
			ToSql()
		if err != nil {
			return r.rollback(ctx, tx, table, fmt.Errorf("build insert: %w", err))
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return r.rollback(ctx, tx, table, fmt.Errorf("insert %s: %w", article.URL, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.StorageError{Op: "append", Table: table, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func (r *PostgresRepository) prepare(table string) (string, error) {
	if r == nil || r.db == nil {
		return "", errors.New("database connection not available")
	}
	if !tableNameExpr.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

func (r *PostgresRepository) rollback(ctx context.Context, tx pgx.Tx, table string, cause error) error {
	if rbErr := tx.Rollback(ctx); rbErr != nil {
		cause = errors.Join(cause, fmt.Errorf("rollback: %w", rbErr))
	}
	return &domain.StorageError{Op: "append", Table: table, Err: cause}
}
