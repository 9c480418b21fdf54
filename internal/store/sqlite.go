package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// deleteChunk bounds the row count in a single physical-delete statement so
// a large cleanup never holds one oversized transaction.
const deleteChunk = 500

// selectChunk bounds how many stale ids are read per cleanupOlderInactive
// pass before the matching rows are deleted.
const selectChunk = 1000

// Config configures the SQLite-backed repository.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

type sqliteRepo struct {
	db  *sql.DB
	log logx.Logger
	qb  sq.StatementBuilderType
}

// OpenDB opens (creating if necessary) the SQLite database at cfg.Path with
// the pragmas this codebase's single-writer access pattern needs. The
// returned handle is also used, unmigrated, as the backing store for
// internal/cache and internal/ratelimit's own kv tables, so that the
// endpoint table, the recency cache, and rate-limit state all live in one
// durable file — the closest a single-process SQLite deployment gets to the
// "shared cache namespace" the notification pipeline was designed against.
func OpenDB(cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// A single-writer engine is happiest with one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busyMS := cfg.BusyTimeout.Milliseconds()
	if busyMS <= 0 {
		busyMS = 5000
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyMS)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewRepository migrates the webhooks table on db and returns a Repository
// backed by it. db should come from OpenDB.
func NewRepository(db *sql.DB, log logx.Logger) (Repository, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &sqliteRepo{db: db, log: log, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := r.migrate(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Open opens the database at cfg.Path and returns a migrated Repository
// over its own dedicated handle.
func Open(cfg Config, log logx.Logger) (Repository, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	r, err := NewRepository(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *sqliteRepo) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, string(b))
	return err
}

func (r *sqliteRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func scanEndpoint(row interface{ Scan(...any) error }) (Endpoint, error) {
	var e Endpoint
	var isActive int
	var created, updated string
	if err := row.Scan(&e.ID, &e.URL, &isActive, &created, &updated); err != nil {
		return Endpoint{}, err
	}
	e.Active = isActive != 0
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return e, nil
}

// CreateOrReactivate finds-or-inserts under a single transaction: the read
// that decides insert-vs-reactivate and the write it picks happen against
// one held connection. OpenDB caps the pool at one connection (this
// codebase's single-writer access pattern), so holding a *sql.Tx for the
// whole read-then-write sequence blocks any second CreateOrReactivate call
// from acquiring a connection until the first commits — two callers racing
// the same canonical URL serialize instead of both passing the not-found
// check and one losing to the url UNIQUE constraint.
func (r *sqliteRepo) CreateOrReactivate(ctx context.Context, rawURL string) (Endpoint, error) {
	canon := Canonicalize(rawURL)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Endpoint{}, err
	}
	defer tx.Rollback()

	existing, err := findByURLTx(ctx, tx, canon)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	switch {
	case err == nil:
		if existing.Active {
			return existing, tx.Commit()
		}
		if _, err := tx.ExecContext(ctx, `UPDATE webhooks SET is_active = 1, updated_at = ? WHERE id = ?`, now, existing.ID); err != nil {
			return Endpoint{}, err
		}
		ep, err := findByIDTx(ctx, tx, existing.ID)
		if err != nil {
			return Endpoint{}, err
		}
		return ep, tx.Commit()

	case errors.Is(err, ErrNotFound):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO webhooks(url, is_active, created_at, updated_at) VALUES(?, 1, ?, ?)`,
			canon, now, now)
		if err != nil {
			return Endpoint{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return Endpoint{}, err
		}
		ep, err := findByIDTx(ctx, tx, id)
		if err != nil {
			return Endpoint{}, err
		}
		return ep, tx.Commit()

	default:
		return Endpoint{}, err
	}
}

func findByURLTx(ctx context.Context, tx *sql.Tx, canon string) (Endpoint, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, url, is_active, created_at, updated_at FROM webhooks WHERE url = ?`, canon)
	e, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return e, err
}

func findByIDTx(ctx context.Context, tx *sql.Tx, id int64) (Endpoint, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, url, is_active, created_at, updated_at FROM webhooks WHERE id = ?`, id)
	e, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return e, err
}

func (r *sqliteRepo) FindActive(ctx context.Context) ([]Endpoint, error) {
	q, args, err := r.qb.Select("id", "url", "is_active", "created_at", "updated_at").
		From("webhooks").Where(sq.Eq{"is_active": 1}).OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) FindByID(ctx context.Context, id int64) (Endpoint, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, url, is_active, created_at, updated_at FROM webhooks WHERE id = ?`, id)
	e, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return e, err
}

func (r *sqliteRepo) FindByURL(ctx context.Context, rawURL string) (Endpoint, error) {
	canon := Canonicalize(rawURL)
	row := r.db.QueryRowContext(ctx, `SELECT id, url, is_active, created_at, updated_at FROM webhooks WHERE url = ?`, canon)
	e, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	return e, err
}

func (r *sqliteRepo) Deactivate(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := r.db.ExecContext(ctx, `UPDATE webhooks SET is_active = 0, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) DeletePermanent(ctx context.Context, ids []int64) (int, error) {
	total := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		q, args, err := r.qb.Delete("webhooks").Where(sq.Eq{"id": chunk}).ToSql()
		if err != nil {
			return total, err
		}
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

func (r *sqliteRepo) CleanupOlderInactive(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UTC().Format(time.RFC3339Nano)
	total := 0
	for {
		rows, err := r.db.QueryContext(ctx,
			`SELECT id FROM webhooks WHERE is_active = 0 AND updated_at < ? LIMIT ?`, cutoff, selectChunk)
		if err != nil {
			return total, err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return total, err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if len(ids) == 0 {
			break
		}
		n, err := r.DeletePermanent(ctx, ids)
		if err != nil {
			return total, err
		}
		total += n
		if len(ids) < selectChunk {
			break
		}
	}
	return total, nil
}

func (r *sqliteRepo) DeleteAllInactive(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE is_active = 0`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *sqliteRepo) Stats(ctx context.Context) (Stats, error) {
	oldCutoff := time.Now().Add(-30 * 24 * time.Hour).UTC().Format(time.RFC3339Nano)
	recentCutoff := time.Now().Add(-7 * 24 * time.Hour).UTC().Format(time.RFC3339Nano)

	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_active = 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_active = 0 AND updated_at < ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN is_active = 0 AND updated_at >= ? THEN 1 ELSE 0 END)
		FROM webhooks`, oldCutoff, recentCutoff)

	var s Stats
	var active, inactive, old, recent sql.NullInt64
	if err := row.Scan(&s.Total, &active, &inactive, &old, &recent); err != nil {
		return Stats{}, err
	}
	s.Active = int(active.Int64)
	s.Inactive = int(inactive.Int64)
	s.OldInactive = int(old.Int64)
	s.RecentInactive = int(recent.Int64)
	return s, nil
}

func (r *sqliteRepo) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhooks WHERE is_active = 1`).Scan(&n)
	return n, err
}

func (r *sqliteRepo) BulkCreate(ctx context.Context, urls []string) (BulkResult, error) {
	seen := make(map[string]struct{}, len(urls))
	var result BulkResult
	for _, raw := range urls {
		canon := Canonicalize(raw)
		if _, dup := seen[canon]; dup {
			result.Duplicates++
			continue
		}
		seen[canon] = struct{}{}

		existing, err := r.FindByURL(ctx, canon)
		switch {
		case errors.Is(err, ErrNotFound):
			if _, err := r.CreateOrReactivate(ctx, canon); err != nil {
				return result, err
			}
			result.Created++
		case err != nil:
			return result, err
		case existing.Active:
			result.Duplicates++
		default:
			if _, err := r.CreateOrReactivate(ctx, canon); err != nil {
				return result, err
			}
			result.Reactivated++
		}
	}
	return result, nil
}
