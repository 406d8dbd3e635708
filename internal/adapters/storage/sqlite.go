package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/mattn/go-sqlite3"
)

var _ core.RecordStore = (*SQLiteStore)(nil)

// SQLiteStore handles SQLite database operations.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/reviewhub.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/reviewhub.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		username TEXT UNIQUE NOT NULL COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		file_key TEXT NOT NULL,
		file_name TEXT NOT NULL,
		format TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS portfolio_items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		media_key TEXT NOT NULL,
		file_name TEXT NOT NULL,
		media_type TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);
	CREATE INDEX IF NOT EXISTS idx_projects_status_expiry ON projects(status, expires_at);
	CREATE INDEX IF NOT EXISTS idx_portfolio_owner ON portfolio_items(owner_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func sqliteErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return domain.ErrConflict
	}
	return err
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, tier, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.Tier, millis(u.CreatedAt))
	return sqliteErr(err)
}

const sqliteUserColumns = `id, email, username, password_hash, tier, created_at`

func scanSQLiteUser(row *sql.Row) (*domain.User, error) {
	u := &domain.User{}
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Tier, &created); err != nil {
		return nil, sqliteErr(err)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, strings.ToLower(email)))
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE username = ?`, username))
}

const sqliteProjectColumns = `id, owner_id, name, file_key, file_name, format, size_bytes, password_hash, status, expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProject(row rowScanner) (*domain.Project, error) {
	p := &domain.Project{}
	var expires, created, updated int64
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.FileKey, &p.FileName, &p.Format,
		&p.SizeBytes, &p.PasswordHash, &p.Status, &expires, &created, &updated)
	if err != nil {
		return nil, sqliteErr(err)
	}
	p.ExpiresAt = fromMillis(expires)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *domain.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+sqliteProjectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.OwnerID, p.Name, p.FileKey, p.FileName, p.Format, p.SizeBytes, p.PasswordHash,
		p.Status, millis(p.ExpiresAt), millis(p.CreatedAt), millis(p.UpdatedAt))
	return sqliteErr(err)
}

func (s *SQLiteStore) GetProject(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	return scanSQLiteProject(s.db.QueryRowContext(ctx, `SELECT `+sqliteProjectColumns+` FROM projects WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *domain.Project) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, password_hash = ?, status = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.PasswordHash, p.Status, millis(p.ExpiresAt), millis(p.UpdatedAt), p.ID)
	if err != nil {
		return sqliteErr(err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id domain.ProjectID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *SQLiteStore) ListProjectsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteProjectColumns+` FROM projects
		WHERE owner_id = ? ORDER BY created_at, id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanSQLiteProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountActiveProjects(ctx context.Context, owner domain.UserID, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projects
		WHERE owner_id = ? AND status = 'active' AND expires_at > ?
	`, owner, millis(now)).Scan(&n)
	return n, err
}

func (s *SQLiteStore) ExpireProjects(ctx context.Context, now time.Time) ([]domain.ProjectID, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE projects SET status = 'expired', updated_at = ?
		WHERE status = 'active' AND expires_at <= ?
		RETURNING id
	`, millis(now), millis(now))
	if err != nil {
		return nil, fmt.Errorf("expire projects: %w", err)
	}
	defer rows.Close()

	var ids []domain.ProjectID
	for rows.Next() {
		var id domain.ProjectID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const sqlitePortfolioColumns = `id, owner_id, title, description, media_key, file_name, media_type, project_id, created_at`

func scanSQLitePortfolio(row rowScanner) (*domain.PortfolioItem, error) {
	it := &domain.PortfolioItem{}
	var created int64
	err := row.Scan(&it.ID, &it.OwnerID, &it.Title, &it.Description, &it.MediaKey,
		&it.FileName, &it.MediaType, &it.ProjectID, &created)
	if err != nil {
		return nil, sqliteErr(err)
	}
	it.CreatedAt = fromMillis(created)
	return it, nil
}

func (s *SQLiteStore) CreatePortfolioItem(ctx context.Context, it *domain.PortfolioItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio_items (`+sqlitePortfolioColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, it.OwnerID, it.Title, it.Description, it.MediaKey, it.FileName, it.MediaType,
		it.ProjectID, millis(it.CreatedAt))
	return sqliteErr(err)
}

func (s *SQLiteStore) GetPortfolioItem(ctx context.Context, id domain.PortfolioItemID) (*domain.PortfolioItem, error) {
	return scanSQLitePortfolio(s.db.QueryRowContext(ctx, `SELECT `+sqlitePortfolioColumns+` FROM portfolio_items WHERE id = ?`, id))
}

func (s *SQLiteStore) DeletePortfolioItem(ctx context.Context, id domain.PortfolioItemID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM portfolio_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *SQLiteStore) ListPortfolioByOwner(ctx context.Context, owner domain.UserID) ([]domain.PortfolioItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqlitePortfolioColumns+` FROM portfolio_items
		WHERE owner_id = ? ORDER BY created_at, id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PortfolioItem
	for rows.Next() {
		it, err := scanSQLitePortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}
