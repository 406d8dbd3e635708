package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ core.RecordStore = (*PostgresStore)(nil)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users (lower(username));

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		file_key TEXT NOT NULL,
		file_name TEXT NOT NULL,
		format TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);
	CREATE INDEX IF NOT EXISTS idx_projects_status_expiry ON projects(status, expires_at);

	CREATE TABLE IF NOT EXISTS portfolio_items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		media_key TEXT NOT NULL,
		file_name TEXT NOT NULL,
		media_type TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_portfolio_owner ON portfolio_items(owner_id);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func pgErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == "23505" {
		return domain.ErrConflict
	}
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(u.ID), u.Email, u.Username, u.PasswordHash, string(u.Tier), u.CreatedAt)
	return pgErr(err)
}

const pgUserColumns = `id, email, username, password_hash, tier, created_at`

func scanPGUser(row pgx.Row) (*domain.User, error) {
	var id, tier string
	u := &domain.User{}
	if err := row.Scan(&id, &u.Email, &u.Username, &u.PasswordHash, &tier, &u.CreatedAt); err != nil {
		return nil, pgErr(err)
	}
	u.ID = domain.UserID(id)
	u.Tier = domain.Tier(tier)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return scanPGUser(s.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, string(id)))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanPGUser(s.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanPGUser(s.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

const pgProjectColumns = `id, owner_id, name, file_key, file_name, format, size_bytes, password_hash, status, expires_at, created_at, updated_at`

func scanPGProject(row pgx.Row) (*domain.Project, error) {
	var id, owner, format, status string
	p := &domain.Project{}
	err := row.Scan(&id, &owner, &p.Name, &p.FileKey, &p.FileName, &format, &p.SizeBytes,
		&p.PasswordHash, &status, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, pgErr(err)
	}
	p.ID = domain.ProjectID(id)
	p.OwnerID = domain.UserID(owner)
	p.Format = domain.ModelFormat(format)
	p.Status = domain.ProjectStatus(status)
	p.ExpiresAt = p.ExpiresAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *domain.Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (`+pgProjectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, string(p.ID), string(p.OwnerID), p.Name, p.FileKey, p.FileName, string(p.Format), p.SizeBytes,
		p.PasswordHash, string(p.Status), p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
	return pgErr(err)
}

func (s *PostgresStore) GetProject(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	return scanPGProject(s.pool.QueryRow(ctx, `SELECT `+pgProjectColumns+` FROM projects WHERE id = $1`, string(id)))
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p *domain.Project) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET name = $1, password_hash = $2, status = $3, expires_at = $4, updated_at = $5
		WHERE id = $6
	`, p.Name, p.PasswordHash, string(p.Status), p.ExpiresAt, p.UpdatedAt, string(p.ID))
	if err != nil {
		return pgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id domain.ProjectID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListProjectsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgProjectColumns+` FROM projects
		WHERE owner_id = $1 ORDER BY created_at, id
	`, string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanPGProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountActiveProjects(ctx context.Context, owner domain.UserID, now time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM projects
		WHERE owner_id = $1 AND status = 'active' AND expires_at > $2
	`, string(owner), now).Scan(&n)
	return n, err
}

func (s *PostgresStore) ExpireProjects(ctx context.Context, now time.Time) ([]domain.ProjectID, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE projects SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("expire projects: %w", err)
	}
	defer rows.Close()

	var ids []domain.ProjectID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.ProjectID(id))
	}
	return ids, rows.Err()
}

const pgPortfolioColumns = `id, owner_id, title, description, media_key, file_name, media_type, project_id, created_at`

func scanPGPortfolio(row pgx.Row) (*domain.PortfolioItem, error) {
	var id, owner, media, project string
	it := &domain.PortfolioItem{}
	err := row.Scan(&id, &owner, &it.Title, &it.Description, &it.MediaKey, &it.FileName,
		&media, &project, &it.CreatedAt)
	if err != nil {
		return nil, pgErr(err)
	}
	it.ID = domain.PortfolioItemID(id)
	it.OwnerID = domain.UserID(owner)
	it.MediaType = domain.MediaType(media)
	it.ProjectID = domain.ProjectID(project)
	it.CreatedAt = it.CreatedAt.UTC()
	return it, nil
}

func (s *PostgresStore) CreatePortfolioItem(ctx context.Context, it *domain.PortfolioItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO portfolio_items (`+pgPortfolioColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, string(it.ID), string(it.OwnerID), it.Title, it.Description, it.MediaKey, it.FileName,
		string(it.MediaType), string(it.ProjectID), it.CreatedAt)
	return pgErr(err)
}

func (s *PostgresStore) GetPortfolioItem(ctx context.Context, id domain.PortfolioItemID) (*domain.PortfolioItem, error) {
	return scanPGPortfolio(s.pool.QueryRow(ctx, `SELECT `+pgPortfolioColumns+` FROM portfolio_items WHERE id = $1`, string(id)))
}

func (s *PostgresStore) DeletePortfolioItem(ctx context.Context, id domain.PortfolioItemID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM portfolio_items WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPortfolioByOwner(ctx context.Context, owner domain.UserID) ([]domain.PortfolioItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgPortfolioColumns+` FROM portfolio_items
		WHERE owner_id = $1 ORDER BY created_at, id
	`, string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PortfolioItem
	for rows.Next() {
		it, err := scanPGPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}
