package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/goccy/go-json"
)

const (
	userKeyPrefix           = "user:"
	userEmailKeyPrefix      = "user_email:"
	userNameKeyPrefix       = "user_name:"
	projectKeyPrefix        = "project:"
	projectOwnerKeyPrefix   = "project_owner:"
	portfolioKeyPrefix      = "portfolio:"
	portfolioOwnerKeyPrefix = "portfolio_owner:"
)

var _ core.RecordStore = (*BadgerStore)(nil)

// BadgerStore keeps records as JSON values under prefixed keys, with
// secondary index keys pointing back at primary ids.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a store at dir. An empty dir runs in memory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// indexIDs collects the values stored under an index prefix.
func indexIDs(txn *badger.Txn, prefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			ids = append(ids, string(val))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *BadgerStore) CreateUser(ctx context.Context, u *domain.User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		emailKey := userEmailKeyPrefix + u.Email
		nameKey := userNameKeyPrefix + strings.ToLower(u.Username)
		for _, k := range []string{userKeyPrefix + string(u.ID), emailKey, nameKey} {
			taken, err := exists(txn, k)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrConflict
			}
		}
		if err := setJSON(txn, userKeyPrefix+string(u.ID), toUserRecord(u)); err != nil {
			return err
		}
		if err := txn.Set([]byte(emailKey), []byte(u.ID)); err != nil {
			return fmt.Errorf("set email index: %w", err)
		}
		return txn.Set([]byte(nameKey), []byte(u.ID))
	})
}

func (s *BadgerStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKeyPrefix+string(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

func (s *BadgerStore) userByIndex(key string) (*domain.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKeyPrefix+string(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.user(), nil
}

func (s *BadgerStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.userByIndex(userEmailKeyPrefix + strings.ToLower(email))
}

func (s *BadgerStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.userByIndex(userNameKeyPrefix + strings.ToLower(username))
}

func (s *BadgerStore) CreateProject(ctx context.Context, p *domain.Project) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := projectKeyPrefix + string(p.ID)
		taken, err := exists(txn, key)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrConflict
		}
		if err := setJSON(txn, key, toProjectRecord(p)); err != nil {
			return err
		}
		ownerKey := projectOwnerKeyPrefix + string(p.OwnerID) + ":" + string(p.ID)
		return txn.Set([]byte(ownerKey), []byte(p.ID))
	})
}

func (s *BadgerStore) GetProject(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	var rec projectRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, projectKeyPrefix+string(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.project(), nil
}

func (s *BadgerStore) UpdateProject(ctx context.Context, p *domain.Project) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := projectKeyPrefix + string(p.ID)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		return setJSON(txn, key, toProjectRecord(p))
	})
}

func (s *BadgerStore) DeleteProject(ctx context.Context, id domain.ProjectID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec projectRecord
		if err := getJSON(txn, projectKeyPrefix+string(id), &rec); err != nil {
			return err
		}
		if err := txn.Delete([]byte(projectKeyPrefix + string(id))); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		ownerKey := projectOwnerKeyPrefix + string(rec.OwnerID) + ":" + string(id)
		if err := txn.Delete([]byte(ownerKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete owner mapping: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) ListProjectsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Project, error) {
	var out []domain.Project
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := indexIDs(txn, projectOwnerKeyPrefix+string(owner)+":")
		if err != nil {
			return err
		}
		for _, id := range ids {
			var rec projectRecord
			if err := getJSON(txn, projectKeyPrefix+id, &rec); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			out = append(out, *rec.project())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) CountActiveProjects(ctx context.Context, owner domain.UserID, now time.Time) (int, error) {
	projects, err := s.ListProjectsByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range projects {
		if !projects[i].ExpiredAt(now) {
			n++
		}
	}
	return n, nil
}

func (s *BadgerStore) ExpireProjects(ctx context.Context, now time.Time) ([]domain.ProjectID, error) {
	var expired []domain.ProjectID
	err := s.db.Update(func(txn *badger.Txn) error {
		due, err := dueProjects(txn, now)
		if err != nil {
			return err
		}
		for _, rec := range due {
			rec.Status = domain.ProjectExpired
			rec.UpdatedAt = now
			if err := setJSON(txn, projectKeyPrefix+string(rec.ID), rec); err != nil {
				return err
			}
			expired = append(expired, rec.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expire projects: %w", err)
	}
	return expired, nil
}

// dueProjects scans with its own iterator so it is closed before any writes.
func dueProjects(txn *badger.Txn, now time.Time) ([]projectRecord, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var due []projectRecord
	prefix := []byte(projectKeyPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec projectRecord
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, err
		}
		if rec.Status == domain.ProjectActive && !now.Before(rec.ExpiresAt) {
			due = append(due, rec)
		}
	}
	return due, nil
}

func (s *BadgerStore) CreatePortfolioItem(ctx context.Context, it *domain.PortfolioItem) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := portfolioKeyPrefix + string(it.ID)
		taken, err := exists(txn, key)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrConflict
		}
		if err := setJSON(txn, key, toPortfolioRecord(it)); err != nil {
			return err
		}
		ownerKey := portfolioOwnerKeyPrefix + string(it.OwnerID) + ":" + string(it.ID)
		return txn.Set([]byte(ownerKey), []byte(it.ID))
	})
}

func (s *BadgerStore) GetPortfolioItem(ctx context.Context, id domain.PortfolioItemID) (*domain.PortfolioItem, error) {
	var rec portfolioRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, portfolioKeyPrefix+string(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.item(), nil
}

func (s *BadgerStore) DeletePortfolioItem(ctx context.Context, id domain.PortfolioItemID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec portfolioRecord
		if err := getJSON(txn, portfolioKeyPrefix+string(id), &rec); err != nil {
			return err
		}
		if err := txn.Delete([]byte(portfolioKeyPrefix + string(id))); err != nil {
			return fmt.Errorf("delete portfolio item: %w", err)
		}
		ownerKey := portfolioOwnerKeyPrefix + string(rec.OwnerID) + ":" + string(id)
		if err := txn.Delete([]byte(ownerKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete owner mapping: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) ListPortfolioByOwner(ctx context.Context, owner domain.UserID) ([]domain.PortfolioItem, error) {
	var out []domain.PortfolioItem
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := indexIDs(txn, portfolioOwnerKeyPrefix+string(owner)+":")
		if err != nil {
			return err
		}
		for _, id := range ids {
			var rec portfolioRecord
			if err := getJSON(txn, portfolioKeyPrefix+id, &rec); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			out = append(out, *rec.item())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}
	return out, nil
}
