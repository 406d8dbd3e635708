// Package blob stores uploaded model and portfolio files.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var ErrInvalidKey = errors.New("invalid blob key")

// FSStore keeps blobs as files under a root directory of an afero filesystem.
type FSStore struct {
	fs afero.Fs
}

var _ core.BlobStore = (*FSStore)(nil)

// NewFSStore roots the store at dir on the OS filesystem.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob dir: %w", err)
	}
	return NewStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewStore wraps any afero filesystem, e.g. afero.NewMemMapFs() in tests.
func NewStore(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// cleanKey accepts relative slash-separated keys that stay inside the root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}

// Put writes to a temporary sibling first so a failed upload never leaves a partial blob.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	k, err := cleanKey(key)
	if err != nil {
		return 0, err
	}
	if err := s.fs.MkdirAll(path.Dir(k), 0o750); err != nil {
		return 0, fmt.Errorf("blob mkdir: %w", err)
	}
	tmp := k + ".tmp-" + ulid.Make().String()
	f, err := s.fs.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("blob create: %w", err)
	}
	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return n, fmt.Errorf("blob write %s: %w", k, err)
	}
	if err := s.fs.Rename(tmp, k); err != nil {
		_ = s.fs.Remove(tmp)
		return n, fmt.Errorf("blob rename %s: %w", k, err)
	}
	log.Debug().Str("module", "adapters.blob").Str("key", k).Int64("bytes", n).Msg("blob stored")
	return n, nil
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(k)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("blob open %s: %w", k, err)
	}
	return f, nil
}

// Delete is a no-op for missing keys.
func (s *FSStore) Delete(_ context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(k); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob delete %s: %w", k, err)
	}
	return nil
}

func (s *FSStore) Ping(context.Context) error {
	_, err := s.fs.Stat(".")
	return err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
