package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"vidgrab/internal/fileutil"
	"vidgrab/internal/services"
)

// LocalStore keeps artifacts under root as <jobID>/<name>.
type LocalStore struct {
	root string
}

// NewLocalStore constructs a store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

// Backend implements Store.
func (s *LocalStore) Backend() string { return "local" }

// Publish implements Store.
func (s *LocalStore) Publish(_ context.Context, jobID, localPath, name string) (Artifact, error) {
	key := Key(jobID, name)
	dst, err := s.path(key)
	if err != nil {
		return Artifact{}, err
	}
	if err := fileutil.MoveFile(localPath, dst); err != nil {
		return Artifact{}, fmt.Errorf("publish artifact %s: %w", key, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat artifact %s: %w", key, err)
	}
	return Artifact{Key: key, Name: name, Size: info.Size(), ContentType: ContentTypeFor(name)}, nil
}

// Open implements Store.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, services.Wrap(services.ErrNotFound, "artifact", "open", "artifact no longer exists", nil)
		}
		return nil, 0, fmt.Errorf("open artifact %s: %w", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, fmt.Errorf("stat artifact %s: %w", key, err)
	}
	return file, info.Size(), nil
}

// Remove implements Store.
func (s *LocalStore) Remove(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", key, err)
	}
	fileutil.RemoveEmptyParents(filepath.Dir(p), s.root)
	return nil
}

func (s *LocalStore) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", services.Wrap(services.ErrInvalidInput, "artifact", "resolve key", fmt.Sprintf("invalid artifact key %q", key), nil)
	}
	return filepath.Join(s.root, rel), nil
}
