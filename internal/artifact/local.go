// AngelaMos | 2026
// local.go

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxCollisions = 100

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalStore{dir: abs}, nil
}

// Put writes data under key without overwriting an existing file. The
// returned reference is the key actually used, relative to the store root.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for n := 1; n <= maxCollisions; n++ {
		candidate := nthKey(key, n)
		full, err := s.resolve(candidate)
		if err != nil {
			return "", err
		}

		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			return "", fmt.Errorf("create artifact dir: %w", err)
		}

		//nolint:gosec // G304: path is confined to the store root by resolve
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create artifact: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			//nolint:errcheck // best-effort cleanup of a failed write
			_ = f.Close()
			//nolint:errcheck // best-effort cleanup of a failed write
			_ = os.Remove(full)
			return "", fmt.Errorf("write artifact: %w", err)
		}
		if err := f.Close(); err != nil {
			//nolint:errcheck // best-effort cleanup of a failed write
			_ = os.Remove(full)
			return "", fmt.Errorf("close artifact: %w", err)
		}

		return filepath.ToSlash(candidate), nil
	}

	return "", fmt.Errorf("artifact %q: too many name collisions", key)
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	full, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Ping reports whether the store root is still a usable directory.
func (s *LocalStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat artifact dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact dir %q is not a directory", s.dir)
	}
	return nil
}

// Path returns the on-disk location of ref.
func (s *LocalStore) Path(ref string) (string, error) {
	return s.resolve(ref)
}

func (s *LocalStore) resolve(key string) (string, error) {
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if full != s.dir && !strings.HasPrefix(full, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact key %q escapes store root", key)
	}
	return full, nil
}
