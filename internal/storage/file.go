package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileStore keeps one file per key under a base directory. No locking: the
// record may be rewritten by another process between reads, and callers accept
// the resulting staleness.
type FileStore struct {
	fs  afero.Fs
	dir string
}

func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	return afero.WriteFile(s.fs, s.path(key), value, 0o600)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	err := s.fs.Remove(s.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) path(key string) string {
	// Keys are namespace identifiers, not user input, but keep them filename-safe.
	safe := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(key)
	return filepath.Join(s.dir, safe+".json")
}
