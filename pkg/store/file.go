package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

// FileSnapshotStore keeps the snapshot in a single local file. Saves go
// through a temporary file in the same directory and a rename, so a crash
// never leaves a half-written snapshot behind.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore returns a store writing to path. Missing parent
// directories are created on the first Save.
func NewFileSnapshotStore(path string) (*FileSnapshotStore, error) {
	if path == "" {
		return nil, errors.New("snapshot path is empty")
	}
	return &FileSnapshotStore{path: path}, nil
}

// Path returns the snapshot file location.
func (s *FileSnapshotStore) Path() string {
	return s.path
}

func (s *FileSnapshotStore) Save(ctx context.Context, snap common.GraphSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := EncodeSnapshot(tmp, snap); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Load(ctx context.Context) (common.GraphSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return common.GraphSnapshot{}, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return common.GraphSnapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, s.path)
	}
	if err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	return DecodeSnapshot(f)
}
