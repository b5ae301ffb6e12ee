package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"git.home.luguber.info/inful/datapub/internal/errors"
)

// FileStore persists datasets as JSON documents on a billy filesystem, one
// file per dataset id. File content is not persisted; it lives in the remote
// repository once pushed.
type FileStore struct {
	fs billy.Filesystem
	mu sync.RWMutex
}

// NewFileStore creates a store over the given filesystem root.
func NewFileStore(fs billy.Filesystem) *FileStore {
	return &FileStore{fs: fs}
}

func datasetPath(id string) string {
	return id + ".json"
}

// Get loads a dataset by id.
func (s *FileStore) Get(_ context.Context, id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := util.ReadFile(s.fs, datasetPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CategoryNotFound, errors.SeverityError,
				fmt.Sprintf("dataset %s not found", id))
		}
		return nil, fmt.Errorf("read dataset %s: %w", id, err)
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", id, err)
	}
	return &ds, nil
}

// Save writes a dataset, replacing any previous record atomically via a
// temporary file and rename.
func (s *FileStore) Save(_ context.Context, ds *Dataset) error {
	if ds.ID == "" {
		return errors.ValidationError("dataset id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dataset %s: %w", ds.ID, err)
	}

	tmp := datasetPath(ds.ID) + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write dataset %s: %w", ds.ID, err)
	}
	if err := s.fs.Rename(tmp, datasetPath(ds.ID)); err != nil {
		return fmt.Errorf("store dataset %s: %w", ds.ID, err)
	}
	return nil
}

// Delete removes a dataset record. Missing records are ignored.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(datasetPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete dataset %s: %w", id, err)
	}
	return nil
}
