package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/ajaycharan/libhaloc/observation"
)

// FileStore keeps one gzip-compressed JSON record per observation inside a
// per-session directory. The directory is created by NewFileStore and removed
// by Destroy.
type FileStore struct {
	dir string
}

// NewFileStore creates a fresh session directory named ex_<unix-time> under
// root and returns a store backed by it. root is created if missing.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("working directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "cannot create working directory")
	}
	dir := filepath.Join(root, fmt.Sprintf("ex_%d", time.Now().Unix()))
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return nil, errors.Wrap(err, "cannot clear session directory")
		}
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "cannot create session directory")
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the session directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// Put writes the observation record atomically: the record is written to a
// temporary file and renamed into place.
func (s *FileStore) Put(obs *observation.Observation) error {
	tmp, err := os.CreateTemp(s.dir, "rec-*")
	if err != nil {
		return errors.Wrap(err, "cannot create record file")
	}
	zw := gzip.NewWriter(tmp)
	if err := json.NewEncoder(zw).Encode(obs); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "cannot encode record %d", obs.Index)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "cannot compress record %d", obs.Index)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "cannot close record %d", obs.Index)
	}
	if err := os.Rename(tmp.Name(), s.path(obs.Index)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "cannot store record %d", obs.Index)
	}
	return nil
}

// Get reads the record stored under idx.
func (s *FileStore) Get(idx int) (*observation.Observation, error) {
	f, err := os.Open(s.path(idx))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "record %d", idx)
		}
		return nil, errors.Wrapf(err, "cannot open record %d", idx)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "record %d is corrupt", idx)
	}
	defer zr.Close()
	var obs observation.Observation
	if err := json.NewDecoder(zr).Decode(&obs); err != nil {
		return nil, errors.Wrapf(err, "record %d is corrupt", idx)
	}
	return &obs, nil
}

// Destroy removes the session directory and everything in it.
func (s *FileStore) Destroy() error {
	return errors.Wrap(os.RemoveAll(s.dir), "cannot remove session directory")
}

func (s *FileStore) path(idx int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json.gz", idx))
}
