package chunk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/NamanBalaji/chunkdl/internal/logger"
)

const partSuffix = ".part"

// Store keeps one file per chunk id next to the final artifact, named
// "<name>.part<id>".
type Store struct {
	dir  string
	name string
}

func NewStore(dir, name string) *Store {
	return &Store{dir: dir, name: name}
}

// Dir returns the directory holding the chunk files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the chunk file path for id.
func (s *Store) Path(id int) string {
	return filepath.Join(s.dir, s.name+partSuffix+strconv.Itoa(id))
}

// Open opens the chunk file for writing. In append mode existing bytes are
// kept, otherwise the file is truncated.
func (s *Store) Open(id int, appendMode bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(s.Path(id), flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChunkFileOpen, err)
	}

	return f, nil
}

// Size returns the number of bytes on disk for id, zero if the file does
// not exist.
func (s *Store) Size(id int) (int64, error) {
	info, err := os.Stat(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// Exists reports whether a chunk file for id is present.
func (s *Store) Exists(id int) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Remove deletes the chunk file for id. A missing file is not an error.
func (s *Store) Remove(id int) error {
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrChunkFileRemove, err)
	}

	return nil
}

// IDs lists the chunk ids that currently have a file on disk, ascending.
func (s *Store) IDs() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	prefix := s.name + partSuffix

	var ids []int

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		rest, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok {
			continue
		}

		id, err := strconv.Atoi(rest)
		if err != nil || id < 0 {
			continue
		}

		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids, nil
}

// RemoveAll deletes every chunk file belonging to this store and returns
// the number of files removed.
func (s *Store) RemoveAll() (int, error) {
	ids, err := s.IDs()
	if err != nil {
		return 0, err
	}

	var errs []error

	removed := 0

	for _, id := range ids {
		if err := s.Remove(id); err != nil {
			logger.Errorf("Failed to remove chunk file %s: %v", s.Path(id), err)
			errs = append(errs, err)

			continue
		}

		removed++
	}

	return removed, errors.Join(errs...)
}
