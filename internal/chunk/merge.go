package chunk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/status"
)

const (
	mergeBufferSize = 4 * 1024 * 1024
	outputFileMode  = 0o644
)

var openChunk = os.Open

// Merge concatenates the chunk files of jobs into targetPath in ascending
// chunk id order. Every job must be Done and its file must hold exactly the
// bytes of its span. Chunk files are left in place, and on failure
// targetPath is left as it was.
func Merge(store *Store, jobs []Job, targetPath string) (int64, error) {
	sorted := make([]Job, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, j := range sorted {
		if j.State != status.Done {
			logger.Errorf("Cannot merge: chunk %d is %s", j.ID, status.String(j.State))
			return 0, fmt.Errorf("%w: chunk %d is %s", ErrMergeIncomplete, j.ID, status.String(j.State))
		}

		size, err := store.Size(j.ID)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrChunkFileOpen, err)
		}

		if size != j.Span.Size() {
			return 0, fmt.Errorf("%w: chunk %d has %d of %d bytes", ErrMergeIncomplete, j.ID, size, j.Span.Size())
		}
	}

	logger.Infof("Merging %d chunks into %s", len(sorted), targetPath)

	// The chunks are merged into a hidden sibling that only replaces
	// targetPath once complete, so a failed merge leaves no partial output.
	outFile, err := os.CreateTemp(filepath.Dir(targetPath), "."+filepath.Base(targetPath)+".merge-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTargetFileCreate, err)
	}

	tmpPath := outFile.Name()
	committed := false

	defer func() {
		if committed {
			return
		}

		if err := outFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Errorf("Failed to close output file %s: %v", tmpPath, err)
		}

		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Errorf("Failed to remove partial output %s: %v", tmpPath, err)
		}
	}()

	bufWriter := bufio.NewWriterSize(outFile, mergeBufferSize)

	var total int64

	for _, j := range sorted {
		n, err := appendChunk(bufWriter, store.Path(j.ID))
		if err != nil {
			return total, err
		}

		total += n
	}

	logger.Debugf("Flushing %d bytes to disk for file %s", total, targetPath)

	if err := bufWriter.Flush(); err != nil {
		return total, fmt.Errorf("%w: %w", ErrFileWrite, err)
	}

	if err := outFile.Chmod(outputFileMode); err != nil {
		return total, fmt.Errorf("%w: %w", ErrFileWrite, err)
	}

	if err := outFile.Close(); err != nil {
		return total, fmt.Errorf("%w: %w", ErrFileWrite, err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		return total, fmt.Errorf("%w: %w", ErrTargetFileCreate, err)
	}

	committed = true

	return total, nil
}

func appendChunk(w io.Writer, path string) (int64, error) {
	chunkFile, err := openChunk(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrChunkFileOpen, path)
	}

	defer func() {
		if err := chunkFile.Close(); err != nil {
			logger.Errorf("Failed to close file %s: %v", path, err)
		}
	}()

	n, err := io.Copy(w, chunkFile)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrChunkFileCopy, err)
	}

	return n, nil
}
