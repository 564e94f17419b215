package repository_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/NamanBalaji/chunkdl/internal/chunk"
	"github.com/NamanBalaji/chunkdl/internal/integrity"
	"github.com/NamanBalaji/chunkdl/internal/repository"
	"github.com/NamanBalaji/chunkdl/internal/status"
)

func newRecord(path string) *repository.SessionRecord {
	ranges, _ := chunk.Partition(100, 4)

	return &repository.SessionRecord{
		ID:            uuid.New(),
		URI:           "https://example.com/file.bin",
		OutputPath:    path,
		SuggestedName: "file.bin",
		TotalSize:     100,
		Integrity:     integrity.Hint{Algorithm: integrity.MD5, MD5: "abc"},
		Jobs:          chunk.NewJobs(ranges),
	}
}

func TestNewBboltRepository_OpenError(t *testing.T) {
	dir := t.TempDir()
	_, err := repository.NewBboltRepository(dir)
	if err == nil {
		t.Errorf("Expected error when opening DB on directory path, got nil")
	}
}

func TestNewBboltRepository_CreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state", "sessions.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()
}

func TestSaveNilSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()

	err = repo.Save(nil)
	if err == nil || err.Error() != "cannot save nil session" {
		t.Errorf("Expected error 'cannot save nil session', got %v", err)
	}

	err = repo.Save(&repository.SessionRecord{})
	if !errors.Is(err, repository.ErrEmptyKey) {
		t.Errorf("Expected ErrEmptyKey, got %v", err)
	}
}

func TestSaveFindRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()

	rec := newRecord("/downloads/file.bin")
	rec.Jobs[2] = rec.Jobs[2].Resume(7)
	rec.Jobs[2].Attempts = 2
	rec.Jobs[0].State = status.Done

	if err := repo.Save(rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Errorf("Expected timestamps to be set on save")
	}

	got, err := repo.Find("/downloads/file.bin")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}

	if got.ID != rec.ID || got.TotalSize != 100 || got.Integrity != rec.Integrity {
		t.Errorf("Find returned wrong record: %+v", got)
	}

	if len(got.Jobs) != 4 {
		t.Fatalf("Expected 4 jobs, got %d", len(got.Jobs))
	}

	if got.Jobs[2] != rec.Jobs[2] {
		t.Errorf("Job 2 mismatch: expected %+v, got %+v", rec.Jobs[2], got.Jobs[2])
	}

	if got.Jobs[0].State != status.Done {
		t.Errorf("Expected job 0 to be done, got %s", status.String(got.Jobs[0].State))
	}

	if !got.Matches(rec.URI, 100) || got.Matches(rec.URI, 101) || got.Matches("https://other", 100) {
		t.Errorf("Matches returned unexpected result")
	}
}

func TestFindMissing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()

	_, err = repo.Find("/nope")
	if !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	_, err = repo.Find("")
	if !errors.Is(err, repository.ErrEmptyKey) {
		t.Errorf("Expected ErrEmptyKey, got %v", err)
	}
}

func TestSaveFindAllDelete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()

	list, err := repo.FindAll()
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected empty list, got %d items", len(list))
	}

	rec := newRecord("/downloads/a.bin")
	if err := repo.Save(rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// saving again under the same path replaces the record
	rec.SuggestedName = "renamed.bin"
	if err := repo.Save(rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if got, err := repo.Find("/downloads/a.bin"); err != nil || got.SuggestedName != "renamed.bin" {
		t.Errorf("Expected replaced record, got %+v (err %v)", got, err)
	}

	if err := repo.Save(newRecord("/downloads/b.bin")); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	list, err = repo.FindAll()
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 records, got %d", len(list))
	}

	if err := repo.Delete(""); err == nil {
		t.Errorf("Expected error deleting empty path, got nil")
	}

	if err := repo.Delete("/downloads/missing.bin"); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound deleting missing record, got %v", err)
	}

	if err := repo.Delete("/downloads/a.bin"); err != nil {
		t.Errorf("Delete error for existing record: %v", err)
	}

	list, err = repo.FindAll()
	if err != nil {
		t.Fatalf("FindAll error after delete: %v", err)
	}
	if len(list) != 1 || list[0].OutputPath != "/downloads/b.bin" {
		t.Errorf("Expected only b.bin after delete, got %+v", list)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	rec := newRecord("/downloads/c.bin")
	if err := repo.Save(rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if err := repo.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	repo, err = repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen repository: %v", err)
	}
	defer repo.Close()

	got, err := repo.Find("/downloads/c.bin")
	if err != nil {
		t.Fatalf("Find after reopen error: %v", err)
	}

	if got.ID != rec.ID {
		t.Errorf("Expected ID %s, got %s", rec.ID, got.ID)
	}
}

func TestCloseBehavior(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	err = repo.Close()
	if err != nil {
		t.Fatalf("Close error: %v", err)
	}

	err = repo.Save(newRecord("/x"))
	if err == nil {
		t.Errorf("Expected error Save after Close, got nil")
	}
	_, err = repo.FindAll()
	if err == nil {
		t.Errorf("Expected error FindAll after Close, got nil")
	}

	err = repo.Delete("/x")
	if err == nil {
		t.Errorf("Expected error Delete after Close, got nil")
	}
}
