package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/chunkdl/internal/chunk"
	"github.com/NamanBalaji/chunkdl/internal/logger"
	"github.com/NamanBalaji/chunkdl/internal/probe"
	"github.com/NamanBalaji/chunkdl/internal/repository"
	"github.com/NamanBalaji/chunkdl/internal/status"
)

// DownloadSession binds a probed resource to its chunk jobs and chunk store.
// Workers report job changes through Record; everything else is owned by the
// coordinator.
type DownloadSession struct {
	ID         uuid.UUID
	Resource   probe.ResourceDescriptor
	OutputPath string
	Store      *chunk.Store
	CreatedAt  time.Time

	repo repository.Repository

	mu   sync.Mutex
	jobs []chunk.Job
	errs map[int]error
}

func newSession(
	id uuid.UUID,
	res probe.ResourceDescriptor,
	outputPath string,
	store *chunk.Store,
	jobs []chunk.Job,
	repo repository.Repository,
) *DownloadSession {
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &DownloadSession{
		ID:         id,
		Resource:   res,
		OutputPath: outputPath,
		Store:      store,
		CreatedAt:  time.Now(),
		repo:       repo,
		jobs:       jobs,
		errs:       make(map[int]error),
	}
}

// Record stores the latest state of job and persists the session. err is
// kept for abandoned jobs.
func (s *DownloadSession) Record(job chunk.Job, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID == job.ID {
			s.jobs[i] = job
			break
		}
	}

	if job.State == status.Abandoned && err != nil {
		s.errs[job.ID] = err
	} else {
		delete(s.errs, job.ID)
	}

	if perr := s.persistLocked(); perr != nil {
		logger.Warnf("Failed to persist session for %s: %v", s.OutputPath, perr)
	}
}

// Jobs returns a copy of the current jobs.
func (s *DownloadSession) Jobs() []chunk.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]chunk.Job, len(s.jobs))
	copy(jobs, s.jobs)

	return jobs
}

// Pending returns the jobs that are not Done.
func (s *DownloadSession) Pending() []chunk.Job {
	var pending []chunk.Job

	for _, j := range s.Jobs() {
		if j.State != status.Done {
			pending = append(pending, j)
		}
	}

	return pending
}

// Failures returns the errors of abandoned jobs ordered by chunk id.
func (s *DownloadSession) Failures() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.errs))
	for id := range s.errs {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	errs := make([]error, len(ids))
	for i, id := range ids {
		errs[i] = s.errs[id]
	}

	return errs
}

// Persist writes the session to the repository, if any.
func (s *DownloadSession) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.persistLocked()
}

// Forget removes the persisted session.
func (s *DownloadSession) Forget() error {
	if s.repo == nil {
		return nil
	}

	return s.repo.Delete(s.OutputPath)
}

func (s *DownloadSession) persistLocked() error {
	if s.repo == nil {
		return nil
	}

	jobs := make([]chunk.Job, len(s.jobs))
	copy(jobs, s.jobs)

	return s.repo.Save(&repository.SessionRecord{
		ID:            s.ID,
		URI:           s.Resource.URI,
		OutputPath:    s.OutputPath,
		SuggestedName: s.Resource.SuggestedName,
		TotalSize:     s.Resource.TotalSize,
		Integrity:     s.Resource.Integrity,
		Jobs:          jobs,
		CreatedAt:     s.CreatedAt,
	})
}
