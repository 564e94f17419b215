package repository

// Repository persists download sessions across process runs.
type Repository interface {
	Save(record *SessionRecord) error
	Find(outputPath string) (*SessionRecord, error)
	FindAll() ([]*SessionRecord, error)
	Delete(outputPath string) error
	Close() error
}
