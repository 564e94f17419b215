package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	sessionsBucket = "sessions"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

var (
	// ErrSessionNotFound is returned when no session exists for an output path.
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyKey        = errors.New("output path cannot be empty")
)

// BboltRepository implements Repository on a bbolt file.
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository opens (creating if needed) the database at dbPath.
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		if err != nil {
			return fmt.Errorf("failed to create sessions bucket: %w", err)
		}

		metadataBucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		err = metadataBucket.Put([]byte("schema_version"), versionBytes)
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists a session record, replacing any record for the same path.
func (r *BboltRepository) Save(record *SessionRecord) error {
	if record == nil {
		return errors.New("cannot save nil session")
	}

	if record.OutputPath == "" {
		return ErrEmptyKey
	}

	record.UpdatedAt = time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", sessionsBucket)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		err = bucket.Put([]byte(record.OutputPath), data)
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		return nil
	})
}

// Find retrieves the session for an output path.
func (r *BboltRepository) Find(outputPath string) (*SessionRecord, error) {
	if outputPath == "" {
		return nil, ErrEmptyKey
	}

	var data []byte

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", sessionsBucket)
		}

		// bytes are only valid inside the transaction
		if v := bucket.Get([]byte(outputPath)); v != nil {
			data = append([]byte(nil), v...)
		}

		if data == nil {
			return ErrSessionNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	record := &SessionRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return record, nil
}

// FindAll retrieves every stored session.
func (r *BboltRepository) FindAll() ([]*SessionRecord, error) {
	var records []*SessionRecord

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", sessionsBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			record := &SessionRecord{}
			if err := json.Unmarshal(v, record); err != nil {
				return fmt.Errorf("failed to unmarshal session %s: %w", k, err)
			}

			records = append(records, record)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes the session for an output path.
func (r *BboltRepository) Delete(outputPath string) error {
	if outputPath == "" {
		return ErrEmptyKey
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", sessionsBucket)
		}

		if bucket.Get([]byte(outputPath)) == nil {
			return ErrSessionNotFound
		}

		return bucket.Delete([]byte(outputPath))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
