package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

type ErrorCategory string

const (
	CategoryNetwork   ErrorCategory = "NETWORK"   // Connection issues
	CategoryIO        ErrorCategory = "IO"        // File system issues
	CategoryResource  ErrorCategory = "RESOURCE"  // Remote resource problems
	CategoryIntegrity ErrorCategory = "INTEGRITY" // Checksum problems
	CategoryContext   ErrorCategory = "CONTEXT"   // Context cancellation
)

// Kind identifies a failure in the download taxonomy.
type Kind string

const (
	KindResourceUnreachable      Kind = "ResourceUnreachable"
	KindInsufficientStorage      Kind = "InsufficientStorage"
	KindInvalidDownloadDirectory Kind = "InvalidDownloadDirectory"
	KindChunkTransferInterrupted Kind = "ChunkTransferInterrupted"
	KindChunkAbandoned           Kind = "ChunkAbandoned"
	KindIntegrityMismatch        Kind = "IntegrityMismatch"
)

// Sentinels matched by errors.Is against a *DownloadError of the same kind.
var (
	ErrResourceUnreachable      = New("resource unreachable")
	ErrInsufficientStorage      = New("insufficient storage")
	ErrInvalidDownloadDirectory = New("invalid download directory")
	ErrChunkTransferInterrupted = New("chunk transfer interrupted")
	ErrChunkAbandoned           = New("chunk abandoned")
	ErrIntegrityMismatch        = New("integrity mismatch")
)

var sentinels = map[Kind]error{
	KindResourceUnreachable:      ErrResourceUnreachable,
	KindInsufficientStorage:      ErrInsufficientStorage,
	KindInvalidDownloadDirectory: ErrInvalidDownloadDirectory,
	KindChunkTransferInterrupted: ErrChunkTransferInterrupted,
	KindChunkAbandoned:           ErrChunkAbandoned,
	KindIntegrityMismatch:        ErrIntegrityMismatch,
}

// DownloadError represents an error that occurred during a download session.
type DownloadError struct {
	Err        error         // Original error
	Kind       Kind          // Taxonomy entry
	Category   ErrorCategory // General category
	Retryable  bool          // Whether retry is recommended
	Timestamp  time.Time     // When the error occurred
	Resource   string        // What was being accessed (URI, path)
	StatusCode int           // HTTP status code when known
	ChunkID    int           // Chunk involved, -1 when not chunk related
	Offset     int64         // Absolute byte offset reached in the resource
	Details    map[string]interface{}
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	label := string(e.Kind)
	if label == "" {
		label = string(e.Category)
	}

	if e.ChunkID >= 0 {
		return fmt.Sprintf("[%s] chunk %d at byte %d of %s: %v", label, e.ChunkID, e.Offset, e.Resource, e.Err)
	}

	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status: %d): %v", label, e.Resource, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("[%s] %s: %v", label, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *DownloadError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func newError(kind Kind, category ErrorCategory, err error, resource string) *DownloadError {
	return &DownloadError{
		Err:       err,
		Kind:      kind,
		Category:  category,
		Timestamp: time.Now(),
		Resource:  resource,
		ChunkID:   -1,
	}
}

// NewResourceUnreachable reports a failed probe. statusCode is zero when no response arrived.
func NewResourceUnreachable(err error, uri string, statusCode int) *DownloadError {
	e := newError(KindResourceUnreachable, CategoryNetwork, err, uri)
	if statusCode != 0 {
		e.Category = CategoryResource
		e.StatusCode = statusCode
	}

	return e
}

// NewInsufficientStorage reports that dir cannot hold required bytes.
func NewInsufficientStorage(dir string, required, available uint64) *DownloadError {
	e := newError(KindInsufficientStorage, CategoryIO,
		fmt.Errorf("need %d bytes, %d available", required, available), dir)
	e.Details = map[string]interface{}{"required": required, "available": available}

	return e
}

// NewInvalidDownloadDirectory reports an unusable destination.
func NewInvalidDownloadDirectory(err error, dir string) *DownloadError {
	return newError(KindInvalidDownloadDirectory, CategoryIO, err, dir)
}

// NewChunkTransferInterrupted reports a recoverable failure while fetching a chunk.
func NewChunkTransferInterrupted(err error, uri string, chunkID int, offset int64, retryable bool) *DownloadError {
	e := newError(KindChunkTransferInterrupted, CategoryNetwork, err, uri)
	e.ChunkID = chunkID
	e.Offset = offset
	e.Retryable = retryable

	return e
}

// NewChunkAbandoned reports a chunk that exhausted its attempts.
func NewChunkAbandoned(err error, uri string, chunkID int, offset int64, attempts int) *DownloadError {
	e := newError(KindChunkAbandoned, CategoryNetwork, err, uri)
	e.ChunkID = chunkID
	e.Offset = offset
	e.Details = map[string]interface{}{"attempts": attempts}

	return e
}

// NewIntegrityMismatch reports a digest that does not match the advertised one.
func NewIntegrityMismatch(path, algorithm, expected, computed string) *DownloadError {
	e := newError(KindIntegrityMismatch, CategoryIntegrity,
		fmt.Errorf("%s expected %s, computed %s", algorithm, expected, computed), path)
	e.Details = map[string]interface{}{
		"algorithm": algorithm,
		"expected":  expected,
		"computed":  computed,
	}

	return e
}

// NewContextError creates a context cancellation error.
func NewContextError(err error, resource string) *DownloadError {
	return &DownloadError{
		Err:       err,
		Category:  CategoryContext,
		Timestamp: time.Now(),
		Resource:  resource,
		ChunkID:   -1,
	}
}

// IsRetryable determines if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Retryable
	}

	return false
}

// IsFatal reports whether err aborts a whole session.
func IsFatal(err error) bool {
	return Is(err, ErrResourceUnreachable) ||
		Is(err, ErrInsufficientStorage) ||
		Is(err, ErrInvalidDownloadDirectory)
}

// GetKind extracts the taxonomy kind from an error if available.
func GetKind(err error) (Kind, bool) {
	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Kind, true
	}

	return "", false
}

// GetStatusCode extracts the status code from an error if available.
func GetStatusCode(err error) (int, bool) {
	var downloadErr *DownloadError
	if As(err, &downloadErr) && downloadErr.StatusCode != 0 {
		return downloadErr.StatusCode, true
	}

	return 0, false
}

// WithDetails adds additional context to a DownloadError.
func WithDetails(err error, details map[string]interface{}) error {
	var downloadErr *DownloadError
	if !As(err, &downloadErr) {
		return err
	}

	if downloadErr.Details == nil {
		downloadErr.Details = make(map[string]interface{})
	}

	for k, v := range details {
		downloadErr.Details[k] = v
	}

	return downloadErr
}
