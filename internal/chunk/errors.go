package chunk

import "errors"

var (
	ErrInvalidPartition = errors.New("invalid partition request")
	ErrMergeIncomplete  = errors.New("cannot merge incomplete download: a chunk is not completed")
	ErrChunkFileOpen    = errors.New("failed to open chunk file")
	ErrChunkFileCopy    = errors.New("failed to copy chunk data")
	ErrChunkFileRemove  = errors.New("failed to remove chunk file during cleanup")
	ErrTargetFileCreate = errors.New("failed to create target file for merging")
	ErrFileWrite        = errors.New("failed to write to file")
)
